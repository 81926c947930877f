package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"todobot/internal/models"
)

const taskColumns = `id, title, done, done_by, user_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var (
		t      models.Task
		doneBy sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Done, &doneBy, &t.UserID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return models.Task{}, err
	}
	if doneBy.Valid && doneBy.String != "" {
		v := doneBy.String
		t.DoneBy = &v
	}
	return t, nil
}

// GetTask retrieves a task by id regardless of its owner.
func (s *Store) GetTask(ctx context.Context, id int64) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks of one user in insertion order.
func (s *Store) ListTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY id`, userID)
}

// ListAllTasks returns every stored task in insertion order.
func (s *Store) ListAllTasks(ctx context.Context) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new task for a user. The title is stored trimmed.
func (s *Store) CreateTask(ctx context.Context, title string, userID int64) (models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Task{}, models.ErrEmptyTitle
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO tasks(title, user_id) VALUES(?, ?) RETURNING id`), title, userID).Scan(&id)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// UpdateTask applies the requested changes in a single statement. A blank
// title leaves the stored title untouched. Marking a task undone always
// clears done_by.
func (s *Store) UpdateTask(ctx context.Context, id int64, upd models.TaskUpdate) (models.Task, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}

	if upd.Title != nil {
		if title := strings.TrimSpace(*upd.Title); title != "" {
			sets = append(sets, "title = ?")
			args = append(args, title)
		}
	}
	if upd.Done != nil {
		var doneBy any
		if *upd.Done && strings.TrimSpace(upd.DoneBy) != "" {
			doneBy = strings.TrimSpace(upd.DoneBy)
		}
		sets = append(sets, "done = ?", "done_by = ?")
		args = append(args, *upd.Done, doneBy)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		return models.Task{}, ErrNotFound
	}
	return s.GetTask(ctx, id)
}

// RenameTask changes the title of a task.
func (s *Store) RenameTask(ctx context.Context, id int64, title string) (models.Task, error) {
	return s.UpdateTask(ctx, id, models.TaskUpdate{Title: &title})
}

// SetDone marks a task done or undone. actor is recorded only when done.
func (s *Store) SetDone(ctx context.Context, id int64, done bool, actor string) (models.Task, error) {
	return s.UpdateTask(ctx, id, models.TaskUpdate{Done: &done, DoneBy: actor})
}

// DeleteTask removes a task by id and returns the row as it was.
func (s *Store) DeleteTask(ctx context.Context, id int64) (models.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return models.Task{}, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if affected == 0 {
		return models.Task{}, ErrNotFound
	}
	return t, nil
}
