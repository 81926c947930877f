package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

type migration struct {
	version  int
	name     string
	sqlite   []string
	postgres []string
	// sqliteFn, when set, builds the SQLite statements from the live schema.
	sqliteFn func(ctx context.Context, tx *sql.Tx) ([]string, error)
}

func (m migration) statements(d dialect) []string {
	if d == dialectPostgres {
		return m.postgres
	}
	return m.sqlite
}

// migrations is append-only. Applied versions are recorded in
// schema_migrations and never run twice.
var migrations = []migration{
	{
		version: 1,
		name:    "create_tasks",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS tasks (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                title TEXT,
                done BOOLEAN NOT NULL DEFAULT 0,
                user_id INTEGER NOT NULL,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
            );`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);`,
		},
		postgres: []string{
			`CREATE TABLE IF NOT EXISTS tasks (
                id BIGSERIAL PRIMARY KEY,
                title TEXT,
                done BOOLEAN NOT NULL DEFAULT FALSE,
                user_id BIGINT NOT NULL,
                created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
            );`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);`,
		},
	},
	{
		version: 2,
		name:    "add_done_by_require_title",
		postgres: []string{
			`UPDATE tasks SET title = '(untitled)' WHERE title IS NULL OR TRIM(title) = '';`,
			`ALTER TABLE tasks ALTER COLUMN title SET NOT NULL;`,
			`ALTER TABLE tasks ADD COLUMN IF NOT EXISTS done_by TEXT;`,
			`UPDATE tasks SET done = FALSE WHERE done IS NULL;`,
			`ALTER TABLE tasks ALTER COLUMN done SET DEFAULT FALSE, ALTER COLUMN done SET NOT NULL;`,
			`UPDATE tasks SET done_by = NULL WHERE NOT done OR TRIM(done_by) = '';`,
			`UPDATE tasks SET user_id = 0 WHERE user_id IS NULL;`,
			`ALTER TABLE tasks ALTER COLUMN user_id SET NOT NULL;`,
			`UPDATE tasks SET created_at = CURRENT_TIMESTAMP WHERE created_at IS NULL;`,
			`UPDATE tasks SET updated_at = created_at WHERE updated_at IS NULL;`,
			`ALTER TABLE tasks
                ALTER COLUMN created_at SET DEFAULT CURRENT_TIMESTAMP, ALTER COLUMN created_at SET NOT NULL,
                ALTER COLUMN updated_at SET DEFAULT CURRENT_TIMESTAMP, ALTER COLUMN updated_at SET NOT NULL;`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);`,
		},
		// SQLite cannot alter a column constraint, so the table is rebuilt.
		sqliteFn: rebuildTasksSQLite,
	},
}

// rebuildTasksSQLite copies tasks into a table with the current constraints.
// Tables created by older deployments may lack done_by and hold NULLs in any
// column: blank titles become "(untitled)", a missing owner becomes 0 and a
// missing updated_at falls back to created_at. done_by survives only on done
// tasks.
func rebuildTasksSQLite(ctx context.Context, tx *sql.Tx) ([]string, error) {
	columns, err := sqliteColumns(ctx, tx, "tasks")
	if err != nil {
		return nil, err
	}
	doneBy := "NULL"
	if columns["done_by"] {
		doneBy = "CASE WHEN COALESCE(done, 0) THEN NULLIF(TRIM(done_by), '') END"
	}

	return []string{
		`CREATE TABLE tasks_new (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                title TEXT NOT NULL,
                done BOOLEAN NOT NULL DEFAULT 0,
                done_by TEXT,
                user_id INTEGER NOT NULL,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
            );`,
		`INSERT INTO tasks_new (id, title, done, done_by, user_id, created_at, updated_at)
                SELECT id,
                    COALESCE(NULLIF(TRIM(title), ''), '(untitled)'),
                    COALESCE(done, 0),
                    ` + doneBy + `,
                    COALESCE(user_id, 0),
                    COALESCE(created_at, CURRENT_TIMESTAMP),
                    COALESCE(updated_at, created_at, CURRENT_TIMESTAMP)
                FROM tasks;`,
		`DROP TABLE tasks;`,
		`ALTER TABLE tasks_new RENAME TO tasks;`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);`,
	}, nil
}

func sqliteColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

func (s *Store) migrate(ctx context.Context) error {
	createBookkeeping := `CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`
	if s.dialect == dialectPostgres {
		createBookkeeping = `CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`
	}
	if _, err := s.db.ExecContext(ctx, createBookkeeping); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		s.logger.Info("applied migration", slog.Int("version", m.version), slog.String("name", m.name), slog.String("dialect", s.dialect.String()))
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := m.statements(s.dialect)
	if s.dialect == dialectSQLite && m.sqliteFn != nil {
		if stmts, err = m.sqliteFn(ctx, tx); err != nil {
			return err
		}
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_migrations(version, name) VALUES(?, ?)`), m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration version, 0 for an
// empty database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}
