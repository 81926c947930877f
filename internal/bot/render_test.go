package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"todobot/internal/models"
)

func TestHeaderText(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	tasks := []models.Task{{ID: 1, Done: true}, {ID: 2}, {ID: 3}}

	got := headerText(tasks, now)
	assert.Equal(t, "📋 <b>Tasks for 02.01.2025</b>\nTotal: 3 · Done: 1 · Open: 2", got)

	assert.Contains(t, headerText(nil, now), "📭 The list is empty.")
}

func TestTaskText(t *testing.T) {
	who := "<script>"
	tests := []struct {
		name string
		task models.Task
		want string
	}{
		{"open", models.Task{Title: "Fish & chips"}, "⬜ Fish &amp; chips"},
		{"done anonymously", models.Task{Title: "Laundry", Done: true}, "✅ Laundry"},
		{"done by someone", models.Task{Title: "Laundry", Done: true, DoneBy: &who}, "✅ Laundry\n<i>Completed by &lt;script&gt;</i>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, taskText(tt.task))
		})
	}
}

func TestTaskKeyboard(t *testing.T) {
	kb := taskKeyboard(models.Task{ID: 7})
	row := kb.InlineKeyboard[0]
	if assert.Len(t, row, 3) {
		assert.Equal(t, "done_7", *row[0].CallbackData)
		assert.Equal(t, "edit_7", *row[1].CallbackData)
		assert.Equal(t, "delete_7", *row[2].CallbackData)
	}

	kb = taskKeyboard(models.Task{ID: 7, Done: true})
	assert.Equal(t, "undone_7", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestParseTaskAction(t *testing.T) {
	tests := []struct {
		data   string
		action string
		id     int64
		ok     bool
	}{
		{"done_12", actionDone, 12, true},
		{"undone_3", actionUndone, 3, true},
		{"edit_1", actionEdit, 1, true},
		{"delete_99", actionDelete, 99, true},
		{"delete_x", "", 0, false},
		{"list_tasks", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, id, ok := parseTaskAction(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestTitleError(t *testing.T) {
	assert.Equal(t, textEmptyTitle, titleError(models.ErrEmptyTitle))
	assert.Contains(t, titleError(models.ErrTitleTooLong), "200")
}
