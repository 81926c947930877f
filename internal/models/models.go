package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the longest title the front ends accept, in characters.
const MaxTitleLength = 200

var (
	// ErrEmptyTitle is returned when a title is blank after trimming.
	ErrEmptyTitle = errors.New("task title must not be empty")
	// ErrTitleTooLong is returned when a title exceeds MaxTitleLength.
	ErrTitleTooLong = fmt.Errorf("task title must not exceed %d characters", MaxTitleLength)
)

// Task represents a single to-do item owned by a chat or user.
type Task struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	DoneBy    *string   `json:"done_by"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// CompletedBy returns the done_by label or an empty string.
func (t Task) CompletedBy() string {
	if t.DoneBy == nil {
		return ""
	}
	return *t.DoneBy
}

// TaskUpdate lists optional changes applied by a single update statement.
// A nil field leaves the column untouched. DoneBy is only stored when Done
// is set to true.
type TaskUpdate struct {
	Title  *string
	Done   *bool
	DoneBy string
}

// IsValidationError reports whether err came from title validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyTitle) || errors.Is(err, ErrTitleTooLong)
}

// ValidateTitle trims the title and checks it against the front end limits.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}
