// Package state holds per-chat conversation state for the bot front end and
// the storages it can live in.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Dialog names the multi-step interaction a chat is in.
type Dialog string

const (
	Idle                Dialog = "idle"
	AwaitingNewTitle    Dialog = "awaiting_new_title"
	AwaitingEditedTitle Dialog = "awaiting_edited_title"
)

// Event drives dialog transitions.
type Event string

const (
	AddRequested  Event = "add_requested"
	EditRequested Event = "edit_requested"
	TitleAccepted Event = "title_accepted"
	TitleRejected Event = "title_rejected"
	Cancelled     Event = "cancelled"
)

// ErrInvalidTransition is returned for an event the current dialog does not accept.
var ErrInvalidTransition = errors.New("invalid dialog transition")

type transitionKey struct {
	from  Dialog
	event Event
}

var transitions = map[transitionKey]Dialog{
	{Idle, AddRequested}:                AwaitingNewTitle,
	{AwaitingNewTitle, AddRequested}:    AwaitingNewTitle,
	{AwaitingEditedTitle, AddRequested}: AwaitingNewTitle,

	{Idle, EditRequested}:                AwaitingEditedTitle,
	{AwaitingNewTitle, EditRequested}:    AwaitingEditedTitle,
	{AwaitingEditedTitle, EditRequested}: AwaitingEditedTitle,

	{AwaitingNewTitle, TitleAccepted}:    Idle,
	{AwaitingEditedTitle, TitleAccepted}: Idle,

	{AwaitingNewTitle, TitleRejected}:    AwaitingNewTitle,
	{AwaitingEditedTitle, TitleRejected}: AwaitingEditedTitle,

	{Idle, Cancelled}:                Idle,
	{AwaitingNewTitle, Cancelled}:    Idle,
	{AwaitingEditedTitle, Cancelled}: Idle,
}

// Next looks up the dialog reached from `from` on event.
func Next(from Dialog, event Event) (Dialog, error) {
	if from == "" {
		from = Idle
	}
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, event)
	}
	return to, nil
}

// ConversationState is everything the bot remembers about one chat.
type ConversationState struct {
	Dialog          Dialog `json:"dialog"`
	EditTaskID      int64  `json:"edit_task_id,omitempty"`
	AnchorMessageID int    `json:"anchor_message_id,omitempty"`
	PromptMessageID int    `json:"prompt_message_id,omitempty"`

	HeaderMessageID int           `json:"header_message_id,omitempty"`
	TaskMessages    map[int64]int `json:"task_messages,omitempty"`

	LastInput   string    `json:"last_input,omitempty"`
	LastInputAt time.Time `json:"last_input_at,omitempty"`
}

// Active reports whether a dialog is waiting for input.
func (s *ConversationState) Active() bool {
	return s.Dialog != "" && s.Dialog != Idle
}

// Fire applies event to the dialog. Leaving a dialog for Idle, or switching
// to a different dialog, drops the dialog scratch data. Message tracking
// and debounce bookkeeping are kept.
func (s *ConversationState) Fire(event Event) error {
	to, err := Next(s.Dialog, event)
	if err != nil {
		return err
	}
	if to == Idle || (event != TitleRejected && to != s.Dialog) {
		s.EditTaskID = 0
		s.AnchorMessageID = 0
		s.PromptMessageID = 0
	}
	s.Dialog = to
	return nil
}

// IsZero reports whether nothing worth storing is left for the chat.
func (s *ConversationState) IsZero() bool {
	return !s.Active() &&
		s.EditTaskID == 0 && s.AnchorMessageID == 0 && s.PromptMessageID == 0 &&
		s.HeaderMessageID == 0 && len(s.TaskMessages) == 0 &&
		s.LastInput == "" && s.LastInputAt.IsZero()
}

// TrackTask remembers the message that renders taskID.
func (s *ConversationState) TrackTask(taskID int64, messageID int) {
	if s.TaskMessages == nil {
		s.TaskMessages = map[int64]int{}
	}
	s.TaskMessages[taskID] = messageID
}

// Debounced records input at now and reports whether the same input was
// already seen within window.
func (s *ConversationState) Debounced(input string, now time.Time, window time.Duration) bool {
	if input == s.LastInput && !s.LastInputAt.IsZero() && now.Sub(s.LastInputAt) < window {
		return true
	}
	s.LastInput = input
	s.LastInputAt = now
	return false
}

// Storage keeps conversation state keyed by chat id. Load returns a zero,
// idle state for unknown chats.
type Storage interface {
	Load(ctx context.Context, chatID int64) (ConversationState, error)
	Save(ctx context.Context, chatID int64, st ConversationState) error
	Delete(ctx context.Context, chatID int64) error
	Close() error
}
