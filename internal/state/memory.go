package state

import (
	"context"
	"maps"
	"sync"
)

// Memory is a process-local Storage. State is lost on restart.
type Memory struct {
	mu    sync.Mutex
	chats map[int64]ConversationState
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{chats: map[int64]ConversationState{}}
}

// Load returns a copy of the stored state, or an idle state for unknown chats.
func (m *Memory) Load(_ context.Context, chatID int64) (ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.chats[chatID]
	if !ok {
		return ConversationState{Dialog: Idle}, nil
	}
	st.TaskMessages = maps.Clone(st.TaskMessages)
	return st, nil
}

// Save stores a copy of st.
func (m *Memory) Save(_ context.Context, chatID int64, st ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st.TaskMessages = maps.Clone(st.TaskMessages)
	m.chats[chatID] = st
	return nil
}

// Delete forgets the chat.
func (m *Memory) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.chats, chatID)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
