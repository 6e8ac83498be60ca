package synapse

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one caller-owned conversation transcript. The transcript is
// append-only. A session must be driven by at most one turn at a time, but
// Snapshot and Len may be called while a turn appends.
type Session struct {
	ID           string
	SystemPrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	mu       sync.RWMutex
	messages []Message
}

// NewSession creates an empty session with a fresh id.
func NewSession(systemPrompt string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RestoreSession rebuilds a persisted session.
func RestoreSession(id, systemPrompt string, createdAt, updatedAt time.Time, messages []Message) *Session {
	return &Session{
		ID:           id,
		SystemPrompt: systemPrompt,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		messages:     append([]Message(nil), messages...),
	}
}

// Append adds turns to the end of the transcript.
func (s *Session) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the transcript in order.
func (s *Session) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
