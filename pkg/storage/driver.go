// Package storage persists chat sessions so they survive server restarts.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
)

// Session is the persisted snapshot of a chat session: its conversation set,
// the current conversation and the input draft. The busy flag is never
// persisted; a restored session is always idle.
type Session struct {
	ID            string              `json:"id"`
	Current       string              `json:"current"`
	Draft         chat.Input          `json:"draft"`
	Model         string              `json:"model,omitempty"`
	Conversations []chat.Conversation `json:"conversations"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Summary is the listing form of a persisted session.
type Summary struct {
	ID            string    `json:"id"`
	Current       string    `json:"current"`
	Conversations int       `json:"conversations"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Driver defines the interface for persisting and retrieving sessions in a
// storage backend.
type Driver interface {
	// Save inserts or replaces a session snapshot.
	Save(ctx context.Context, session *Session) error

	// Load retrieves a session by its ID. Returns NotFoundError when absent.
	Load(ctx context.Context, id string) (*Session, error)

	// List returns a summary of every stored session, most recently updated
	// first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a session. Returns NotFoundError when absent.
	Delete(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}

// Summarize builds the listing form of a session.
func Summarize(s *Session) Summary {
	return Summary{
		ID:            s.ID,
		Current:       s.Current,
		Conversations: len(s.Conversations),
		UpdatedAt:     s.UpdatedAt,
	}
}
