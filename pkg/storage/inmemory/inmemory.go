// Package inmemory provides a storage.Driver backed by a map, used by tests
// and when no database is configured.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/papercomputeco/parlor/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of sessions
	mu sync.RWMutex

	// sessions holds encoded snapshots keyed by session ID, so stored state
	// never aliases the caller's values.
	sessions map[string][]byte
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string][]byte),
	}
}

// Save inserts or replaces a session snapshot.
func (d *Driver) Save(_ context.Context, session *storage.Session) error {
	if err := storage.Validate(session); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions[session.ID] = data
	return nil
}

// Load retrieves a session by its ID.
func (d *Driver) Load(_ context.Context, id string) (*storage.Session, error) {
	d.mu.RLock()
	data, ok := d.sessions[id]
	d.mu.RUnlock()

	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return decode(data)
}

// List returns a summary of every stored session, most recently updated first.
func (d *Driver) List(_ context.Context) ([]storage.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]storage.Summary, 0, len(d.sessions))
	for _, data := range d.sessions {
		s, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, storage.Summarize(s))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes a session.
func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(d.sessions, id)
	return nil
}

// Count returns the number of stored sessions.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func decode(data []byte) (*storage.Session, error) {
	var s storage.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}
