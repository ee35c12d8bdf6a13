package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/storage"
)

// Manager owns the live sessions of a server and restores persisted ones on
// demand.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	driver   storage.Driver
	logger   *slog.Logger
	opts     []Option
}

// NewManager creates a manager persisting through driver.
func NewManager(driver storage.Driver, l *slog.Logger, opts ...Option) *Manager {
	if l == nil {
		l = logger.Nop()
	}
	return &Manager{
		sessions: map[string]*Session{},
		driver:   driver,
		logger:   l,
		opts:     append([]Option{WithLogger(l)}, opts...),
	}
}

// Create starts a new session and persists its initial snapshot.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := New(uuid.NewString(), m.opts...)

	if err := m.driver.Save(ctx, s.Snapshot()); err != nil {
		s.Close()
		return nil, fmt.Errorf("saving session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", s.ID())
	return s, nil
}

// Get returns a live session, restoring it from storage when it is not in
// memory. Unknown IDs yield storage.NotFoundError.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	snap, err := m.driver.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	restored := Restore(snap, m.opts...)
	id = restored.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have restored it meanwhile.
	if s, ok := m.sessions[id]; ok {
		restored.Close()
		return s, nil
	}
	m.sessions[id] = restored

	m.logger.Info("session restored", "session_id", id)
	return restored, nil
}

// Save persists the session's current snapshot.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.driver.Save(ctx, s.Snapshot())
}

// List returns the persisted sessions.
func (m *Manager) List(ctx context.Context) ([]storage.Summary, error) {
	return m.driver.List(ctx)
}

// Delete closes a session, cancelling its running turn, and removes it from
// storage.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, live := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if live {
		s.Close()
	}

	err := m.driver.Delete(ctx, id)
	if err != nil && !(live && storage.IsNotFound(err)) {
		return err
	}

	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Live returns the number of sessions held in memory.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every live session. Running turns are cancelled and write
// nothing further.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}
