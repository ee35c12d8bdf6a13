// Package session holds the per-user chat state that the serving layer
// exposes: the conversation set, the current conversation, the busy flag and
// the input draft. Every mutation is applied under the session lock and
// followed by an Event, so subscribers never observe a half-written message.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/storage"
)

var (
	// ErrSessionClosed is returned when a closed session is mutated.
	ErrSessionClosed = errors.New("session is closed")

	// ErrTurnClosed is returned when a finished or aborted turn is written to.
	ErrTurnClosed = errors.New("turn is no longer active")

	// ErrInvalidInput is returned for drafts of an unknown kind.
	ErrInvalidInput = errors.New("invalid input kind")
)

// State is a read-only snapshot of a session.
type State struct {
	ID            string     `json:"id"`
	Conversations []string   `json:"conversations"`
	Current       string     `json:"current"`
	Busy          bool       `json:"busy"`
	Draft         chat.Input `json:"draft"`
	Model         string     `json:"model,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Session is one user's chat state.
type Session struct {
	id string

	mu        sync.Mutex
	store     *chat.Store
	current   string
	busy      bool
	turn      *Turn
	draft     chat.Input
	model     string
	seq       uint64
	createdAt time.Time
	updatedAt time.Time

	broker *Broker
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

type config struct {
	logger *slog.Logger
	buffer int
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithSubscriberBuffer sets how many events a subscriber may lag behind
// before events are dropped for it.
func WithSubscriberBuffer(n int) Option {
	return func(c *config) {
		c.buffer = n
	}
}

func newSession(id string, store *chat.Store, opts []Option) *Session {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	l := c.logger.With("session_id", id)

	return &Session{
		id:        id,
		store:     store,
		current:   store.First(),
		createdAt: now,
		updatedAt: now,
		broker:    NewBroker(c.buffer, l),
		ctx:       ctx,
		cancel:    cancel,
		logger:    l,
	}
}

// New creates an idle session with the default conversation selected.
func New(id string, opts ...Option) *Session {
	return newSession(id, chat.NewStore(), opts)
}

// Restore rebuilds an idle session from a persisted snapshot.
func Restore(snap *storage.Session, opts ...Option) *Session {
	s := newSession(snap.ID, chat.NewStoreFrom(snap.Conversations), opts)
	if s.store.Has(snap.Current) {
		s.current = snap.Current
	}
	if snap.Draft.Valid() {
		s.draft = snap.Draft
	}
	s.model = snap.Model
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Context is cancelled when the session is closed.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Subscribe registers for change events. Call cancel to unsubscribe.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.broker.Subscribe()
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		ID:            s.id,
		Conversations: s.store.Names(),
		Current:       s.current,
		Busy:          s.busy,
		Draft:         s.draft,
		Model:         s.model,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

// Busy reports whether a turn is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Current returns the current conversation name.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Messages returns a snapshot of a conversation's messages. An empty name
// means the current conversation.
func (s *Session) Messages(name string) ([]chat.Message, error) {
	s.mu.Lock()
	if name == "" {
		name = s.current
	}
	s.mu.Unlock()

	return s.store.Get(name)
}

// History returns a conversation as (user, assistant) pairs. An empty name
// means the current conversation.
func (s *Session) History(name string) ([][2]string, error) {
	msgs, err := s.Messages(name)
	if err != nil {
		return nil, err
	}
	return chat.FormatHistory(msgs), nil
}

// Snapshot returns the persistable form of the session.
func (s *Session) Snapshot() *storage.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &storage.Session{
		ID:            s.id,
		Current:       s.current,
		Draft:         s.draft,
		Model:         s.model,
		Conversations: s.store.Snapshot(),
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

// CreateConversation adds an empty conversation and selects it. Duplicate
// names are rejected with chat.DuplicateNameError.
func (s *Session) CreateConversation(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return ErrSessionClosed
	}

	if err := s.store.Create(name); err != nil {
		return err
	}
	names := s.store.Names()
	created := names[len(names)-1]

	s.emit(Event{Type: EventConversationCreated, Conversation: created})
	s.selectLocked(created)
	return nil
}

// DeleteConversation deletes a conversation (the current one when name is
// empty) and returns the conversation that is current afterwards: the first
// remaining one, or the reseeded default. Deleting the conversation the
// running turn writes to fails with chat.ErrTurnInProgress.
func (s *Session) DeleteConversation(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return "", ErrSessionClosed
	}

	if name == "" {
		name = s.current
	}
	if s.turn != nil && s.turn.conversation == name {
		return "", chat.ErrTurnInProgress
	}

	next, err := s.store.Delete(name)
	if err != nil {
		return "", err
	}

	s.emit(Event{Type: EventConversationDeleted, Conversation: name})
	if s.current == name || !s.store.Has(s.current) {
		s.selectLocked(next)
	}
	return s.current, nil
}

// SelectConversation makes name the current conversation.
func (s *Session) SelectConversation(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return ErrSessionClosed
	}
	if !s.store.Has(name) {
		return chat.NotFoundError{Name: name}
	}
	if s.current != name {
		s.selectLocked(name)
	}
	return nil
}

func (s *Session) selectLocked(name string) {
	s.current = name
	s.emit(Event{Type: EventConversationSelected, Conversation: name})
}

// SetDraft replaces the input draft.
func (s *Session) SetDraft(in chat.Input) error {
	if !in.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidInput, in.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return ErrSessionClosed
	}
	s.draft = in
	s.emitDraft()
	return nil
}

// Draft returns the input draft.
func (s *Session) Draft() chat.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetModel selects the model the session's turns ask for. An empty model
// falls back to the server's.
func (s *Session) SetModel(model string) error {
	model = strings.TrimSpace(model)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return ErrSessionClosed
	}
	if s.model == model {
		return nil
	}
	s.model = model
	s.emit(Event{Type: EventModelChanged, Model: model})
	return nil
}

// Model returns the selected model, empty when none was chosen.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) emitDraft() {
	draft := s.draft
	s.emit(Event{Type: EventDraftChanged, Draft: &draft})
}

// emit stamps and publishes ev. Callers hold s.mu, which keeps Seq in
// publish order.
func (s *Session) emit(ev Event) {
	s.seq++
	s.updatedAt = time.Now().UTC()

	ev.Seq = s.seq
	ev.Session = s.id
	ev.Current = s.current
	ev.Busy = s.busy
	ev.Time = s.updatedAt
	s.broker.Publish(ev)
}

// Close cancels the running turn, if any, and closes every subscription.
func (s *Session) Close() {
	s.cancel()
	s.broker.Close()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// BeginTurn starts a turn on the current conversation: it appends the user
// message and the empty assistant placeholder, sets busy and clears the
// draft. It fails with chat.ErrTurnInProgress while another turn runs.
func (s *Session) BeginTurn(question string) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return nil, ErrSessionClosed
	}
	if s.busy {
		return nil, chat.ErrTurnInProgress
	}

	conv := s.current
	history, err := s.store.Get(conv)
	if err != nil {
		return nil, err
	}

	user := chat.NewMessage(llm.RoleUser, question)
	placeholder := chat.NewPlaceholder()

	if err := s.store.Append(conv, user); err != nil {
		return nil, err
	}
	if err := s.store.Append(conv, placeholder); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &Turn{
		session:      s,
		conversation: conv,
		question:     question,
		history:      append(history, user),
		started:      time.Now().UTC(),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.busy = true
	s.turn = t
	s.draft = chat.Input{}

	s.emit(Event{Type: EventMessageAppended, Conversation: conv, Message: &user})
	s.emit(Event{Type: EventMessageAppended, Conversation: conv, Message: &placeholder})
	s.emit(Event{Type: EventBusyChanged})
	s.emitDraft()

	s.logger.Debug("turn started",
		"conversation", conv,
		"history_length", len(t.history),
	)
	return t, nil
}
