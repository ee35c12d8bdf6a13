package session

import (
	"context"
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
)

// Turn is the handle the turn controller writes through while a turn is in
// flight. All writes target the conversation captured when the turn began,
// even if the user selects another conversation meanwhile.
type Turn struct {
	session      *Session
	conversation string
	question     string
	history      []chat.Message
	started      time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// done is guarded by session.mu.
	done bool
}

// Conversation returns the conversation the turn writes to.
func (t *Turn) Conversation() string {
	return t.conversation
}

// Context is cancelled when the turn ends or the session closes.
func (t *Turn) Context() context.Context {
	return t.ctx
}

// Question returns the submitted question.
func (t *Turn) Question() string {
	return t.question
}

// History returns the conversation as it was when the agent is called: every
// message up to and including the new user message, without the placeholder.
func (t *Turn) History() []chat.Message {
	out := make([]chat.Message, len(t.history))
	for i, m := range t.history {
		out[i] = m.Clone()
	}
	return out
}

// StartedAt returns when the turn began.
func (t *Turn) StartedAt() time.Time {
	return t.started
}

// SessionID returns the ID of the owning session.
func (t *Turn) SessionID() string {
	return t.session.id
}

// writable reports why the turn may not be written to, if anything.
// Callers hold session.mu.
func (t *Turn) writable() error {
	if t.done {
		return ErrTurnClosed
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Update assigns content to the placeholder and notifies subscribers.
func (t *Turn) Update(content string) error {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.writable(); err != nil {
		return err
	}
	if err := s.store.SetLastContent(t.conversation, content); err != nil {
		return err
	}

	last, err := s.store.Last(t.conversation)
	if err != nil {
		return err
	}
	s.emit(Event{Type: EventMessageUpdated, Conversation: t.conversation, Message: &last})
	return nil
}

// Finish replaces the placeholder with the finalized reply and clears busy.
func (t *Turn) Finish(msg chat.Message) error {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.writable(); err != nil {
		return err
	}
	if err := s.store.ReplaceLast(t.conversation, msg); err != nil {
		return err
	}

	t.closeLocked()
	s.emit(Event{Type: EventMessageFinalized, Conversation: t.conversation, Message: &msg})
	s.emit(Event{Type: EventBusyChanged})

	s.logger.Debug("turn finished",
		"conversation", t.conversation,
		"duration", time.Since(t.started),
	)
	return nil
}

// Abort ends the turn without touching the conversation: the placeholder
// keeps its partial content. cause is surfaced to subscribers as a
// turn.error event. Abort is a no-op on a finished turn.
func (t *Turn) Abort(cause error) {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.done {
		return
	}
	t.closeLocked()

	msg := "turn aborted"
	if cause != nil {
		msg = cause.Error()
	}
	s.emit(Event{Type: EventTurnError, Conversation: t.conversation, Error: msg})
	s.emit(Event{Type: EventBusyChanged})

	s.logger.Debug("turn aborted",
		"conversation", t.conversation,
		"error", msg,
	)
}

// closeLocked marks the turn done and clears busy. Callers hold session.mu.
func (t *Turn) closeLocked() {
	t.done = true
	t.cancel()

	s := t.session
	s.busy = false
	if s.turn == t {
		s.turn = nil
	}
}
