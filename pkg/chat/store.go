package chat

import (
	"slices"
	"strings"
	"sync"
)

// DefaultConversation is the conversation every store starts with and the one
// reseeded when the last conversation is deleted.
const DefaultConversation = "Intros"

// Conversation is a named, ordered sequence of messages.
type Conversation struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// Store is the conversation set: conversations keyed by unique name and kept
// in insertion order. A Store is never empty.
//
// Reads return copies; callers never observe a message while it is being
// written.
type Store struct {
	mu    sync.RWMutex
	order []string
	convs map[string][]Message
}

// NewStore returns a store seeded with the default conversation.
func NewStore() *Store {
	s := &Store{convs: map[string][]Message{}}
	s.seed()
	return s
}

// NewStoreFrom rebuilds a store from a snapshot. Blank and duplicate names
// are skipped. An empty snapshot yields a freshly seeded store.
func NewStoreFrom(convs []Conversation) *Store {
	s := &Store{convs: map[string][]Message{}}
	for _, c := range convs {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, ok := s.convs[name]; ok {
			continue
		}
		s.order = append(s.order, name)
		s.convs[name] = cloneMessages(c.Messages)
	}
	if len(s.order) == 0 {
		s.seed()
	}
	return s
}

func (s *Store) seed() {
	s.order = []string{DefaultConversation}
	s.convs[DefaultConversation] = []Message{}
}

// Append inserts msg at the tail of the named conversation.
func (s *Store) Append(name string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.convs[name]
	if !ok {
		return NotFoundError{Name: name}
	}
	s.convs[name] = append(msgs, msg.Clone())
	return nil
}

// ReplaceLast overwrites the tail record of the named conversation.
func (s *Store) ReplaceLast(name string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.messages(name)
	if err != nil {
		return err
	}
	msgs[len(msgs)-1] = msg.Clone()
	return nil
}

// SetLastContent assigns content to the tail record of the named
// conversation, leaving its other fields untouched.
func (s *Store) SetLastContent(name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.messages(name)
	if err != nil {
		return err
	}
	msgs[len(msgs)-1].Content = content
	return nil
}

// Last returns a copy of the tail record of the named conversation.
func (s *Store) Last(name string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, err := s.messages(name)
	if err != nil {
		return Message{}, err
	}
	return msgs[len(msgs)-1].Clone(), nil
}

// messages returns the live, non-empty message slice of a conversation.
// Callers hold the lock.
func (s *Store) messages(name string) ([]Message, error) {
	msgs, ok := s.convs[name]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	if len(msgs) == 0 {
		return nil, EmptyConversationError{Name: name}
	}
	return msgs, nil
}

// Get returns a snapshot of the named conversation's messages.
func (s *Store) Get(name string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.convs[name]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return cloneMessages(msgs), nil
}

// Create adds an empty conversation. Duplicate names are rejected.
func (s *Store) Create(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[name]; ok {
		return DuplicateNameError{Name: name}
	}
	s.order = append(s.order, name)
	s.convs[name] = []Message{}
	return nil
}

// Delete removes the named conversation and returns the conversation that
// should become current: the first remaining one in insertion order. When
// the last conversation is deleted the default conversation is reseeded and
// returned.
func (s *Store) Delete(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[name]; !ok {
		return "", NotFoundError{Name: name}
	}

	delete(s.convs, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	if len(s.order) == 0 {
		s.seed()
	}
	return s.order[0], nil
}

// Has reports whether the named conversation exists.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.convs[name]
	return ok
}

// Names returns the conversation names in insertion order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.order)
}

// First returns the first conversation name in insertion order.
func (s *Store) First() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.order[0]
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Snapshot returns a deep copy of every conversation in insertion order.
func (s *Store) Snapshot() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Conversation{
			Name:     name,
			Messages: cloneMessages(s.convs[name]),
		})
	}
	return out
}
