package chat

import (
	"errors"
	"fmt"
)

// ErrEmptyName is returned when a conversation name is blank.
var ErrEmptyName = errors.New("conversation name must not be empty")

// ErrTurnInProgress is returned when a turn is requested, or a conversation
// targeted by the running turn is deleted, while another turn is in flight.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// NotFoundError is returned when an operation references an unknown
// conversation.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %q", e.Name)
}

// EmptyConversationError is returned when the tail of a conversation with no
// messages is read or replaced.
type EmptyConversationError struct {
	Name string
}

func (e EmptyConversationError) Error() string {
	return fmt.Sprintf("conversation %q has no messages", e.Name)
}

// DuplicateNameError is returned when creating a conversation whose name is
// already taken.
type DuplicateNameError struct {
	Name string
}

func (e DuplicateNameError) Error() string {
	return fmt.Sprintf("conversation already exists: %q", e.Name)
}

// AgentStreamError wraps an agent failure that aborted a turn.
type AgentStreamError struct {
	Conversation string
	Err          error
}

func (e *AgentStreamError) Error() string {
	return fmt.Sprintf("turn in %q aborted: %v", e.Conversation, e.Err)
}

func (e *AgentStreamError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicate reports whether err is a DuplicateNameError.
func IsDuplicate(err error) bool {
	var dup DuplicateNameError
	return errors.As(err, &dup)
}
