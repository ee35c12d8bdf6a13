package session

import (
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
)

// EventType names a change notification.
type EventType string

const (
	EventConversationCreated  EventType = "conversation.created"
	EventConversationDeleted  EventType = "conversation.deleted"
	EventConversationSelected EventType = "conversation.selected"
	EventMessageAppended      EventType = "message.appended"
	EventMessageUpdated       EventType = "message.updated"
	EventMessageFinalized     EventType = "message.finalized"
	EventBusyChanged          EventType = "busy.changed"
	EventDraftChanged         EventType = "draft.changed"
	EventModelChanged         EventType = "model.changed"
	EventTurnError            EventType = "turn.error"
)

// Event is emitted after every session mutation. Seq increases by one per
// event within a session.
type Event struct {
	Type         EventType     `json:"type"`
	Seq          uint64        `json:"seq"`
	Session      string        `json:"session"`
	Conversation string        `json:"conversation,omitempty"`
	Current      string        `json:"current,omitempty"`
	Message      *chat.Message `json:"message,omitempty"`
	Busy         bool          `json:"busy"`
	Draft        *chat.Input   `json:"draft,omitempty"`
	Model        string        `json:"model,omitempty"`
	Error        string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}
