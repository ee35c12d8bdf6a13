package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parlor/pkg/chat"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnRecorded is emitted after a chat turn completed, failed or
	// was cancelled.
	EventTypeTurnRecorded = "parlor.turn.recorded"
)

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// TurnRecordedEvent is a transport-neutral event payload for a finished turn.
type TurnRecordedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Session       SessionMeta   `json:"session"`
	Turn          TurnMeta      `json:"turn"`
	Reply         *chat.Message `json:"reply,omitempty"`
}

// EventSource identifies the agent that answered the turn.
type EventSource struct {
	AgentName string `json:"agent_name,omitempty"`
	Provider  string `json:"provider"`
}

// SessionMeta identifies where the turn happened.
type SessionMeta struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
}

// TurnMeta captures the turn lifecycle.
type TurnMeta struct {
	Question    string    `json:"question"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Chunks      int       `json:"chunks"`
}

// NewTurnRecordedEvent stamps a new event with schema, type, ID and time.
func NewTurnRecordedEvent(source EventSource, session SessionMeta, turn TurnMeta, reply *chat.Message) *TurnRecordedEvent {
	return &TurnRecordedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnRecorded,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Session:       session,
		Turn:          turn,
		Reply:         reply,
	}
}
