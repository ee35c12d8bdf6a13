package turn

import (
	"time"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/storage"
)

// Outcomes of a recorded turn.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Record describes a finished turn for persistence and event publishing.
type Record struct {
	SessionID    string
	Conversation string
	Question     string
	Provider     string
	AgentName    string

	Outcome string
	Err     error

	StartedAt   time.Time
	CompletedAt time.Time
	Chunks      int

	// Reply is the finalized message of a completed turn.
	Reply *chat.Message

	// Snapshot is the session state after the turn. It is nil when the
	// session was closed, so a torn-down session is never persisted again.
	Snapshot *storage.Session
}

// Recorder receives finished turns. Record must not block the caller.
type Recorder interface {
	Record(rec Record)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(rec Record)

func (f RecorderFunc) Record(rec Record) {
	f(rec)
}

type nopRecorder struct{}

func (nopRecorder) Record(Record) {}
