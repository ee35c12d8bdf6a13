package turn

// State is the phase of the controller's current or last turn.
type State string

const (
	// StateIdle means no turn is running.
	StateIdle State = "idle"

	// StateAwaitingFirstToken means the turn began and the agent stream is
	// being opened.
	StateAwaitingFirstToken State = "awaiting_first_token"

	// StateStreaming means chunks are being applied to the placeholder.
	StateStreaming State = "streaming"

	// StateFinalizing means the stream completed and the placeholder is being
	// replaced with the finalized reply.
	StateFinalizing State = "finalizing"

	// StateErrored means the last turn aborted. The next Submit leaves it.
	StateErrored State = "errored"
)
