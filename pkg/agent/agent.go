// Package agent defines the boundary between the turn controller and the LLM
// agent that produces replies. An agent Client opens a Stream for one turn:
// the stream yields partial text snapshots and then a final structured Result.
//
// Provider implementations live in subpackages (openai, ollama, anthropic,
// echo) and are constructed by name through pkg/agent/factory.
package agent

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/pricing"
)

// Client opens streaming generations against an LLM provider.
type Client interface {
	// Name returns the canonical provider name (e.g., "openai", "ollama").
	Name() string

	// OpenStream starts a generation for req. Errors returned here are
	// connection or provider failures that happened before any chunk.
	OpenStream(ctx context.Context, req Request) (Stream, error)
}

// Stream is a single in-flight generation.
type Stream interface {
	// Next blocks until the next chunk is available and returns the full
	// text generated so far (a cumulative snapshot, not a delta).
	// Next returns io.EOF once the generation completed successfully.
	Next(ctx context.Context) (string, error)

	// Result returns the finalized reply. It blocks until the generation
	// finished and is only meaningful after Next returned io.EOF.
	Result() (*Result, error)

	// Close aborts the generation if it is still running and releases its
	// resources. Close is safe to call more than once.
	Close() error
}

// Request is the input to one generation.
type Request struct {
	// History is the prior conversation, oldest first. It normally ends with
	// the user message carrying Prompt.
	History []llm.Message

	// Prompt is the question being asked in this turn.
	Prompt string

	// Model overrides the client's configured model when set.
	Model string
}

// Messages returns the history with the prompt appended as a user message,
// unless the history already ends with that exact user message.
func (r Request) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(r.History)+1)
	msgs = append(msgs, r.History...)

	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		if last.Role == llm.RoleUser && last.GetText() == r.Prompt {
			return msgs
		}
	}

	if r.Prompt == "" {
		return msgs
	}
	return append(msgs, llm.NewTextMessage(llm.RoleUser, r.Prompt))
}

// Result is the finalized reply of a generation.
type Result struct {
	Content   string
	Model     string
	Timestamp time.Time

	// ResponseTime is the wall time of the generation in seconds.
	ResponseTime float64

	Cost      *llm.Cost
	ToolCalls []llm.ToolCall
	Name      string
	Metadata  map[string]any
}

// Options is the provider-independent configuration shared by all clients.
type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int

	// Name is attached to finalized messages (the agent's display name).
	Name string

	// Pricing prices the usage reported by the provider. May be nil.
	Pricing pricing.Table

	// HTTPClient overrides the default client. Streaming clients should not
	// set a Timeout; cancellation flows through the context.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// HTTP returns the configured HTTP client or a default streaming client.
func (o Options) HTTP() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{}
}
