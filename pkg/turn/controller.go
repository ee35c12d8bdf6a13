// Package turn drives one chat turn at a time against a session: it appends
// the question, streams the agent's reply into the placeholder and finalizes
// it with the agent's metadata.
package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/utils"
)

// logQuestionLen bounds the question quoted in turn log lines.
const logQuestionLen = 60

// Controller runs turns for a single session.
type Controller struct {
	session  *session.Session
	agent    agent.Client
	recorder Recorder
	logger   *slog.Logger
	model    string

	mu    sync.Mutex
	state State
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder sets where finished turns are reported.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithModel overrides the agent's configured model for sessions that did not
// select one.
func WithModel(model string) Option {
	return func(c *Controller) {
		c.model = model
	}
}

// New creates a controller for s answering through client.
func New(s *session.Session, client agent.Client, opts ...Option) *Controller {
	c := &Controller{
		session:  s,
		agent:    client,
		recorder: nopRecorder{},
		logger:   logger.Nop(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session_id", s.ID(), "agent", client.Name())
	return c
}

// Session returns the controlled session.
func (c *Controller) Session() *session.Session {
	return c.session
}

// State returns the phase of the current or last turn.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Submit runs one turn for question on the session's current conversation
// and returns the finalized reply.
//
// A blank question is skipped: Submit returns (nil, nil) and nothing changes.
// While another turn runs Submit fails with chat.ErrTurnInProgress. Agent
// failures and cancellation return *chat.AgentStreamError after busy was
// cleared; the placeholder keeps the partial content it had. Cancelling ctx
// or closing the session cancels the agent call.
func (c *Controller) Submit(ctx context.Context, question string) (*chat.Message, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil
	}

	t, err := c.session.BeginTurn(question)
	if err != nil {
		return nil, err
	}
	c.setState(StateAwaitingFirstToken)

	streamCtx, cancel := context.WithCancel(t.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	run := &run{turn: t, started: time.Now().UTC()}

	model := c.session.Model()
	if model == "" {
		model = c.model
	}
	stream, err := c.agent.OpenStream(streamCtx, agent.Request{
		History: chat.ToLLM(t.History()),
		Prompt:  question,
		Model:   model,
	})
	if err != nil {
		return nil, c.fail(streamCtx, run, err)
	}
	defer stream.Close()
	c.setState(StateStreaming)

	for {
		chunk, err := stream.Next(streamCtx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.fail(streamCtx, run, err)
		}

		if err := t.Update(chunk); err != nil {
			return nil, c.fail(streamCtx, run, err)
		}
		run.chunks++
	}

	c.setState(StateFinalizing)

	result, err := stream.Result()
	if err != nil {
		return nil, c.fail(streamCtx, run, err)
	}

	reply := finalMessage(result)
	if err := t.Finish(reply); err != nil {
		return nil, c.fail(streamCtx, run, err)
	}
	c.setState(StateIdle)

	c.logger.Info("turn completed",
		"conversation", t.Conversation(),
		"question", utils.Truncate(question, logQuestionLen),
		"model", reply.Model,
		"chunks", run.chunks,
		"duration", time.Since(run.started),
	)
	c.record(run, OutcomeCompleted, nil, &reply)
	return &reply, nil
}

// run tracks one in-flight turn.
type run struct {
	turn    *session.Turn
	started time.Time
	chunks  int
}

// fail aborts the turn and classifies err.
func (c *Controller) fail(ctx context.Context, r *run, err error) error {
	// Abort cancels the turn context, so classify before it.
	cancelled := ctx.Err() != nil || agent.KindOf(err) == agent.KindCancelled || agent.IsCancellation(err)

	c.setState(StateErrored)
	r.turn.Abort(err)

	conv := r.turn.Conversation()

	if isStoreError(err) {
		c.logger.Error("internal error, turn aborted",
			"conversation", conv,
			"error", err,
		)
		c.record(r, OutcomeFailed, err, nil)
		return err
	}

	outcome := OutcomeFailed
	if cancelled {
		outcome = OutcomeCancelled
		c.logger.Info("turn cancelled",
			"conversation", conv,
			"question", utils.Truncate(r.turn.Question(), logQuestionLen),
			"chunks", r.chunks,
		)
	} else {
		c.logger.Warn("turn failed",
			"conversation", conv,
			"question", utils.Truncate(r.turn.Question(), logQuestionLen),
			"chunks", r.chunks,
			"error", err,
		)
	}

	c.record(r, outcome, err, nil)
	return &chat.AgentStreamError{Conversation: conv, Err: err}
}

func isStoreError(err error) bool {
	var (
		nf    chat.NotFoundError
		empty chat.EmptyConversationError
	)
	return errors.As(err, &nf) || errors.As(err, &empty)
}

func (c *Controller) record(r *run, outcome string, err error, reply *chat.Message) {
	rec := Record{
		SessionID:    c.session.ID(),
		Conversation: r.turn.Conversation(),
		Question:     r.turn.Question(),
		Provider:     c.agent.Name(),
		Outcome:      outcome,
		Err:          err,
		StartedAt:    r.started,
		CompletedAt:  time.Now().UTC(),
		Chunks:       r.chunks,
		Reply:        reply,
	}
	if reply != nil {
		rec.AgentName = reply.Name
	}
	if !c.session.Closed() {
		rec.Snapshot = c.session.Snapshot()
	}
	c.recorder.Record(rec)
}

// finalMessage builds the assistant message that replaces the placeholder.
func finalMessage(res *agent.Result) chat.Message {
	msg := chat.NewMessage(llm.RoleAssistant, res.Content)
	msg.Model = res.Model

	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg.Timestamp = &ts

	rt := res.ResponseTime
	msg.ResponseTime = &rt

	msg.CostInfo = res.Cost
	msg.ToolCalls = res.ToolCalls
	msg.Name = res.Name
	msg.Metadata = res.Metadata
	return msg
}
