// Package testutils holds fixtures and fakes shared by package tests.
package testutils

import (
	"context"
	"io"
	"sync"

	"github.com/papercomputeco/parlor/pkg/agent"
)

// ScriptedAgent is an agent.Client that replays a fixed script.
type ScriptedAgent struct {
	// Chunks are returned by Next in order, verbatim.
	Chunks []string

	// Result is returned once the chunks are exhausted.
	Result *agent.Result

	// OpenErr fails OpenStream.
	OpenErr error

	// StreamErr is returned by Next after the chunks instead of io.EOF.
	StreamErr error

	// ResultErr fails Result.
	ResultErr error

	// Block, when set, parks Next after the chunks until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// BeforeNext is called at the start of every Next with the 1-based call
	// number. Chunks up to call-1 have been handed out at that point.
	BeforeNext func(call int)

	mu       sync.Mutex
	requests []agent.Request
	streams  []*ScriptedStream
}

func (a *ScriptedAgent) Name() string {
	return "scripted"
}

func (a *ScriptedAgent) OpenStream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, req)
	if a.OpenErr != nil {
		return nil, a.OpenErr
	}

	s := &ScriptedStream{agent: a, ctx: ctx}
	a.streams = append(a.streams, s)
	return s, nil
}

// Requests returns every request the agent received.
func (a *ScriptedAgent) Requests() []agent.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agent.Request(nil), a.requests...)
}

// Streams returns every stream the agent opened.
func (a *ScriptedAgent) Streams() []*ScriptedStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*ScriptedStream(nil), a.streams...)
}

// ScriptedStream is the stream opened by ScriptedAgent.
type ScriptedStream struct {
	agent *ScriptedAgent
	ctx   context.Context

	mu     sync.Mutex
	calls  int
	closed bool
}

func (s *ScriptedStream) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.agent.BeforeNext != nil {
		s.agent.BeforeNext(call)
	}

	if idx := call - 1; idx < len(s.agent.Chunks) {
		return s.agent.Chunks[idx], nil
	}

	if s.agent.Block != nil {
		select {
		case <-s.agent.Block:
		case <-ctx.Done():
			return "", agent.ConnectionError("scripted", ctx.Err())
		case <-s.ctx.Done():
			return "", agent.ConnectionError("scripted", s.ctx.Err())
		}
	}

	if s.agent.StreamErr != nil {
		return "", s.agent.StreamErr
	}
	return "", io.EOF
}

func (s *ScriptedStream) Result() (*agent.Result, error) {
	if s.agent.ResultErr != nil {
		return nil, s.agent.ResultErr
	}
	if s.agent.Result == nil {
		return &agent.Result{}, nil
	}
	res := *s.agent.Result
	return &res, nil
}

func (s *ScriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
