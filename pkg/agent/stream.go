package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// Emit delivers one text delta from a producer to the stream consumer.
// It blocks until the consumer took the chunk and returns an error when the
// stream was cancelled.
type Emit func(delta string) error

// Producer drives one provider generation. It calls emit for every text
// delta in order and returns the final result once the provider finished.
// Result.Content may be left empty; it defaults to the accumulated text.
type Producer func(ctx context.Context, emit Emit) (*Result, error)

// Bind returns a Producer that calls cancel once the stream is closed or its
// context is done, and again when produce returns. Providers pass the cancel
// func of the context their upstream request runs under, so closing the
// stream aborts a producer blocked reading the response.
func Bind(cancel context.CancelFunc, produce Producer) Producer {
	return func(ctx context.Context, emit Emit) (*Result, error) {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		defer cancel()
		return produce(ctx, emit)
	}
}

// pipeStream adapts a Producer running in its own goroutine to the Stream
// interface. Deltas are accumulated and handed out as cumulative snapshots
// over an unbuffered channel, so the producer never runs ahead of the
// consumer and chunks keep their order.
type pipeStream struct {
	provider string
	chunks   chan string
	done     chan struct{}
	cancel   context.CancelFunc
	started  time.Time

	// result and err are written before chunks is closed.
	result *Result
	err    error

	closeOnce sync.Once
}

// NewStream runs produce in a new goroutine and returns a Stream over it.
// The provider name is used to label errors.
func NewStream(ctx context.Context, provider string, produce Producer) Stream {
	ctx, cancel := context.WithCancel(ctx)

	s := &pipeStream{
		provider: provider,
		chunks:   make(chan string),
		done:     make(chan struct{}),
		cancel:   cancel,
		started:  time.Now(),
	}

	go s.run(ctx, produce)

	return s
}

func (s *pipeStream) run(ctx context.Context, produce Producer) {
	defer close(s.done)

	var text strings.Builder
	emit := func(delta string) error {
		if delta == "" {
			return nil
		}
		text.WriteString(delta)

		select {
		case s.chunks <- text.String():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	result, err := produce(ctx, emit)
	switch {
	case err != nil:
		s.err = s.wrap(ctx, err)
	case result == nil:
		s.err = ProviderError(s.provider, "stream completed without a result")
	default:
		s.result = s.complete(result, text.String())
	}

	close(s.chunks)
}

func (s *pipeStream) wrap(ctx context.Context, err error) error {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return err
	}
	if ctx.Err() != nil || IsCancellation(err) {
		return &Error{Kind: KindCancelled, Provider: s.provider, Err: err}
	}
	return &Error{Kind: KindConnection, Provider: s.provider, Err: err}
}

func (s *pipeStream) complete(result *Result, text string) *Result {
	if result.Content == "" {
		result.Content = text
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if result.ResponseTime == 0 {
		result.ResponseTime = time.Since(s.started).Seconds()
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	if _, ok := result.Metadata["provider"]; !ok {
		result.Metadata["provider"] = s.provider
	}
	return result
}

func (s *pipeStream) Next(ctx context.Context) (string, error) {
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return chunk, nil

	case <-ctx.Done():
		s.cancel()
		return "", &Error{Kind: KindCancelled, Provider: s.provider, Err: ctx.Err()}
	}
}

func (s *pipeStream) Result() (*Result, error) {
	<-s.done
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *pipeStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Unblock a producer parked on emit, then wait for it to exit.
		for range s.chunks {
		}
		<-s.done
	})
	return nil
}
