// Package echo implements an offline agent that replies by echoing the
// prompt back word by word. It needs no credentials or network and is used
// for demos and tests.
package echo

import (
	"cmp"
	"context"
	"strings"
	"time"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/llm"
)

const (
	providerName = "echo"

	// DefaultModel is reported as the model of every reply.
	DefaultModel = "echo-1"
)

// Client is the echo agent.
type Client struct {
	opts  agent.Options
	delay time.Duration
}

// Option configures the echo client.
type Option func(*Client)

// WithDelay pauses between words, which makes streaming visible.
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

// New creates an echo agent client.
func New(opts agent.Options, options ...Option) *Client {
	c := &Client{opts: opts}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return providerName
}

// Reply returns the text the echo agent answers prompt with.
func Reply(prompt string) string {
	return "You said: " + strings.TrimSpace(prompt)
}

func (c *Client) OpenStream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	model := cmp.Or(req.Model, c.opts.Model, DefaultModel)
	reply := Reply(req.Prompt)

	return agent.NewStream(ctx, providerName, func(ctx context.Context, emit agent.Emit) (*agent.Result, error) {
		words := strings.SplitAfter(reply, " ")
		for _, word := range words {
			if c.delay > 0 {
				select {
				case <-time.After(c.delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if err := emit(word); err != nil {
				return nil, err
			}
		}

		prompt := tokens(req.Messages())
		completion := len(words)
		usage := &llm.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}

		return &agent.Result{
			Content:  reply,
			Model:    model,
			Cost:     c.opts.Pricing.Cost(model, usage),
			Name:     c.opts.Name,
			Metadata: map[string]any{"history_length": len(req.History)},
		}, nil
	}), nil
}

// tokens approximates a token count as the number of words.
func tokens(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(strings.Fields(m.GetText()))
	}
	return n
}
