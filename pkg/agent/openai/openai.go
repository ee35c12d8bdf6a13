// Package openai implements an agent client for OpenAI-compatible chat
// completion APIs using github.com/sashabaranov/go-openai.
package openai

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/llm"
)

const (
	providerName = "openai"

	// DefaultBaseURL is the public OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Client streams chat completions from an OpenAI-compatible API.
type Client struct {
	client *openai.Client
	opts   agent.Options
}

// New creates an OpenAI agent client.
func New(opts agent.Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = cmp.Or(opts.BaseURL, DefaultBaseURL)
	cfg.HTTPClient = opts.HTTP()

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}
}

func (c *Client) Name() string {
	return providerName
}

func (c *Client) OpenStream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	model := cmp.Or(req.Model, c.opts.Model)

	reqCtx, cancel := context.WithCancel(ctx)
	stream, err := c.client.CreateChatCompletionStream(reqCtx, openai.ChatCompletionRequest{
		Model:         model,
		Messages:      c.messages(req),
		MaxTokens:     c.opts.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		cancel()
		return nil, classify(err)
	}

	return agent.NewStream(ctx, providerName, agent.Bind(cancel, func(_ context.Context, emit agent.Emit) (*agent.Result, error) {
		defer stream.Close()
		return c.consume(stream, model, emit)
	})), nil
}

func (c *Client) messages(req agent.Request) []openai.ChatCompletionMessage {
	history := req.Messages()
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if c.opts.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.opts.SystemPrompt,
		})
	}
	for _, msg := range history {
		out = append(out, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.GetText(),
		})
	}
	return out
}

// toolCallAccumulator merges streamed tool-call fragments by index.
type toolCallAccumulator struct {
	id   string
	name string
	args []byte
}

func (c *Client) consume(stream *openai.ChatCompletionStream, model string, emit agent.Emit) (*agent.Result, error) {
	var (
		usage  *llm.Usage
		finish string
		calls  = map[int]*toolCallAccumulator{}
	)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}

		if resp.Model != "" {
			model = resp.Model
		}
		if resp.Usage != nil {
			usage = convertUsage(resp.Usage)
		}

		for _, choice := range resp.Choices {
			if err := emit(choice.Delta.Content); err != nil {
				return nil, err
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := calls[idx]
				if !ok {
					acc = &toolCallAccumulator{}
					calls[idx] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args = append(acc.args, tc.Function.Arguments...)
			}
			if choice.FinishReason != "" {
				finish = string(choice.FinishReason)
			}
		}
	}

	metadata := map[string]any{}
	if finish != "" {
		metadata["finish_reason"] = finish
	}

	return &agent.Result{
		Model:     model,
		Cost:      c.opts.Pricing.Cost(model, usage),
		ToolCalls: toolCalls(calls),
		Name:      c.opts.Name,
		Metadata:  metadata,
	}, nil
}

func convertUsage(u *openai.Usage) *llm.Usage {
	usage := &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CacheReadInputTokens = u.PromptTokensDetails.CachedTokens
	}
	return usage
}

func toolCalls(calls map[int]*toolCallAccumulator) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]llm.ToolCall, 0, len(calls))
	for _, idx := range indexes {
		acc := calls[idx]
		call := llm.ToolCall{ID: acc.id, ToolName: acc.name}
		if len(acc.args) > 0 {
			var args map[string]any
			if err := json.Unmarshal(acc.args, &args); err == nil {
				call.Args = args
			} else {
				call.Args = map[string]any{"raw": string(acc.args)}
			}
		}
		out = append(out, call)
	}
	return out
}

func classify(err error) error {
	if agent.IsCancellation(err) {
		return agent.ConnectionError(providerName, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &agent.Error{Kind: agent.KindProvider, Provider: providerName, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &agent.Error{Kind: agent.KindProvider, Provider: providerName, Message: reqErr.Error(), Err: err}
	}
	return agent.ConnectionError(providerName, err)
}
