// Package anthropic implements an agent client for the Anthropic Messages
// API. The streamed response is read with pkg/sse.
package anthropic

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/sse"
)

const (
	providerName = "anthropic"

	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Client streams replies from the Anthropic Messages API.
type Client struct {
	opts agent.Options
	http *http.Client
}

// New creates an Anthropic agent client.
func New(opts agent.Options) *Client {
	opts.BaseURL = strings.TrimRight(cmp.Or(opts.BaseURL, DefaultBaseURL), "/")
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{opts: opts, http: opts.HTTP()}
}

func (c *Client) Name() string {
	return providerName
}

func (c *Client) OpenStream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	model := cmp.Or(req.Model, c.opts.Model)

	body, err := json.Marshal(c.request(model, req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.opts.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Anthropic-Version", apiVersion)
	if c.opts.APIKey != "" {
		httpReq.Header.Set("X-Api-Key", c.opts.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, agent.ConnectionError(providerName, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, agent.ProviderError(providerName, fmt.Sprintf("status %d: %s", resp.StatusCode, errorMessage(respBody)))
	}

	return agent.NewStream(ctx, providerName, agent.Bind(cancel, func(_ context.Context, emit agent.Emit) (*agent.Result, error) {
		defer resp.Body.Close()
		return c.consume(resp.Body, model, emit)
	})), nil
}

func (c *Client) request(model string, req agent.Request) messagesRequest {
	system := []string{}
	if c.opts.SystemPrompt != "" {
		system = append(system, c.opts.SystemPrompt)
	}

	var msgs []message
	for _, m := range req.Messages() {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.GetText())
		case llm.RoleUser, llm.RoleAssistant:
			text := m.GetText()
			if text == "" {
				// The API rejects empty content blocks.
				continue
			}
			msgs = append(msgs, message{Role: m.Role, Content: text})
		}
	}

	return messagesRequest{
		Model:     model,
		Messages:  msgs,
		System:    strings.Join(system, "\n\n"),
		MaxTokens: cmp.Or(c.opts.MaxTokens, defaultMaxTokens),
		Stream:    true,
	}
}

type toolUse struct {
	call llm.ToolCall
	args strings.Builder
}

func (c *Client) consume(body io.Reader, model string, emit agent.Emit) (*agent.Result, error) {
	reader := sse.NewReader(body)

	var (
		u          usage
		stopReason string
		messageID  string
		tools      = map[int]*toolUse{}
		order      []int
		stopped    bool
	)

	for !stopped {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, agent.ConnectionError(providerName, fmt.Errorf("reading stream: %w", err))
		}

		var payload streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			c.opts.Logger.Debug("failed to parse stream event",
				"error", err,
				"event", ev.Type,
			)
			continue
		}

		switch payload.Type {
		case "message_start":
			if payload.Message != nil {
				messageID = payload.Message.ID
				model = cmp.Or(payload.Message.Model, model)
				u = payload.Message.Usage
			}

		case "content_block_start":
			if payload.ContentBlock != nil && payload.ContentBlock.Type == "tool_use" {
				tools[payload.Index] = &toolUse{call: llm.ToolCall{
					ID:       payload.ContentBlock.ID,
					ToolName: payload.ContentBlock.Name,
				}}
				order = append(order, payload.Index)
			}

		case "content_block_delta":
			if payload.Delta == nil {
				continue
			}
			switch payload.Delta.Type {
			case "text_delta":
				if err := emit(payload.Delta.Text); err != nil {
					return nil, err
				}
			case "input_json_delta":
				if t, ok := tools[payload.Index]; ok {
					t.args.WriteString(payload.Delta.PartialJSON)
				}
			}

		case "message_delta":
			if payload.Delta != nil && payload.Delta.StopReason != "" {
				stopReason = payload.Delta.StopReason
			}
			if payload.Usage != nil {
				u.OutputTokens = payload.Usage.OutputTokens
			}

		case "message_stop":
			stopped = true

		case "error":
			msg := "stream error"
			if payload.Error != nil {
				msg = payload.Error.Message
			}
			return nil, agent.ProviderError(providerName, msg)
		}
	}

	if !stopped {
		return nil, agent.ConnectionError(providerName, io.ErrUnexpectedEOF)
	}

	usage := &llm.Usage{
		PromptTokens:             u.InputTokens,
		CompletionTokens:         u.OutputTokens,
		TotalTokens:              u.InputTokens + u.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
	}

	calls := make([]llm.ToolCall, 0, len(order))
	for _, idx := range order {
		t := tools[idx]
		if raw := t.args.String(); raw != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(raw), &args); err == nil {
				t.call.Args = args
			} else {
				t.call.Args = map[string]any{"raw": raw}
			}
		}
		calls = append(calls, t.call)
	}
	if len(calls) == 0 {
		calls = nil
	}

	metadata := map[string]any{}
	if stopReason != "" {
		metadata["stop_reason"] = stopReason
	}
	if messageID != "" {
		metadata["message_id"] = messageID
	}

	return &agent.Result{
		Model:     model,
		Cost:      c.opts.Pricing.Cost(model, usage),
		ToolCalls: calls,
		Name:      c.opts.Name,
		Metadata:  metadata,
	}, nil
}

// errorMessage extracts {"error": {"message": "..."}} bodies, falling back to
// the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}
