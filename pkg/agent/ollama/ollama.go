// Package ollama implements an agent client for Ollama's native /api/chat
// endpoint, which streams newline-delimited JSON.
package ollama

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/logger"
)

const (
	providerName = "ollama"

	// DefaultBaseURL is the default local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"
)

// Client streams chat completions from an Ollama server.
type Client struct {
	opts agent.Options
	http *http.Client
}

// New creates an Ollama agent client.
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
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.opts.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.opts.Logger.Debug("opening ollama stream",
		"model", model,
		"message_count", len(req.History),
	)

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

func (c *Client) request(model string, req agent.Request) chatRequest {
	history := req.Messages()
	msgs := make([]chatMessage, 0, len(history)+1)
	if c.opts.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: llm.RoleSystem, Content: c.opts.SystemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.GetText()})
	}

	out := chatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
	}
	if c.opts.MaxTokens > 0 {
		n := c.opts.MaxTokens
		out.Options = &modelOptions{NumPredict: &n}
	}
	return out
}

func (c *Client) consume(body io.Reader, model string, emit agent.Emit) (*agent.Result, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		final *chatChunk
		calls []llm.ToolCall
	)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.opts.Logger.Debug("failed to parse stream chunk",
				"error", err,
				"line", string(line),
			)
			continue
		}

		if chunk.Error != "" {
			return nil, agent.ProviderError(providerName, chunk.Error)
		}

		if err := emit(chunk.Message.Content); err != nil {
			return nil, err
		}

		for _, tc := range chunk.Message.ToolCalls {
			calls = append(calls, llm.ToolCall{
				ID:       tc.ID,
				ToolName: tc.Function.Name,
				Args:     tc.Function.Arguments,
			})
		}

		if chunk.Done {
			final = &chunk
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, agent.ConnectionError(providerName, fmt.Errorf("reading stream: %w", err))
	}
	if final == nil {
		return nil, agent.ConnectionError(providerName, io.ErrUnexpectedEOF)
	}

	model = cmp.Or(final.Model, model)
	usage := &llm.Usage{
		PromptTokens:     final.PromptEvalCount,
		CompletionTokens: final.EvalCount,
		TotalTokens:      final.PromptEvalCount + final.EvalCount,
		TotalDurationNs:  final.TotalDuration,
		PromptDurationNs: final.PromptEvalDuration,
	}

	metadata := map[string]any{
		"total_duration": final.TotalDuration,
		"load_duration":  final.LoadDuration,
		"eval_duration":  final.EvalDuration,
	}
	if final.DoneReason != "" {
		metadata["done_reason"] = final.DoneReason
	}

	result := &agent.Result{
		Model:     model,
		Cost:      c.opts.Pricing.Cost(model, usage),
		ToolCalls: calls,
		Name:      c.opts.Name,
		Metadata:  metadata,
	}
	if final.TotalDuration > 0 {
		result.ResponseTime = float64(final.TotalDuration) / 1e9
	}
	if !final.CreatedAt.IsZero() {
		result.Timestamp = final.CreatedAt.UTC()
	}
	return result, nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
