package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/parlor/api"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/sse"
	"github.com/papercomputeco/parlor/pkg/template"
)

// defaultRetry is used when the server sent no reconnection hint.
const defaultRetry = 2 * time.Second

// apiError is a non-2xx response from the parlor server.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func isStatus(err error, code int) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// client talks to the parlor HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		// No timeout: the event stream stays open for the whole chat.
		http: &http.Client{},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e api.ErrorResponse
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &apiError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if s, ok := out.(*string); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*s = string(data)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sessionPath(id string, parts ...string) string {
	p := "/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *client) agent(ctx context.Context) (api.AgentResponse, error) {
	var out api.AgentResponse
	err := c.do(ctx, http.MethodGet, "/agent", nil, &out)
	return out, err
}

func (c *client) createSession(ctx context.Context) (session.State, error) {
	var out session.State
	err := c.do(ctx, http.MethodPost, "/sessions", nil, &out)
	return out, err
}

func (c *client) getSession(ctx context.Context, id string) (session.State, error) {
	var out session.State
	err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &out)
	return out, err
}

func (c *client) createConversation(ctx context.Context, id, name string) (session.State, error) {
	var out session.State
	err := c.do(ctx, http.MethodPost, sessionPath(id, "conversations"), api.ConversationRequest{Name: name}, &out)
	return out, err
}

func (c *client) selectConversation(ctx context.Context, id, name string) (session.State, error) {
	var out session.State
	err := c.do(ctx, http.MethodPut, sessionPath(id, "current"), api.ConversationRequest{Name: name}, &out)
	return out, err
}

func (c *client) deleteConversation(ctx context.Context, id, name string) (api.DeleteConversationResponse, error) {
	var out api.DeleteConversationResponse
	err := c.do(ctx, http.MethodDelete, sessionPath(id, "conversations", name), nil, &out)
	return out, err
}

func (c *client) history(ctx context.Context, id, name string) ([][2]string, error) {
	var out api.HistoryResponse
	err := c.do(ctx, http.MethodGet, sessionPath(id, "conversations", name, "history"), nil, &out)
	return out.Pairs, err
}

func (c *client) export(ctx context.Context, id, name, format string) (api.SavedFileResponse, error) {
	var out api.SavedFileResponse
	q := url.Values{"format": {format}, "save": {"true"}}
	err := c.do(ctx, http.MethodGet, sessionPath(id, "conversations", name, "export")+"?"+q.Encode(), nil, &out)
	return out, err
}

func (c *client) templates(ctx context.Context) ([]template.Card, error) {
	var out []template.Card
	err := c.do(ctx, http.MethodGet, "/templates", nil, &out)
	return out, err
}

func (c *client) models(ctx context.Context) (api.ModelsResponse, error) {
	var out api.ModelsResponse
	err := c.do(ctx, http.MethodGet, "/models", nil, &out)
	return out, err
}

func (c *client) setModel(ctx context.Context, id, model string) (session.State, error) {
	var out session.State
	err := c.do(ctx, http.MethodPut, sessionPath(id, "model"), api.ModelRequest{Model: model}, &out)
	return out, err
}

func (c *client) selectTemplate(ctx context.Context, id, title string) error {
	return c.do(ctx, http.MethodPut, sessionPath(id, "draft"), api.DraftRequest{Template: title}, nil)
}

func (c *client) ask(ctx context.Context, id, question string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "questions"), api.QuestionRequest{Question: question}, nil)
}

func (c *client) cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "cancel"), nil, nil)
}

// update is one item of the event stream: either the initial state snapshot
// or a change event.
type update struct {
	State *session.State
	Event *session.Event
}

// events reads one connection of the session's event stream into out. It
// returns the server's reconnection hint once the stream ends. Raw stream
// bytes are copied to trace when it is not nil.
func (c *client) events(ctx context.Context, id string, out chan<- update, trace io.Writer) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+sessionPath(id, "events"), nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return 0, &apiError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var opts []sse.ReaderOption
	if trace != nil {
		opts = append(opts, sse.WithTrace(trace))
	}
	reader := sse.NewReader(resp.Body, opts...)

	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return reader.Retry(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return reader.Retry(), fmt.Errorf("reading event stream: %w", err)
		}

		u, err := decodeUpdate(ev)
		if err != nil {
			return 0, err
		}

		select {
		case out <- u:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// follow keeps the event stream open until ctx ends. A dropped stream is
// reopened after the server's retry hint; the state snapshot sent on every
// connect brings the client back in sync.
func (c *client) follow(ctx context.Context, id string, out chan<- update, trace io.Writer, logger *slog.Logger) error {
	for {
		retry, err := c.events(ctx, id, out, trace)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return err
		}
		if err != nil {
			logger.Debug("event stream dropped", "error", err)
		}

		if retry <= 0 {
			retry = defaultRetry
		}
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeUpdate(ev *sse.Event) (update, error) {
	if ev.Type == api.EventState {
		var state session.State
		if err := json.Unmarshal([]byte(ev.Data), &state); err != nil {
			return update{}, fmt.Errorf("decoding state event: %w", err)
		}
		return update{State: &state}, nil
	}

	var event session.Event
	if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
		return update{}, fmt.Errorf("decoding %s event: %w", ev.Type, err)
	}
	return update{Event: &event}, nil
}
