// Package api provides the HTTP API server for parlor sessions: conversation
// management, question submission, transcript export and a server-sent event
// stream of session changes.
package api

import (
	"log/slog"
	"time"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/pricing"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/template"
	"github.com/papercomputeco/parlor/pkg/turn"
	"github.com/papercomputeco/parlor/pkg/upload"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Sessions owns the live sessions and persists them
	Sessions *session.Manager

	// Agent answers submitted questions
	Agent agent.Client

	// Model overrides the agent's configured model when set
	Model string

	// Pricing lists the models offered by GET /models (optional, defaults
	// to the built-in table)
	Pricing pricing.Table

	// Recorder receives every finished turn (optional)
	Recorder turn.Recorder

	// Templates is the catalogue of question templates (optional, defaults
	// to the built-in cards)
	Templates *template.Catalog

	// Uploads is the directory files and exports are saved under (optional;
	// saving is disabled without it)
	Uploads *upload.Dir

	// KeepAlive is the interval of SSE keep-alive comments (default 15s)
	KeepAlive time.Duration

	// MCP mounts the MCP server at /mcp
	MCP bool

	// Logger is the configured logger
	Logger *slog.Logger
}
