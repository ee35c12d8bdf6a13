// Package mcp serves read-only views of parlor sessions over the Model
// Context Protocol, so other agents can list conversations and read their
// history.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/utils"
)

const instructions = "Tools take a parlor session id. Conversations are listed in creation order; history is returned as question and answer pairs."

type Config struct {
	// Sessions resolves ids to live or persisted sessions.
	Sessions *session.Manager

	Logger *slog.Logger
}

type Server struct {
	config  Config
	server  *mcp.Server
	handler http.Handler
}

// NewServer registers the conversation tools and builds a stateless
// streamable HTTP handler for them.
func NewServer(c Config) (*Server, error) {
	switch {
	case c.Sessions == nil:
		return nil, errors.New("session manager is required")
	case c.Logger == nil:
		return nil, errors.New("logger is required")
	}

	s := &Server{config: c}
	s.server = mcp.NewServer(
		&mcp.Implementation{Name: "parlor", Version: utils.Version},
		&mcp.ServerOptions{Instructions: instructions},
	)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        listConversationsToolName,
		Description: listConversationsDescription,
	}, s.handleListConversations)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        getHistoryToolName,
		Description: getHistoryDescription,
	}, s.handleGetHistory)

	s.handler = mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.server },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
