package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parlor/api/mcp"
	"github.com/papercomputeco/parlor/pkg/pricing"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/template"
	"github.com/papercomputeco/parlor/pkg/turn"
)

const defaultKeepAlive = 15 * time.Second

// Server is the API server for parlor sessions
type Server struct {
	config Config
	app    *fiber.App

	// ctx is the parent of every background turn and is cancelled on Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	turns  sync.WaitGroup

	mu          sync.Mutex
	controllers map[string]*turn.Controller
	inflight    map[string]context.CancelFunc
}

// NewServer creates a new API server.
func NewServer(config Config) (*Server, error) {
	if config.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if config.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.Templates == nil {
		config.Templates = template.NewCatalog(config.Logger)
	}
	if config.Pricing == nil {
		config.Pricing = pricing.DefaultTable()
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = defaultKeepAlive
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		UnescapePath:          true,
		// Route params outlive the request: session ids key the live
		// session map and conversation names ride on queued events.
		Immutable:             true,
		ErrorHandler:          errorHandler,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      config,
		app:         app,
		ctx:         ctx,
		cancel:      cancel,
		controllers: map[string]*turn.Controller{},
		inflight:    map[string]context.CancelFunc{},
	}

	app.Get("/ping", s.handlePing)
	app.Get("/agent", s.handleAgent)
	app.Get("/models", s.handleListModels)
	app.Get("/templates", s.handleListTemplates)

	sessions := app.Group("/sessions")
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/", s.handleListSessions)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Delete("/:id", s.handleDeleteSession)
	sessions.Get("/:id/events", s.handleEvents)

	sessions.Post("/:id/conversations", s.handleCreateConversation)
	sessions.Put("/:id/current", s.handleSelectConversation)
	sessions.Delete("/:id/conversations/:name", s.handleDeleteConversation)
	sessions.Get("/:id/conversations/:name/messages", s.handleGetMessages)
	sessions.Get("/:id/conversations/:name/history", s.handleGetHistory)
	sessions.Get("/:id/conversations/:name/export", s.handleExport)

	sessions.Put("/:id/draft", s.handleSetDraft)
	sessions.Put("/:id/model", s.handleSetModel)
	sessions.Post("/:id/questions", s.handleSubmitQuestion)
	sessions.Post("/:id/cancel", s.handleCancelTurn)
	sessions.Post("/:id/files", s.handleSaveFile)

	if config.MCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Sessions: config.Sessions,
			Logger:   config.Logger,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.config.Logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"agent", s.config.Agent.Name(),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Handler returns the server as a net/http handler.
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}

// Shutdown stops accepting requests, cancels running turns and waits for
// them to unwind.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.cancel()
	s.turns.Wait()
	return err
}

// controller returns the turn controller of a session, creating it on first
// use.
func (s *Server) controller(sess *session.Session) *turn.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.controllers[sess.ID()]; ok && c.Session() == sess {
		return c
	}

	opts := []turn.Option{turn.WithLogger(s.config.Logger)}
	if s.config.Recorder != nil {
		opts = append(opts, turn.WithRecorder(s.config.Recorder))
	}
	if s.config.Model != "" {
		opts = append(opts, turn.WithModel(s.config.Model))
	}

	c := turn.New(sess, s.config.Agent, opts...)
	s.controllers[sess.ID()] = c
	return c
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.controllers, id)
	if cancel, ok := s.inflight[id]; ok {
		cancel()
		delete(s.inflight, id)
	}
}
