package api

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parlor/pkg/agent/factory"
	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/session"
)

// AgentResponse describes the agent questions are answered by.
type AgentResponse struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// ModelsResponse lists the models questions may be answered with.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Default  string   `json:"default"`
	Models   []string `json:"models"`
}

// ModelRequest selects the model of a session. An empty model restores the
// server default.
type ModelRequest struct {
	Model string `json:"model"`
}

// ConversationRequest names a conversation to create or select.
type ConversationRequest struct {
	Name string `json:"name"`
}

// DeleteConversationResponse reports the conversation selected after a delete.
type DeleteConversationResponse struct {
	Deleted string `json:"deleted"`
	Current string `json:"current"`
}

// MessagesResponse lists the messages of one conversation.
type MessagesResponse struct {
	Conversation string         `json:"conversation"`
	Messages     []chat.Message `json:"messages"`
}

// HistoryResponse lists the question/answer pairs of one conversation.
type HistoryResponse struct {
	Conversation string      `json:"conversation"`
	Pairs        [][2]string `json:"pairs"`
}

// DraftRequest replaces the input draft. Template, when set, selects a card
// by title and takes precedence over Kind and Value.
type DraftRequest struct {
	Kind     chat.InputKind `json:"kind"`
	Value    string         `json:"value"`
	Template string         `json:"template,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleAgent reports the configured agent.
func (s *Server) handleAgent(c *fiber.Ctx) error {
	return c.JSON(AgentResponse{
		Provider: s.config.Agent.Name(),
		Model:    s.config.Model,
	})
}

// handleListModels lists the models of the configured provider, the one
// used by sessions without a selection first.
func (s *Server) handleListModels(c *fiber.Ctx) error {
	provider := s.config.Agent.Name()
	models := factory.Models(provider, s.config.Pricing)

	def := s.config.Model
	if def == "" {
		def = factory.DefaultModel(provider)
	}
	if def != "" && !slices.Contains(models, def) {
		models = append([]string{def}, models...)
	}
	if models == nil {
		models = []string{}
	}

	return c.JSON(ModelsResponse{Provider: provider, Default: def, Models: models})
}

func (s *Server) handleSetModel(c *fiber.Ctx) error {
	var req ModelRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}
	if err := sess.SetModel(req.Model); err != nil {
		return fail(c, err)
	}
	s.persist(c, sess)
	return c.JSON(sess.State())
}

// handleListTemplates returns the template cards.
func (s *Server) handleListTemplates(c *fiber.Ctx) error {
	return c.JSON(s.config.Templates.Cards())
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess, err := s.config.Sessions.Create(c.Context())
	if err != nil {
		s.config.Logger.Error("failed to create session", "error", err)
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess.State())
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	summaries, err := s.config.Sessions.List(c.Context())
	if err != nil {
		s.config.Logger.Error("failed to list sessions", "error", err)
		return fail(c, err)
	}
	return c.JSON(summaries)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sess.State())
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	s.forget(id)
	if err := s.config.Sessions.Delete(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req ConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}
	if err := sess.CreateConversation(req.Name); err != nil {
		return fail(c, err)
	}
	s.persist(c, sess)
	return c.Status(fiber.StatusCreated).JSON(sess.State())
}

func (s *Server) handleSelectConversation(c *fiber.Ctx) error {
	var req ConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}
	if err := sess.SelectConversation(req.Name); err != nil {
		return fail(c, err)
	}
	s.persist(c, sess)
	return c.JSON(sess.State())
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	name := c.Params("name")
	current, err := sess.DeleteConversation(name)
	if err != nil {
		return fail(c, err)
	}
	s.persist(c, sess)
	return c.JSON(DeleteConversationResponse{Deleted: name, Current: current})
}

func (s *Server) handleGetMessages(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	name := c.Params("name")
	msgs, err := sess.Messages(name)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(MessagesResponse{Conversation: name, Messages: msgs})
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	name := c.Params("name")
	pairs, err := sess.History(name)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(HistoryResponse{Conversation: name, Pairs: pairs})
}

func (s *Server) handleSetDraft(c *fiber.Ctx) error {
	var req DraftRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	in := chat.Input{Kind: req.Kind, Value: req.Value}
	if req.Template != "" {
		card, ok := s.config.Templates.Find(req.Template)
		if !ok {
			return fail(c, fiber.NewError(fiber.StatusNotFound, "template not found: "+req.Template))
		}
		in = card.Input()
	}

	if err := sess.SetDraft(in); err != nil {
		return fail(c, err)
	}
	s.persist(c, sess)
	return c.JSON(sess.Draft())
}

// session resolves the :id route parameter to a live session.
func (s *Server) session(c *fiber.Ctx) (*session.Session, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "session id required")
	}
	return s.config.Sessions.Get(c.Context(), id)
}

// persist saves the session snapshot. Failures are logged; the in-memory
// session stays authoritative until the next save.
func (s *Server) persist(c *fiber.Ctx, sess *session.Session) {
	if err := s.config.Sessions.Save(c.Context(), sess); err != nil {
		s.config.Logger.Error("failed to save session",
			"session_id", sess.ID(),
			"error", err,
		)
	}
}

