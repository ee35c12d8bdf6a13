package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/session"
)

// QuestionRequest submits a question. An empty Question submits the session's
// input draft instead.
type QuestionRequest struct {
	Question string `json:"question"`
}

// QuestionResponse acknowledges a submitted question. Reply is only set for
// synchronous submissions.
type QuestionResponse struct {
	Session      string        `json:"session"`
	Conversation string        `json:"conversation"`
	Question     string        `json:"question"`
	Reply        *chat.Message `json:"reply,omitempty"`
}

// handleSubmitQuestion starts a turn on the current conversation. By default
// the turn runs in the background and the request returns 202; progress is
// observed through the events stream. With ?wait=true the request blocks
// until the reply is final.
func (s *Server) handleSubmitQuestion(c *fiber.Ctx) error {
	var req QuestionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
		}
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	question := req.Question
	if strings.TrimSpace(question) == "" {
		question = sess.Draft().Resolve()
	}
	if strings.TrimSpace(question) == "" {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "question is required"))
	}

	ctx, done, err := s.begin(sess.ID())
	if err != nil {
		return fail(c, err)
	}

	resp := QuestionResponse{
		Session:      sess.ID(),
		Conversation: sess.Current(),
		Question:     question,
	}

	if c.QueryBool("wait") {
		defer done()
		reply, err := s.submit(ctx, sess, question)
		if err != nil {
			return fail(c, err)
		}
		resp.Reply = reply
		return c.JSON(resp)
	}

	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		defer done()
		_, _ = s.submit(ctx, sess, question)
	}()

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// handleCancelTurn cancels the session's running turn.
func (s *Server) handleCancelTurn(c *fiber.Ctx) error {
	id := c.Params("id")

	s.mu.Lock()
	cancel, ok := s.inflight[id]
	s.mu.Unlock()

	if !ok {
		return fail(c, fiber.NewError(fiber.StatusConflict, "no turn in progress"))
	}
	cancel()
	return c.SendStatus(fiber.StatusAccepted)
}

// begin reserves the session for one turn. It fails with
// chat.ErrTurnInProgress while a turn submitted through this server runs.
func (s *Server) begin(id string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[id]; ok {
		return nil, nil, chat.ErrTurnInProgress
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.inflight[id] = cancel

	done := func() {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.inflight, id)
	}
	return ctx, done, nil
}

// submit runs one turn and persists the session afterwards, whatever the
// outcome.
func (s *Server) submit(ctx context.Context, sess *session.Session, question string) (*chat.Message, error) {
	reply, err := s.controller(sess).Submit(ctx, question)

	if !errors.Is(err, session.ErrSessionClosed) && !sess.Closed() {
		if saveErr := s.config.Sessions.Save(context.WithoutCancel(ctx), sess); saveErr != nil {
			s.config.Logger.Error("failed to save session",
				"session_id", sess.ID(),
				"error", saveErr,
			)
		}
	}

	if err != nil {
		s.config.Logger.Warn("turn failed",
			"session_id", sess.ID(),
			"error", err,
		)
	}
	return reply, err
}
