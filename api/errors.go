package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/storage"
	"github.com/papercomputeco/parlor/pkg/upload"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	var fe *fiber.Error
	var streamErr *chat.AgentStreamError

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case chat.IsNotFound(err), storage.IsNotFound(err):
		return fiber.StatusNotFound
	case chat.IsDuplicate(err), errors.Is(err, chat.ErrTurnInProgress):
		return fiber.StatusConflict
	case errors.Is(err, chat.ErrEmptyName),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, upload.ErrInvalidPath):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrSessionClosed):
		return fiber.StatusGone
	case errors.As(err, &streamErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as an ErrorResponse with its mapped status.
func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(err)).JSON(ErrorResponse{Error: err.Error()})
}

// errorHandler is the fiber fallback for errors returned by handlers and for
// unmatched routes.
func errorHandler(c *fiber.Ctx, err error) error {
	return fail(c, err)
}
