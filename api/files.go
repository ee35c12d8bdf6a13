package api

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/export"
	"github.com/papercomputeco/parlor/pkg/upload"
)

const maxUploadSize = 32 << 20

// SavedFileResponse reports where a file was written.
type SavedFileResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int    `json:"size"`
}

// handleExport renders a conversation transcript. By default the transcript
// is returned as an attachment; with ?save=true it is written to the upload
// directory under exports/<session>/ instead.
func (s *Server) handleExport(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, err.Error()))
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	name := c.Params("name")
	msgs, err := sess.Messages(name)
	if err != nil {
		return fail(c, err)
	}

	conv := chat.Conversation{Name: name, Messages: msgs}
	now := time.Now()
	body, err := export.Render(format, conv, now)
	if err != nil {
		return fail(c, err)
	}
	fileName := export.FileName(format, conv, now)

	if c.QueryBool("save") {
		if s.config.Uploads == nil {
			return fail(c, fiber.NewError(fiber.StatusServiceUnavailable, "file saving is not configured"))
		}

		saved, err := s.config.Uploads.Save(path.Join("exports", sess.ID(), fileName), body)
		if err != nil {
			return fail(c, err)
		}
		s.config.Logger.Info("conversation exported",
			"session_id", sess.ID(),
			"conversation", name,
			"path", saved,
		)
		return c.Status(fiber.StatusCreated).JSON(SavedFileResponse{Name: fileName, Path: saved, Size: len(body)})
	}

	c.Set(fiber.HeaderContentType, format.MimeType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Send(body)
}

// handleSaveFile stores a multipart "file" upload under files/<session>/.
func (s *Server) handleSaveFile(c *fiber.Ctx) error {
	if s.config.Uploads == nil {
		return fail(c, fiber.NewError(fiber.StatusServiceUnavailable, "file saving is not configured"))
	}

	sess, err := s.session(c)
	if err != nil {
		return fail(c, err)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "file is required"))
	}
	if header.Size > maxUploadSize {
		return fail(c, fiber.NewError(fiber.StatusRequestEntityTooLarge, "file is too large"))
	}

	f, err := header.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fail(c, err)
	}

	fileName := upload.SanitizeName(path.Base(header.Filename))
	saved, err := s.config.Uploads.Save(path.Join("files", sess.ID(), fileName), data)
	if err != nil {
		return fail(c, err)
	}

	s.config.Logger.Info("file saved",
		"session_id", sess.ID(),
		"path", saved,
		"size", len(data),
	)
	return c.Status(fiber.StatusCreated).JSON(SavedFileResponse{Name: fileName, Path: saved, Size: len(data)})
}
