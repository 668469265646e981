package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/assistant"
	"github.com/a3tai/pdf-assistant/internal/files"
	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
	"github.com/a3tai/pdf-assistant/internal/session"
)

// validationError carries request validation failures to the error handler.
type validationError struct {
	details []models.ValidationDetail
}

func (e *validationError) Error() string {
	if len(e.details) == 0 {
		return "validation failed"
	}
	return e.details[0].Msg
}

var statusBySentinel = []struct {
	err    error
	status int
	detail string
}{
	{session.ErrNotFound, fiber.StatusNotFound, "Session not found"},
	{session.ErrFileNotInSession, fiber.StatusNotFound, "File not found in session"},
	{files.ErrNotFound, fiber.StatusNotFound, "File not found"},
	{assistant.ErrOperationUnknown, fiber.StatusNotFound, "Operation not found"},
	{files.ErrNotPDF, fiber.StatusBadRequest, "Only PDF files are allowed"},
	{files.ErrInvalidSession, fiber.StatusBadRequest, ""},
	{files.ErrInvalidFile, fiber.StatusBadRequest, ""},
	{assistant.ErrFilesNotFound, fiber.StatusBadRequest, ""},
	{assistant.ErrNotPDFInput, fiber.StatusBadRequest, ""},
	{assistant.ErrEmptyMessage, fiber.StatusBadRequest, ""},
	{assistant.ErrMessageTooLong, fiber.StatusBadRequest, ""},
	{pdf.ErrUnsupportedOperation, fiber.StatusBadRequest, ""},
	{pdf.ErrInvalidParameters, fiber.StatusBadRequest, ""},
	{files.ErrTooLarge, fiber.StatusRequestEntityTooLarge, ""},
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ve *validationError
	if errors.As(err, &ve) {
		return fiber.StatusUnprocessableEntity
	}
	for _, m := range statusBySentinel {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return fiber.StatusInternalServerError
}

func detailFor(err error) string {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	for _, m := range statusBySentinel {
		if errors.Is(err, m.err) && m.detail != "" {
			return m.detail
		}
	}
	return err.Error()
}

// errorHandler renders every error as {"detail": ...}. Validation failures
// carry a list of {loc, msg, type} entries instead of a string.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var ve *validationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": ve.details})
	}

	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"detail": detailFor(err)})
}
