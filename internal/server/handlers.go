package server

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
)

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "PDF Assistant API",
		"version": s.cfg.Version,
		"health":  "/health",
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"message": "PDF Assistant API is running",
	})
}

// Files

func (s *Server) handleUpload(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.FormValue("session_id"))
	if sessionID == "" {
		return &validationError{details: []models.ValidationDetail{{
			Loc: []string{"body", "session_id"}, Msg: "session_id is required", Type: "value_error.missing",
		}}}
	}

	header, err := c.FormFile("file")
	if err != nil {
		return &validationError{details: []models.ValidationDetail{{
			Loc: []string{"body", "file"}, Msg: "file is required", Type: "value_error.missing",
		}}}
	}
	if header.Size > s.deps.Files.MaxSize() {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("File size exceeds %dMB limit", s.deps.Files.MaxSize()/(1024*1024)))
	}

	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := s.deps.Files.Save(sessionID, header.Filename, src)
	if err != nil {
		return err
	}
	if _, err := s.deps.Sessions.AddFile(c.UserContext(), sessionID, info); err != nil {
		_ = s.deps.Files.Delete(info.ID)
		return err
	}

	return c.JSON(models.FileUploadResponse{
		FileID:     info.ID,
		Filename:   info.OriginalFilename,
		FileSize:   info.FileSize,
		PageCount:  info.PageCount,
		UploadPath: info.FilePath,
	})
}

func (s *Server) handleListFiles(c *fiber.Ctx) error {
	state, err := s.deps.Sessions.GetOrCreate(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return err
	}
	return c.JSON(state.PDFFiles)
}

func (s *Server) handleDeleteFile(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return &validationError{details: []models.ValidationDetail{{
			Loc: []string{"query", "session_id"}, Msg: "session_id is required", Type: "value_error.missing",
		}}}
	}

	if _, err := s.deps.Sessions.RemoveFile(c.UserContext(), sessionID, fileID); err != nil {
		return err
	}
	if err := s.deps.Files.Delete(fileID); err != nil {
		s.logger.Warn("file removed from session but not from disk", zap.String("file_id", fileID), zap.Error(err))
	}
	return c.JSON(fiber.Map{"message": "File deleted successfully"})
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	info, err := s.deps.Files.Get(c.Params("fileId"))
	if err != nil {
		return err
	}
	return c.Download(info.FilePath, info.Name)
}

func (s *Server) handleFileInfo(c *fiber.Ctx) error {
	info, err := s.deps.Files.Get(c.Params("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (s *Server) handleSetCurrent(c *fiber.Ctx) error {
	var req models.SetCurrentFileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	// Query parameters are accepted as well.
	if req.SessionID == "" {
		req.SessionID = c.Query("session_id")
	}
	if req.FileID == "" {
		req.FileID = c.Query("file_id")
	}
	if err := check(&req); err != nil {
		return err
	}

	if _, err := s.deps.Sessions.SetCurrentFile(c.UserContext(), req.SessionID, req.FileID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Current PDF updated", "current_pdf_id": req.FileID})
}

// Chat

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req models.ChatMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	reply, err := s.deps.Assistant.HandleMessage(c.UserContext(), req.SessionID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	state, err := s.deps.Sessions.GetOrCreate(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return err
	}
	return c.JSON(state.ChatHistory)
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	if err := s.deps.Sessions.ClearHistory(c.UserContext(), c.Params("sessionId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Chat history cleared"})
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	ids, err := s.deps.Sessions.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(ids)
}

// Operations

func (s *Server) handlePerformOperation(c *fiber.Ctx) error {
	var req models.PDFOperationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	resp, err := s.deps.Assistant.PerformOperation(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) handleOperations(c *fiber.Ctx) error {
	return c.JSON(pdf.Operations())
}

func (s *Server) handleOperationStatus(c *fiber.Ctx) error {
	resp, err := s.deps.Assistant.OperationStatus(c.Params("operationId"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) handleOperationParameters(c *fiber.Ctx) error {
	op := models.OperationType(c.Params("type"))
	spec, ok := pdf.Parameters(op)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Operation type not found")
	}
	return c.JSON(fiber.Map{
		"operation_type": op,
		"parameters":     spec,
	})
}

// Sessions

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	state, err := s.deps.Sessions.Create(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(state)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	state, err := s.deps.Sessions.Get(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return err
	}
	return c.JSON(state)
}
