package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/assistant"
	"github.com/a3tai/pdf-assistant/internal/command"
	"github.com/a3tai/pdf-assistant/internal/config"
	"github.com/a3tai/pdf-assistant/internal/descriptions"
	"github.com/a3tai/pdf-assistant/internal/files"
	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
	"github.com/a3tai/pdf-assistant/internal/session"
)

// Deps are the services the tools call into.
type Deps struct {
	Sessions  *session.Manager
	Files     *files.Store
	PDF       *pdf.Service
	Assistant *assistant.Service
	Logger    *zap.Logger
}

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	deps      Deps
	logger    *zap.Logger
	finder    *pdf.Finder
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Files == nil || deps.PDF == nil || deps.Assistant == nil {
		return nil, errors.New("sessions, files, pdf and assistant services are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		deps:      deps,
		logger:    logger,
		finder:    pdf.NewFinder(cfg.MaxFileSize),
		mcpServer: mcpServer,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_upload_path",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_upload_path")),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to add the file to"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	), s.handleUploadPath)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_find_local",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_find_local")),
		mcp.WithString("directory",
			mcp.Required(),
			mcp.Description("Directory to search, including subdirectories"),
		),
		mcp.WithString("query",
			mcp.Description("Words to match against file names (optional)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 100)"),
		),
	), s.handleFindLocal)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_session_files",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_session_files")),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to list"),
		),
	), s.handleSessionFiles)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_operation",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_operation")),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session holding the input files"),
		),
		mcp.WithString("operation_type",
			mcp.Required(),
			mcp.Description("One of: "+operationNames()),
		),
		mcp.WithArray("input_file_ids",
			mcp.Description("Ids of the input files (defaults to the current file, or all files for merge_pdfs)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("parameters",
			mcp.Description("Operation parameters, see pdf_operations"),
		),
	), s.handleOperation)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_operations",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_operations")),
	), s.handleOperations)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_extract_text",
		mcp.WithDescription(descriptions.GetToolDescription("pdf_extract_text")),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session holding the file"),
		),
		mcp.WithString("file_id",
			mcp.Description("File to read (defaults to the current file)"),
		),
		mcp.WithArray("pages",
			mcp.Description("1-based page numbers (defaults to all pages)"),
			mcp.Items(map[string]any{"type": "number"}),
		),
	), s.handleExtractText)
}

func (s *Server) handleUploadPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open %s: %v", path, err)), nil
	}
	defer f.Close()

	info, err := s.deps.Files.Save(sessionID, filepath.Base(path), f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.deps.Sessions.AddFile(ctx, sessionID, info)
	if err != nil {
		_ = s.deps.Files.Delete(info.ID)
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Added %s to session %s\n", info.Name, sessionID)
	text += fmt.Sprintf("File ID: %s\n", info.ID)
	text += fmt.Sprintf("Pages: %d\n", info.PageCount)
	text += fmt.Sprintf("Size: %d bytes\n", info.FileSize)
	if state.CurrentPDFID == info.ID {
		text += "This is now the current file.\n"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleFindLocal(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	directory, err := request.RequireString("directory")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()
	query, _ := args["query"].(string)
	limit := pdf.DefaultFindLimit
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	found, err := s.finder.Find(directory, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(found) == 0 {
		if query != "" {
			return mcp.NewToolResultText(fmt.Sprintf("No PDFs matching %q in %s.", query, directory)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("No PDFs in %s.", directory)), nil
	}

	text := fmt.Sprintf("Found %d PDF(s) in %s:\n", len(found), directory)
	for _, f := range found {
		text += fmt.Sprintf("  %s  %d bytes  %s\n", f.Path, f.Size, f.ModifiedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleSessionFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", sessionID, err)), nil
	}
	return mcp.NewToolResultText(formatFiles(state)), nil
}

func (s *Server) handleOperation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opName, err := request.RequireString("operation_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op := models.OperationType(opName)

	args := request.GetArguments()
	ids, err := stringList(args["input_file_ids"])
	if err != nil {
		return mcp.NewToolResultError("input_file_ids: " + err.Error()), nil
	}
	params := map[string]any{}
	if raw, ok := args["parameters"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("parameters must be an object"), nil
		}
		params = m
	}

	if len(ids) == 0 {
		state, err := s.deps.Sessions.Get(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", sessionID, err)), nil
		}
		plan := &command.Plan{Operation: op, Selection: command.SelectionFor(op)}
		for _, f := range command.SelectInputs(plan, state.PDFFiles, state.CurrentPDFID) {
			ids = append(ids, f.ID)
		}
		if len(ids) == 0 {
			return mcp.NewToolResultError("session has no files; add one with pdf_upload_path"), nil
		}
	}

	resp, err := s.deps.Assistant.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: op,
		InputPDFIDs:   ids,
		Parameters:    params,
		SessionID:     sessionID,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatOperation(resp)), nil
}

func (s *Server) handleOperations(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Supported PDF operations:\n")
	for _, info := range pdf.Operations() {
		fmt.Fprintf(&b, "\n%s (%s)\n  %s\n", info.Type, info.Name, info.Description)
		spec, ok := pdf.Parameters(info.Type)
		if !ok {
			continue
		}
		if len(spec.Required) > 0 {
			fmt.Fprintf(&b, "  required: %s\n", strings.Join(spec.Required, ", "))
		}
		if len(spec.Optional) > 0 {
			fmt.Fprintf(&b, "  optional: %s\n", strings.Join(spec.Optional, ", "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleExtractText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", sessionID, err)), nil
	}

	args := request.GetArguments()
	fileID, _ := args["file_id"].(string)
	if fileID == "" {
		fileID = state.CurrentPDFID
	}
	info, ok := state.FindFile(fileID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("file %q is not in session %s", fileID, sessionID)), nil
	}
	if !info.IsPDF() {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not a PDF", info.Name)), nil
	}

	pages, err := pdf.IntList(args, "pages")
	if err != nil {
		return mcp.NewToolResultError("pages: " + err.Error()), nil
	}

	text, err := s.deps.PDF.ExtractText(info.FilePath, pages)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultText(fmt.Sprintf("%s has no extractable text.", info.Name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Text of %s:\n\n%s", info.Name, text)), nil
}

// Run serves MCP over stdin/stdout until the client disconnects.
func (s *Server) Run(_ context.Context) error {
	s.logger.Info("starting MCP server on stdio",
		zap.String("name", s.config.ServerName),
		zap.String("upload_dir", s.deps.Files.Root()))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

func formatFiles(state *models.SessionState) string {
	if len(state.PDFFiles) == 0 {
		return fmt.Sprintf("Session %s has no files.", state.SessionID)
	}
	text := fmt.Sprintf("Session %s has %d file(s):\n", state.SessionID, len(state.PDFFiles))
	for _, f := range state.PDFFiles {
		marker := " "
		if f.ID == state.CurrentPDFID {
			marker = "*"
		}
		text += fmt.Sprintf("%s %s  %s  %d pages, %d bytes", marker, f.ID, f.Name, f.PageCount, f.FileSize)
		if f.ParentID != "" {
			text += "  (from " + f.ParentID + ")"
		}
		text += "\n"
	}
	return text
}

func formatOperation(resp *models.PDFOperationResponse) string {
	text := fmt.Sprintf("Operation %s %s\n", resp.OperationType, resp.Status)
	text += fmt.Sprintf("Operation ID: %s\n", resp.OperationID)
	if len(resp.ResultFiles) > 0 {
		text += "Results:\n"
		for _, f := range resp.ResultFiles {
			text += fmt.Sprintf("  %s  %s  %d pages\n", f.ID, f.Name, f.PageCount)
		}
	}
	if resp.ExtractedText != "" {
		text += "\nExtracted text:\n" + resp.ExtractedText + "\n"
	}
	return text
}

func operationNames() string {
	names := make([]string, len(models.AllOperations))
	for i, op := range models.AllOperations {
		names[i] = string(op)
	}
	return strings.Join(names, ", ")
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		// Some clients send arrays JSON-encoded.
		var out []string
		if err := json.Unmarshal([]byte(list), &out); err != nil {
			return []string{list}, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of ids, got %T", v)
	}
}
