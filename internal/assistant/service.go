// Package assistant runs the chat loop: a user message is turned into a
// command, the command into a PDF operation, and the outcome into an
// assistant reply that is stored in the session and pushed to the client.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/command"
	"github.com/a3tai/pdf-assistant/internal/files"
	"github.com/a3tai/pdf-assistant/internal/llm"
	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
	"github.com/a3tai/pdf-assistant/internal/session"
)

var (
	ErrEmptyMessage     = errors.New("message content is required")
	ErrMessageTooLong   = errors.New("message content is too long")
	ErrFilesNotFound    = errors.New("files not found in session")
	ErrNotPDFInput      = errors.New("input is not a PDF")
	ErrOperationFailed  = errors.New("operation failed")
	ErrOperationUnknown = errors.New("operation not found")
)

const (
	maxMessageLength = 1000
	textPreviewLimit = 2000
)

// Notifier pushes events to a connected client. The client id is the
// session id.
type Notifier interface {
	SendChatMessage(clientID string, msg models.ChatMessage) error
	SendOperationUpdate(clientID string, update models.OperationUpdate) error
}

// Service coordinates sessions, files, the PDF engine and the generator.
type Service struct {
	sessions  *session.Manager
	files     *files.Store
	pdf       *pdf.Service
	generator llm.Generator
	notifier  Notifier
	ops       *operationLog
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where push events go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithOperationTTL sets how long operation results stay queryable.
func WithOperationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ops = newOperationLog(ttl)
	}
}

// New creates the assistant service.
func New(sessions *session.Manager, store *files.Store, engine *pdf.Service, generator llm.Generator,
	logger *zap.Logger, opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		sessions:  sessions,
		files:     store,
		pdf:       engine,
		generator: generator,
		ops:       newOperationLog(time.Hour),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generator returns the command generator in use.
func (s *Service) Generator() llm.Generator {
	return s.generator
}

// HandleMessage records the user's message, acts on it and returns the
// assistant's reply. An empty sessionID starts a new session.
func (s *Service) HandleMessage(ctx context.Context, sessionID, content string) (models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if len([]rune(content)) > maxMessageLength {
		return models.ChatMessage{}, fmt.Errorf("%w: maximum is %d characters", ErrMessageTooLong, maxMessageLength)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return models.ChatMessage{}, err
	}

	userMsg := newMessage(sessionID, models.MessageUser, content)
	state, err = s.sessions.AppendMessage(ctx, sessionID, userMsg)
	if err != nil {
		return models.ChatMessage{}, err
	}

	reply := s.respond(ctx, state, content)

	if _, err := s.sessions.AppendMessage(ctx, sessionID, reply); err != nil {
		return models.ChatMessage{}, err
	}
	s.pushChat(sessionID, reply)
	return reply, nil
}

func (s *Service) respond(ctx context.Context, state *models.SessionState, content string) models.ChatMessage {
	sid := state.SessionID
	req := llm.Request{
		Message:    content,
		FilesCount: len(state.PDFDocuments()),
		History:    state.ChatHistory,
	}
	if current := currentFile(state); current != nil {
		req.PageCount = current.PageCount
	}

	raw, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("command generation failed", zap.String("session_id", sid), zap.Error(err))
		return newMessage(sid, models.MessageAssistant,
			"Sorry, I couldn't process that request right now: "+err.Error())
	}

	plan, err := command.Parse(raw)
	switch {
	case errors.Is(err, command.ErrNoCommand):
		// Plain text from the generator is a conversational answer.
		return newMessage(sid, models.MessageAssistant, strings.TrimSpace(raw))
	case err != nil:
		s.logger.Info("unusable command", zap.String("session_id", sid), zap.Error(err))
		return newMessage(sid, models.MessageAssistant,
			"I couldn't turn that into a valid PDF operation ("+err.Error()+"). Could you rephrase it?")
	}

	if len(state.PDFDocuments()) == 0 {
		return newMessage(sid, models.MessageAssistant,
			fmt.Sprintf("Please upload a PDF first, then I can run %q for you.", displayName(plan.Operation)))
	}

	inputs := command.SelectInputs(plan, state.PDFFiles, state.CurrentPDFID)
	if plan.Operation == models.OpMergePDFs && len(inputs) < 2 {
		return newMessage(sid, models.MessageAssistant, "Upload at least two PDFs and I can merge them.")
	}

	resp, err := s.run(ctx, sid, plan.Operation, inputs, plan.Parameters)
	msg := newMessage(sid, models.MessageAssistant, summarize(resp, err))
	msg.OperationResult = &models.OperationResult{
		OperationID:   resp.OperationID,
		OperationType: resp.OperationType,
		Status:        resp.Status,
		ResultFiles:   resp.ResultFiles,
		ExtractedText: resp.ExtractedText,
		ErrorMessage:  resp.ErrorMessage,
	}
	return msg
}

// PerformOperation runs an operation requested directly by id.
func (s *Service) PerformOperation(ctx context.Context, req models.PDFOperationRequest) (*models.PDFOperationResponse, error) {
	if !req.OperationType.Valid() {
		return nil, fmt.Errorf("%w: %s", pdf.ErrUnsupportedOperation, req.OperationType)
	}

	state, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	var (
		inputs  []models.PDFFileInfo
		missing []string
		notPDF  []string
	)
	for _, id := range req.InputPDFIDs {
		f, ok := state.FindFile(id)
		switch {
		case !ok:
			missing = append(missing, id)
		case !f.IsPDF():
			notPDF = append(notPDF, f.Name)
		default:
			inputs = append(inputs, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrFilesNotFound, strings.Join(missing, ", "))
	}
	if len(notPDF) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotPDFInput, strings.Join(notPDF, ", "))
	}

	resp, err := s.run(ctx, req.SessionID, req.OperationType, inputs, req.Parameters)
	if err != nil {
		return &resp, err
	}
	return &resp, nil
}

// OperationStatus returns a recent operation's outcome.
func (s *Service) OperationStatus(operationID string) (models.PDFOperationResponse, error) {
	resp, ok := s.ops.get(operationID)
	if !ok {
		return models.PDFOperationResponse{}, ErrOperationUnknown
	}
	return resp, nil
}

// run performs op, registers the outputs with the session and reports
// progress. The returned response is always populated; err is non-nil when
// the operation failed.
func (s *Service) run(ctx context.Context, sessionID string, op models.OperationType,
	inputs []models.PDFFileInfo, params map[string]any,
) (models.PDFOperationResponse, error) {
	resp := models.PDFOperationResponse{
		OperationID:   uuid.NewString(),
		OperationType: op,
		Status:        models.StatusProcessing,
		ResultFiles:   []models.PDFFileInfo{},
		CreatedAt:     time.Now().UTC(),
	}
	s.ops.save(resp)
	s.pushUpdate(sessionID, resp, "Processing: "+displayName(op))

	logger := s.logger.With(
		zap.String("session_id", sessionID),
		zap.String("operation_id", resp.OperationID),
		zap.String("operation", string(op)))

	fail := func(err error) (models.PDFOperationResponse, error) {
		resp.Status = models.StatusFailed
		resp.ErrorMessage = err.Error()
		s.ops.save(resp)
		s.pushUpdate(sessionID, resp, resp.ErrorMessage)
		logger.Warn("operation failed", zap.Error(err))
		return resp, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}

	scratch, cleanup, err := s.files.ScratchDir(sessionID)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	pdfInputs := make([]pdf.Input, len(inputs))
	for i, f := range inputs {
		pdfInputs[i] = pdf.Input{Path: f.FilePath, Name: f.Name, Pages: f.PageCount}
	}

	result, err := s.pdf.Perform(ctx, op, pdfInputs, params, scratch)
	if err != nil {
		return fail(err)
	}

	parentID := inputs[0].ID
	for _, out := range result.Outputs {
		info, err := s.files.Register(sessionID, out, parentID)
		if err != nil {
			return fail(err)
		}
		resp.ResultFiles = append(resp.ResultFiles, info)
	}
	if len(resp.ResultFiles) > 0 {
		if _, err := s.sessions.AddFile(ctx, sessionID, resp.ResultFiles...); err != nil {
			return fail(err)
		}
	}

	resp.ExtractedText = result.Text
	resp.Status = models.StatusCompleted
	s.ops.save(resp)
	s.pushUpdate(sessionID, resp, displayName(op)+" completed")

	logger.Info("operation completed", zap.Int("results", len(resp.ResultFiles)))
	return resp, nil
}

func (s *Service) pushChat(sessionID string, msg models.ChatMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendChatMessage(sessionID, msg); err != nil {
		s.logger.Debug("chat push skipped", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) pushUpdate(sessionID string, resp models.PDFOperationResponse, message string) {
	if s.notifier == nil {
		return
	}
	update := models.OperationUpdate{
		OperationID:   resp.OperationID,
		OperationType: resp.OperationType,
		Status:        resp.Status,
		Message:       message,
	}
	if err := s.notifier.SendOperationUpdate(sessionID, update); err != nil {
		s.logger.Debug("operation push skipped", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func newMessage(sessionID string, kind models.MessageType, content string) models.ChatMessage {
	return models.ChatMessage{
		ID:          uuid.NewString(),
		Content:     content,
		MessageType: kind,
		Timestamp:   time.Now().UTC(),
		SessionID:   sessionID,
	}
}

func currentFile(state *models.SessionState) *models.PDFFileInfo {
	docs := state.PDFDocuments()
	if len(docs) == 0 {
		return nil
	}
	if f, ok := state.FindFile(state.CurrentPDFID); ok && f.IsPDF() {
		return &f
	}
	return &docs[0]
}

func displayName(op models.OperationType) string {
	for _, info := range pdf.Operations() {
		if info.Type == op {
			return info.Name
		}
	}
	return string(op)
}

func summarize(resp models.PDFOperationResponse, err error) string {
	if err != nil {
		return fmt.Sprintf("%s failed: %s", displayName(resp.OperationType), resp.ErrorMessage)
	}

	if resp.OperationType == models.OpExtractText {
		text := strings.TrimSpace(resp.ExtractedText)
		if text == "" {
			return "I couldn't find any text in that PDF."
		}
		r := []rune(text)
		if len(r) > textPreviewLimit {
			text = string(r[:textPreviewLimit]) + "\n\n[truncated, download the text file for the rest]"
		}
		return "Here is the extracted text:\n\n" + text
	}

	names := make([]string, len(resp.ResultFiles))
	for i, f := range resp.ResultFiles {
		names[i] = f.Name
	}
	switch len(names) {
	case 0:
		return displayName(resp.OperationType) + " completed."
	case 1:
		return fmt.Sprintf("%s completed. Created %s.", displayName(resp.OperationType), names[0])
	default:
		return fmt.Sprintf("%s completed. Created %d files: %s.",
			displayName(resp.OperationType), len(names), strings.Join(names, ", "))
	}
}
