package assistant

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-assistant/internal/files"
	"github.com/a3tai/pdf-assistant/internal/llm"
	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
	"github.com/a3tai/pdf-assistant/internal/pdf/pdftest"
	"github.com/a3tai/pdf-assistant/internal/session"
)

type recorder struct {
	mu      sync.Mutex
	chats   []models.ChatMessage
	updates []models.OperationUpdate
}

func (r *recorder) SendChatMessage(_ string, msg models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, msg)
	return nil
}

func (r *recorder) SendOperationUpdate(_ string, update models.OperationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

type stubGenerator struct {
	out string
	err error
}

func (g stubGenerator) Generate(context.Context, llm.Request) (string, error) { return g.out, g.err }
func (g stubGenerator) Name() string                                         { return "stub" }

type fixture struct {
	svc      *Service
	sessions *session.Manager
	store    *files.Store
	rec      *recorder
}

func newFixture(t *testing.T, gen llm.Generator) *fixture {
	t.Helper()
	engine := pdf.NewService(10*1024*1024, nil)
	store, err := files.NewStore(t.TempDir(), 10*1024*1024, engine, nil)
	require.NoError(t, err)
	backing, err := session.NewStore(session.StoreTypeMemory)
	require.NoError(t, err)
	sessions := session.NewManager(backing, nil)
	rec := &recorder{}
	svc := New(sessions, store, engine, gen, nil, WithNotifier(rec))
	return &fixture{svc: svc, sessions: sessions, store: store, rec: rec}
}

func (f *fixture) upload(t *testing.T, sessionID, name string, pages int) models.PDFFileInfo {
	t.Helper()
	info, err := f.store.Save(sessionID, name, bytes.NewReader(pdftest.Document(pages)))
	require.NoError(t, err)
	_, err = f.sessions.AddFile(context.Background(), sessionID, info)
	require.NoError(t, err)
	return info
}

func TestHandleMessageRunsOperation(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	ctx := context.Background()
	src := f.upload(t, "s1", "report.pdf", 4)

	reply, err := f.svc.HandleMessage(ctx, "s1", "extract pages 1-2")
	require.NoError(t, err)

	assert.Equal(t, models.MessageAssistant, reply.MessageType)
	require.NotNil(t, reply.OperationResult)
	assert.Equal(t, models.StatusCompleted, reply.OperationResult.Status)
	assert.Equal(t, models.OpExtractPages, reply.OperationResult.OperationType)
	require.Len(t, reply.OperationResult.ResultFiles, 1)
	out := reply.OperationResult.ResultFiles[0]
	assert.Equal(t, 2, out.PageCount)
	assert.Equal(t, src.ID, out.ParentID)
	assert.True(t, out.IsTemporary)

	state, err := f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.ChatHistory, 2)
	assert.Equal(t, models.MessageUser, state.ChatHistory[0].MessageType)
	assert.Equal(t, "extract pages 1-2", state.ChatHistory[0].Content)
	assert.Equal(t, reply.ID, state.ChatHistory[1].ID)
	assert.Len(t, state.PDFFiles, 2)
	assert.Equal(t, src.ID, state.CurrentPDFID)

	status, err := f.svc.OperationStatus(reply.OperationResult.OperationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	require.Len(t, f.rec.updates, 2)
	assert.Equal(t, models.StatusProcessing, f.rec.updates[0].Status)
	assert.Equal(t, models.StatusCompleted, f.rec.updates[1].Status)
	require.Len(t, f.rec.chats, 1)
	assert.Equal(t, reply.ID, f.rec.chats[0].ID)
}

func TestHandleMessageExtractText(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	f.upload(t, "s1", "notes.pdf", 2)

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "extract the text from page 2")
	require.NoError(t, err)
	require.NotNil(t, reply.OperationResult)
	assert.Contains(t, reply.OperationResult.ExtractedText, "Page 2 Text")
	assert.Contains(t, reply.Content, "Page 2 Text")
}

func TestHandleMessageWithoutFiles(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "compress it")
	require.NoError(t, err)
	assert.Nil(t, reply.OperationResult)
	assert.Contains(t, reply.Content, "upload a PDF first")
}

func TestHandleMessageConversational(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())

	reply, err := f.svc.HandleMessage(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, llm.HelpReply, reply.Content)
	assert.NotEmpty(t, reply.SessionID)

	ids, err := f.sessions.List(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, reply.SessionID)
}

func TestHandleMessageGeneratorFailure(t *testing.T) {
	f := newFixture(t, stubGenerator{err: errors.New("quota exceeded")})

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "merge")
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "quota exceeded")
}

func TestHandleMessageInvalidCommand(t *testing.T) {
	f := newFixture(t, stubGenerator{out: `<method_name>rotate_pages</method_name><parameters>{"pages":[1],"rotation":45}</parameters>`})
	f.upload(t, "s1", "a.pdf", 1)

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "rotate a bit")
	require.NoError(t, err)
	assert.Nil(t, reply.OperationResult)
	assert.Contains(t, reply.Content, "rephrase")
}

func TestHandleMessageFailedOperation(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	f.upload(t, "s1", "short.pdf", 2)

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "extract page 9")
	require.NoError(t, err)
	require.NotNil(t, reply.OperationResult)
	assert.Equal(t, models.StatusFailed, reply.OperationResult.Status)
	assert.NotEmpty(t, reply.OperationResult.ErrorMessage)
	assert.Contains(t, reply.Content, "failed")

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	assert.Equal(t, models.StatusFailed, f.rec.updates[len(f.rec.updates)-1].Status)
}

func TestHandleMessageValidation(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())

	_, err := f.svc.HandleMessage(context.Background(), "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.HandleMessage(context.Background(), "s1", string(long))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestMergeNeedsTwoFiles(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	f.upload(t, "s1", "only.pdf", 1)

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "merge everything")
	require.NoError(t, err)
	assert.Nil(t, reply.OperationResult)
	assert.Contains(t, reply.Content, "at least two")
}

func TestPerformOperation(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	ctx := context.Background()
	a := f.upload(t, "s1", "a.pdf", 1)
	b := f.upload(t, "s1", "b.pdf", 2)

	resp, err := f.svc.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: models.OpMergePDFs,
		InputPDFIDs:   []string{a.ID, b.ID},
		SessionID:     "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resp.Status)
	require.Len(t, resp.ResultFiles, 1)
	assert.Equal(t, 3, resp.ResultFiles[0].PageCount)
	assert.Equal(t, a.ID, resp.ResultFiles[0].ParentID)

	got, err := f.svc.OperationStatus(resp.OperationID)
	require.NoError(t, err)
	assert.Equal(t, resp.OperationID, got.OperationID)
}

func TestPerformOperationErrors(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	ctx := context.Background()
	a := f.upload(t, "s1", "a.pdf", 1)

	_, err := f.svc.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: models.OpCompressPDF, InputPDFIDs: []string{a.ID}, SessionID: "missing",
	})
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = f.svc.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: models.OpCompressPDF, InputPDFIDs: []string{a.ID, "ghost"}, SessionID: "s1",
	})
	assert.ErrorIs(t, err, ErrFilesNotFound)

	_, err = f.svc.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: "get_metadata", InputPDFIDs: []string{a.ID}, SessionID: "s1",
	})
	assert.ErrorIs(t, err, pdf.ErrUnsupportedOperation)

	resp, err := f.svc.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: models.OpRotatePages, InputPDFIDs: []string{a.ID}, SessionID: "s1",
		Parameters: map[string]any{"rotation": 45},
	})
	assert.ErrorIs(t, err, ErrOperationFailed)
	require.NotNil(t, resp)
	assert.Equal(t, models.StatusFailed, resp.Status)

	_, err = f.svc.OperationStatus("nope")
	assert.ErrorIs(t, err, ErrOperationUnknown)
}

func TestTextOutputIsNotAnOperationInput(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	ctx := context.Background()
	a := f.upload(t, "s1", "a.pdf", 1)
	b := f.upload(t, "s1", "b.pdf", 2)

	reply, err := f.svc.HandleMessage(ctx, "s1", "extract text")
	require.NoError(t, err)
	require.NotNil(t, reply.OperationResult)
	require.Equal(t, models.StatusCompleted, reply.OperationResult.Status)
	require.Len(t, reply.OperationResult.ResultFiles, 1)
	txt := reply.OperationResult.ResultFiles[0]
	assert.False(t, txt.IsPDF())

	reply, err = f.svc.HandleMessage(ctx, "s1", "merge all files")
	require.NoError(t, err)
	require.NotNil(t, reply.OperationResult)
	assert.Equal(t, models.StatusCompleted, reply.OperationResult.Status, reply.Content)
	require.Len(t, reply.OperationResult.ResultFiles, 1)
	assert.Equal(t, 3, reply.OperationResult.ResultFiles[0].PageCount)

	// Removing the PDFs never leaves the text file current.
	_, err = f.sessions.RemoveFile(ctx, "s1", a.ID)
	require.NoError(t, err)
	state, err := f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, state.CurrentPDFID)

	reply, err = f.svc.HandleMessage(ctx, "s1", "compress it")
	require.NoError(t, err)
	require.NotNil(t, reply.OperationResult)
	assert.Equal(t, models.StatusCompleted, reply.OperationResult.Status, reply.Content)
	assert.Equal(t, b.ID, reply.OperationResult.ResultFiles[0].ParentID)

	_, err = f.svc.PerformOperation(ctx, models.PDFOperationRequest{
		OperationType: models.OpCompressPDF, InputPDFIDs: []string{txt.ID}, SessionID: "s1",
	})
	assert.ErrorIs(t, err, ErrNotPDFInput)
}

func TestOnlyTextOutputsLeftAsksForUpload(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	ctx := context.Background()
	a := f.upload(t, "s1", "a.pdf", 1)

	_, err := f.svc.HandleMessage(ctx, "s1", "extract text")
	require.NoError(t, err)
	_, err = f.sessions.RemoveFile(ctx, "s1", a.ID)
	require.NoError(t, err)

	state, err := f.sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state.CurrentPDFID)

	reply, err := f.svc.HandleMessage(ctx, "s1", "compress it")
	require.NoError(t, err)
	assert.Nil(t, reply.OperationResult)
	assert.Contains(t, reply.Content, "upload a PDF first")
}

func TestHandleMessageExtractTextWithoutTextLayer(t *testing.T) {
	f := newFixture(t, llm.NewRuleGenerator())
	info, err := f.store.Save("s1", "scan.pdf", bytes.NewReader(pdftest.Blank(1)))
	require.NoError(t, err)
	_, err = f.sessions.AddFile(context.Background(), "s1", info)
	require.NoError(t, err)

	reply, err := f.svc.HandleMessage(context.Background(), "s1", "read the text")
	require.NoError(t, err)
	require.NotNil(t, reply.OperationResult)
	assert.Equal(t, models.StatusCompleted, reply.OperationResult.Status)
	assert.Equal(t, "I couldn't find any text in that PDF.", reply.Content)
}
