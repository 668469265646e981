package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
)

// ErrFileNotInSession is returned when a file id is not part of the session.
var ErrFileNotInSession = errors.New("file not found in session")

// Manager implements the session operations the API needs on top of a Store.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager wraps store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

func newState(id string) *models.SessionState {
	return &models.SessionState{
		SessionID:   id,
		PDFFiles:    []models.PDFFileInfo{},
		ChatHistory: []models.ChatMessage{},
		CreatedAt:   time.Now().UTC(),
	}
}

// Create starts a session with a fresh id.
func (m *Manager) Create(ctx context.Context) (*models.SessionState, error) {
	state := newState(uuid.NewString())
	if err := m.store.Create(ctx, state); err != nil {
		return nil, err
	}
	m.logger.Info("session created", zap.String("session_id", state.SessionID))
	return state, nil
}

// Get returns the session or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*models.SessionState, error) {
	return m.store.Get(ctx, id)
}

// GetOrCreate returns the session, creating an empty one under id if needed.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*models.SessionState, error) {
	state, err := m.store.Get(ctx, id)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	state = newState(id)
	if err := m.store.Create(ctx, state); err != nil {
		if errors.Is(err, ErrExists) {
			return m.store.Get(ctx, id)
		}
		return nil, err
	}
	m.logger.Info("session created", zap.String("session_id", id))
	return state, nil
}

// List returns all session ids.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Delete removes the session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// AddFile appends files to the session. The first PDF of a session becomes
// the current file.
func (m *Manager) AddFile(ctx context.Context, id string, files ...models.PDFFileInfo) (*models.SessionState, error) {
	if _, err := m.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Update(ctx, id, func(s *models.SessionState) error {
		s.PDFFiles = append(s.PDFFiles, files...)
		if s.CurrentPDFID == "" {
			s.CurrentPDFID = firstPDF(s.PDFFiles)
		}
		return nil
	})
}

// RemoveFile drops a file from the session. When it was the current file the
// first remaining PDF (if any) becomes current.
func (m *Manager) RemoveFile(ctx context.Context, id, fileID string) (*models.SessionState, error) {
	return m.store.Update(ctx, id, func(s *models.SessionState) error {
		kept := s.PDFFiles[:0]
		found := false
		for _, f := range s.PDFFiles {
			if f.ID == fileID {
				found = true
				continue
			}
			kept = append(kept, f)
		}
		if !found {
			return ErrFileNotInSession
		}
		s.PDFFiles = kept
		if s.CurrentPDFID == fileID {
			s.CurrentPDFID = firstPDF(kept)
		}
		return nil
	})
}

// SetCurrentFile marks fileID as the file single-input operations act on.
func (m *Manager) SetCurrentFile(ctx context.Context, id, fileID string) (*models.SessionState, error) {
	return m.store.Update(ctx, id, func(s *models.SessionState) error {
		if _, ok := s.FindFile(fileID); !ok {
			return ErrFileNotInSession
		}
		s.CurrentPDFID = fileID
		return nil
	})
}

// AppendMessage adds messages to the transcript in order.
func (m *Manager) AppendMessage(ctx context.Context, id string, msgs ...models.ChatMessage) (*models.SessionState, error) {
	if _, err := m.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Update(ctx, id, func(s *models.SessionState) error {
		for _, msg := range msgs {
			if msg.SessionID != id {
				return fmt.Errorf("message %s belongs to session %q", msg.ID, msg.SessionID)
			}
		}
		s.ChatHistory = append(s.ChatHistory, msgs...)
		return nil
	})
}

// ClearHistory empties the transcript, creating the session if needed.
func (m *Manager) ClearHistory(ctx context.Context, id string) error {
	if _, err := m.GetOrCreate(ctx, id); err != nil {
		return err
	}
	_, err := m.store.Update(ctx, id, func(s *models.SessionState) error {
		s.ChatHistory = []models.ChatMessage{}
		return nil
	})
	return err
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func firstPDF(files []models.PDFFileInfo) string {
	for _, f := range files {
		if f.IsPDF() {
			return f.ID
		}
	}
	return ""
}
