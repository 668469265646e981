// Package files stores uploaded and generated documents on disk under
// <root>/<session-id>/<file-id><ext> and keeps an in-memory index of them.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/models"
	"github.com/a3tai/pdf-assistant/internal/pdf"
)

var (
	ErrNotFound       = errors.New("file not found")
	ErrNotPDF         = errors.New("only PDF files are allowed")
	ErrTooLarge       = errors.New("file too large")
	ErrInvalidFile    = errors.New("invalid PDF file")
	ErrInvalidSession = errors.New("invalid session id")
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Inspector reports page count and size of a PDF on disk.
type Inspector interface {
	Inspect(path string) (*pdf.FileStats, error)
}

// Store persists files and resolves ids back to paths
type Store struct {
	guard     *PathGuard
	maxSize   int64
	inspector Inspector
	logger    *zap.Logger

	mu    sync.RWMutex
	index map[string]models.PDFFileInfo
}

// NewStore creates the root directory if needed.
func NewStore(root string, maxSize int64, inspector Inspector, logger *zap.Logger) (*Store, error) {
	guard, err := NewPathGuard(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(guard.Root(), 0o750); err != nil {
		return nil, fmt.Errorf("cannot create upload directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		guard:     guard,
		maxSize:   maxSize,
		inspector: inspector,
		logger:    logger,
		index:     make(map[string]models.PDFFileInfo),
	}, nil
}

// Root returns the absolute upload directory.
func (s *Store) Root() string {
	return s.guard.Root()
}

// MaxSize returns the upload limit in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

func (s *Store) sessionDir(sessionID string) (string, error) {
	if !safeID.MatchString(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, sessionID)
	}
	dir, err := s.guard.Join(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("cannot create session directory: %w", err)
	}
	return dir, nil
}

// Save streams an upload to disk, validates it and indexes it.
func (s *Store) Save(sessionID, filename string, r io.Reader) (models.PDFFileInfo, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return models.PDFFileInfo{}, ErrNotPDF
	}

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return models.PDFFileInfo{}, err
	}

	id := uuid.NewString()
	path := filepath.Join(dir, id+".pdf")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return models.PDFFileInfo{}, fmt.Errorf("create upload: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return models.PDFFileInfo{}, fmt.Errorf("write upload: %w", err)
	}
	if written > s.maxSize {
		_ = os.Remove(path)
		return models.PDFFileInfo{}, fmt.Errorf("%w: maximum size is %dMB", ErrTooLarge, s.maxSize/(1024*1024))
	}

	stats, err := s.inspector.Inspect(path)
	if err != nil {
		_ = os.Remove(path)
		return models.PDFFileInfo{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	info := models.PDFFileInfo{
		ID:               id,
		Name:             name,
		OriginalFilename: name,
		FilePath:         path,
		FileSize:         stats.Size,
		PageCount:        stats.Pages,
		CreatedAt:        time.Now().UTC(),
	}
	s.put(info)

	s.logger.Info("file uploaded",
		zap.String("session_id", sessionID),
		zap.String("file_id", id),
		zap.String("filename", name),
		zap.Int64("size", stats.Size),
		zap.Int("pages", stats.Pages))
	return info, nil
}

// ScratchDir creates a temporary directory for one operation inside the
// session directory. The returned cleanup removes it.
func (s *Store) ScratchDir(sessionID string) (string, func(), error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", nil, err
	}
	scratch, err := os.MkdirTemp(dir, ".op-")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return scratch, func() { _ = os.RemoveAll(scratch) }, nil
}

// Register moves an operation output into the session directory and indexes
// it as a temporary file derived from parentID.
func (s *Store) Register(sessionID string, out pdf.Output, parentID string) (models.PDFFileInfo, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return models.PDFFileInfo{}, err
	}
	if err := s.guard.Check(out.Path); err != nil {
		return models.PDFFileInfo{}, err
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(out.Name))
	if ext == "" {
		ext = ".pdf"
	}
	dest := filepath.Join(dir, id+ext)
	if err := os.Rename(out.Path, dest); err != nil {
		return models.PDFFileInfo{}, fmt.Errorf("store result: %w", err)
	}

	info := models.PDFFileInfo{
		ID:               id,
		Name:             out.Name,
		OriginalFilename: out.Name,
		FilePath:         dest,
		FileSize:         out.Size,
		PageCount:        out.Pages,
		CreatedAt:        time.Now().UTC(),
		ParentID:         parentID,
		IsTemporary:      true,
	}
	s.put(info)
	return info, nil
}

func (s *Store) put(info models.PDFFileInfo) {
	s.mu.Lock()
	s.index[info.ID] = info
	s.mu.Unlock()
}

// Get returns the indexed metadata for fileID. Files written by an earlier
// process are found on disk and re-indexed.
func (s *Store) Get(fileID string) (models.PDFFileInfo, error) {
	if !safeID.MatchString(fileID) {
		return models.PDFFileInfo{}, ErrNotFound
	}

	s.mu.RLock()
	info, ok := s.index[fileID]
	s.mu.RUnlock()
	if ok {
		return info, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.guard.Root(), "*", fileID+".*"))
	if err != nil || len(matches) == 0 {
		return models.PDFFileInfo{}, ErrNotFound
	}
	path := matches[0]
	if err := s.guard.Check(path); err != nil {
		return models.PDFFileInfo{}, ErrNotFound
	}

	stat, err := os.Stat(path)
	if err != nil {
		return models.PDFFileInfo{}, ErrNotFound
	}
	info = models.PDFFileInfo{
		ID:               fileID,
		Name:             filepath.Base(path),
		OriginalFilename: filepath.Base(path),
		FilePath:         path,
		FileSize:         stat.Size(),
		CreatedAt:        stat.ModTime().UTC(),
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		if stats, err := s.inspector.Inspect(path); err == nil {
			info.PageCount = stats.Pages
		}
	}
	s.put(info)
	return info, nil
}

// Delete removes a file from disk and from the index.
func (s *Store) Delete(fileID string) error {
	info, err := s.Get(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(info.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}

	s.mu.Lock()
	delete(s.index, fileID)
	s.mu.Unlock()

	s.logger.Info("file deleted", zap.String("file_id", fileID))
	return nil
}

// DeleteSession removes every file stored for sessionID.
func (s *Store) DeleteSession(sessionID string) error {
	if !safeID.MatchString(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, sessionID)
	}
	dir, err := s.guard.Join(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for id, info := range s.index {
		if filepath.Dir(info.FilePath) == dir {
			delete(s.index, id)
		}
	}
	s.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session files: %w", err)
	}
	return nil
}
