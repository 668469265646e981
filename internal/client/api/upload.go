package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadSize is the largest file the client will send.
const MaxUploadSize int64 = 10 * 1024 * 1024

var (
	ErrNotPDF       = errors.New("only PDF files are allowed")
	ErrFileTooLarge = errors.New("file size must be less than 10MB")
)

// ValidateUpload checks a local file before it is sent: it must have a .pdf
// extension, sniff as application/pdf and be at most MaxUploadSize bytes.
func ValidateUpload(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ErrNotPDF
	}

	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if st.IsDir() {
		return ErrNotPDF
	}
	if st.Size() > MaxUploadSize {
		return ErrFileTooLarge
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if !mt.Is("application/pdf") {
		return ErrNotPDF
	}
	return nil
}
