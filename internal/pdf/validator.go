package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidPDF wraps every validation failure.
var ErrInvalidPDF = errors.New("invalid PDF")

// Validator checks that a file on disk is a readable PDF within size limits
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// Validate returns nil when filePath is a non-empty, parseable PDF.
func (v *Validator) Validate(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("%w: path cannot be empty", ErrInvalidPDF)
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: file does not exist: %s", ErrInvalidPDF, filePath)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if err := v.ValidateFileInfo(filePath, fileInfo); err != nil {
		return err
	}

	f, _, err := pdf.Open(filePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer f.Close()

	return nil
}

// IsValidPDF performs a quick check to see if a file is a valid PDF
func (v *Validator) IsValidPDF(filePath string) bool {
	return v.Validate(filePath) == nil
}

// ValidateFileInfo checks type and size without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("%w: path is a directory, not a file: %s", ErrInvalidPDF, filePath)
	}

	if !strings.HasSuffix(strings.ToLower(filePath), ".pdf") {
		return fmt.Errorf("%w: file is not a PDF: %s", ErrInvalidPDF, filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("%w: file is empty: %s", ErrInvalidPDF, filePath)
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("%w: file too large: %d bytes (max: %d bytes)",
			ErrInvalidPDF, fileInfo.Size(), v.maxFileSize)
	}

	return nil
}
