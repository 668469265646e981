package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/a3tai/pdf-assistant/internal/pdf/pdftest"
)

func TestValidator_Validate(t *testing.T) {
	tempDir := t.TempDir()

	validPDF := pdftest.Write(t, tempDir, "valid.pdf", 1)

	emptyPDF := filepath.Join(tempDir, "empty.pdf")
	if err := os.WriteFile(emptyPDF, nil, 0o600); err != nil {
		t.Fatalf("Failed to create empty file: %v", err)
	}

	textFile := filepath.Join(tempDir, "notes.txt")
	if err := os.WriteFile(textFile, []byte("hello"), 0o600); err != nil {
		t.Fatalf("Failed to create text file: %v", err)
	}

	corruptPDF := filepath.Join(tempDir, "corrupt.pdf")
	if err := os.WriteFile(corruptPDF, []byte("not really a pdf"), 0o600); err != nil {
		t.Fatalf("Failed to create corrupt file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		max     int64
		wantErr bool
	}{
		{name: "valid pdf", path: validPDF, max: 1 << 20},
		{name: "empty path", path: "", max: 1 << 20, wantErr: true},
		{name: "missing file", path: filepath.Join(tempDir, "missing.pdf"), max: 1 << 20, wantErr: true},
		{name: "directory", path: tempDir, max: 1 << 20, wantErr: true},
		{name: "wrong extension", path: textFile, max: 1 << 20, wantErr: true},
		{name: "empty file", path: emptyPDF, max: 1 << 20, wantErr: true},
		{name: "too large", path: validPDF, max: 10, wantErr: true},
		{name: "corrupt", path: corruptPDF, max: 1 << 20, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator(tt.max).Validate(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPDF) && tt.name != "directory" {
				t.Errorf("Validate() error %v does not wrap ErrInvalidPDF", err)
			}
		})
	}
}

func TestValidator_IsValidPDF(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(1 << 20)

	if !v.IsValidPDF(pdftest.Write(t, dir, "ok.pdf", 2)) {
		t.Error("IsValidPDF() = false for a generated PDF")
	}
	if v.IsValidPDF(filepath.Join(dir, "nope.pdf")) {
		t.Error("IsValidPDF() = true for a missing file")
	}
}
