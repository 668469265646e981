package pdf

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// FileStats is what the backend records about a PDF on disk.
type FileStats struct {
	Path  string
	Size  int64
	Pages int
}

// Inspect returns size and page count for a PDF.
func Inspect(path string) (*FileStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	pages, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	return &FileStats{
		Path:  path,
		Size:  info.Size(),
		Pages: pages,
	}, nil
}
