package pdf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultFindLimit caps Find results when no limit is given.
const DefaultFindLimit = 100

// LocalFile is a PDF found on disk that can be added to a session.
type LocalFile struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Finder looks for PDFs below a directory
type Finder struct {
	validator *Validator
}

// NewFinder creates a Finder that skips files larger than maxFileSize.
func NewFinder(maxFileSize int64) *Finder {
	return &Finder{validator: NewValidator(maxFileSize)}
}

// Find walks directory and returns the PDFs whose names match query, most
// recently modified first. Symlinks leading outside directory are skipped.
func (f *Finder) Find(directory, query string, limit int) ([]LocalFile, error) {
	if directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultFindLimit
	}

	absDirectory, err := filepath.Abs(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory path: %w", err)
	}
	if st, err := os.Stat(absDirectory); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("directory does not exist: %s", directory)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var found []LocalFile

	err = filepath.WalkDir(absDirectory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal
			return nil //nolint:nilerr
		}

		within, err := isPathWithinDirectory(path, absDirectory)
		if err != nil || !within {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}
		if err := f.validator.ValidateFileInfo(path, info); err != nil {
			return nil //nolint:nilerr
		}
		if !matchesQuery(info.Name(), query) {
			return nil
		}

		found = append(found, LocalFile{
			Path:       path,
			Name:       info.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].ModifiedAt.After(found[j].ModifiedAt)
	})
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// isPathWithinDirectory resolves symlinks on both sides before comparing.
func isPathWithinDirectory(path, directory string) (bool, error) {
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to evaluate symlinks: %w", err)
		}
		realPath = path
	}
	realDir, err := filepath.EvalSymlinks(directory)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate directory symlinks: %w", err)
	}

	realPath = filepath.Clean(realPath)
	realDir = filepath.Clean(realDir)
	if realPath == realDir {
		return true, nil
	}
	return strings.HasPrefix(realPath, realDir+string(filepath.Separator)), nil
}

// matchesQuery matches a substring of the name, or every query word against
// some word of the name.
func matchesQuery(filename, query string) bool {
	if query == "" {
		return true
	}

	name := strings.TrimSuffix(strings.ToLower(filename), ".pdf")
	if strings.Contains(name, query) {
		return true
	}

	words := splitIntoWords(name)
	for _, q := range splitIntoWords(query) {
		found := false
		for _, w := range words {
			if strings.Contains(w, q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func splitIntoWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']':
			return true
		}
		return false
	})
}
