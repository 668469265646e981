package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathGuard confines file paths to a root directory
type PathGuard struct {
	root string
}

// NewPathGuard creates a guard for root. The directory may not exist yet.
func NewPathGuard(root string) (*PathGuard, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	return &PathGuard{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory
func (g *PathGuard) Root() string {
	return g.root
}

// Join builds a path below root from elem and rejects anything that escapes it
func (g *PathGuard) Join(elem ...string) (string, error) {
	path := filepath.Join(append([]string{g.root}, elem...)...)
	if err := g.Check(path); err != nil {
		return "", err
	}
	return path, nil
}

// Check returns an error unless path lies inside root, following symlinks
// on both sides when they resolve.
func (g *PathGuard) Check(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	clean := filepath.Clean(abs)

	realPath := clean
	if info, err := os.Lstat(clean); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(clean); err == nil {
			realPath = resolved
		}
	}

	realRoot := g.root
	if resolved, err := filepath.EvalSymlinks(g.root); err == nil {
		realRoot = resolved
	}

	if !within(clean, g.root, realRoot) || !within(realPath, g.root, realRoot) {
		return fmt.Errorf("path is outside upload directory: %s", path)
	}
	return nil
}

func within(path string, roots ...string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
