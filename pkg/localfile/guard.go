// Package localfile opens local documents for upload and reading, restricted
// to a set of allowed directories.
package localfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// ErrLocalIO is matched by every *LocalIOError.
var ErrLocalIO = errors.New("local file error")

// LocalIOError reports a local path that could not be used.
type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local file %s: %v", e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() []error { return []error{ErrLocalIO, e.Err} }

// Guard resolves paths against allowed roots on a file system. An empty root
// list permits any path.
type Guard struct {
	fs    afero.Fs
	roots []string
}

// NewGuard uses the OS file system when fs is nil.
func NewGuard(fs afero.Fs, allowedDirs []string) *Guard {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Guard{fs: fs, roots: normalizeAllowedDirs(allowedDirs)}
}

// Roots returns the normalized allowed directories.
func (g *Guard) Roots() []string { return append([]string(nil), g.roots...) }

// Resolve validates path and returns its absolute form.
func (g *Guard) Resolve(path string) (string, error) {
	abs, err := validatePathWithAllowedDirs(path, g.roots)
	if err != nil {
		return "", &LocalIOError{Path: path, Err: err}
	}
	return abs, nil
}

// Open resolves path and opens it for reading. Directories are rejected.
func (g *Guard) Open(path string) (afero.File, error) {
	abs, err := g.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := g.fs.Stat(abs)
	if err != nil {
		return nil, &LocalIOError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &LocalIOError{Path: path, Err: fmt.Errorf("path is a directory")}
	}
	f, err := g.fs.Open(abs)
	if err != nil {
		return nil, &LocalIOError{Path: path, Err: err}
	}
	return f, nil
}

// ReadFile resolves path and returns its contents.
func (g *Guard) ReadFile(path string) ([]byte, error) {
	f, err := g.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := afero.ReadAll(f)
	if err != nil {
		return nil, &LocalIOError{Path: path, Err: err}
	}
	return data, nil
}

// normalizeAllowedDirs returns a sorted, deduplicated list of absolute directories.
func normalizeAllowedDirs(allowedDirs []string) []string {
	normalized := make([]string, 0, len(allowedDirs))
	seen := map[string]struct{}{}
	for _, dir := range allowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		normalized = append(normalized, abs)
	}
	slices.Sort(normalized)
	return normalized
}

func validatePathWithAllowedDirs(path string, roots []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if hasParentTraversal(cleanPath) {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if len(roots) == 0 {
		return absPath, nil
	}

	for _, root := range roots {
		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..") {
			return absPath, nil
		}
	}
	return "", fmt.Errorf("path outside allowed directories (allowed: %s)", strings.Join(roots, ", "))
}

// hasParentTraversal reports whether a path contains a parent directory segment.
func hasParentTraversal(cleanPath string) bool {
	for _, part := range strings.Split(cleanPath, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	return false
}

// IsNotExist reports whether err is a LocalIOError for a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrLocalIO) && errors.Is(err, os.ErrNotExist)
}
