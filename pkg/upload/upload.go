// Package upload saves files beneath a fixed upload directory. Paths are
// always relative to that directory and may never leave it.
package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for paths that are empty, absolute, or escape
// the upload directory.
var ErrInvalidPath = errors.New("invalid upload path")

// Dir is an upload directory.
type Dir struct {
	path string
}

// New returns a Dir rooted at path, creating it if needed.
func New(path string) (*Dir, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("upload directory is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving upload directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &Dir{path: abs}, nil
}

// Path returns the absolute upload directory.
func (d *Dir) Path() string {
	return d.path
}

// Save writes data to relPath beneath the upload directory, creating parent
// directories and truncating an existing file. It returns the absolute path
// of the written file.
func (d *Dir) Save(relPath string, data []byte) (string, error) {
	clean, err := Clean(relPath)
	if err != nil {
		return "", err
	}

	root, err := os.OpenRoot(d.path)
	if err != nil {
		return "", fmt.Errorf("opening upload directory: %w", err)
	}
	defer root.Close()

	if dir := filepath.Dir(clean); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	if err := root.WriteFile(clean, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", clean, err)
	}

	return filepath.Join(d.path, clean), nil
}

// Read returns the contents of relPath beneath the upload directory.
func (d *Dir) Read(relPath string) ([]byte, error) {
	clean, err := Clean(relPath)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(d.path)
	if err != nil {
		return nil, fmt.Errorf("opening upload directory: %w", err)
	}
	defer root.Close()

	return root.ReadFile(clean)
}

// Clean validates relPath and returns it in clean, OS-specific form.
func Clean(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	p := filepath.FromSlash(relPath)
	if filepath.IsAbs(p) || strings.HasPrefix(relPath, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, relPath)
	}

	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %q escapes the upload directory", ErrInvalidPath, relPath)
	}

	return filepath.Clean(p), nil
}

// SanitizeName turns a free-form title into a safe single file name.
func SanitizeName(s string) string {
	const maxLen = 50

	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			out = append(out, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = append(out, '_')
		case r < 32 || r == 127:
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}

	name := strings.Trim(string(out), ".")
	if name == "" {
		return "conversation"
	}
	return name
}
