// Package security guards file paths supplied on the command line before
// flight data is written to them.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path resolves outside every
// permitted directory.
var ErrOutsideDirectory = errors.New("path outside permitted directory")

// canonical returns the absolute, symlink-free form of path. A path that does
// not exist yet is resolved through its nearest existing ancestor, so a new
// file under a symlinked directory is judged by where it would really land.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	var rest []string
	dir := abs
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}
}

// WithinDirectory reports an error unless path resolves inside dir.
// dir itself must exist.
func WithinDirectory(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	d, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s escapes %s", ErrOutsideDirectory, path, dir)
	}
	return nil
}

// WithinAnyDirectory accepts path if it resolves inside one of dirs.
func WithinAnyDirectory(path string, dirs ...string) error {
	if len(dirs) == 0 {
		return errors.New("no permitted directories")
	}
	for _, dir := range dirs {
		if WithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not under any of %v", ErrOutsideDirectory, path, dirs)
}

// ExportPath validates a destination for exported flight data. Exports may
// only go to the working directory or the temp directory.
func ExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	return WithinAnyDirectory(path, cwd, os.TempDir())
}

const maxFilenameLen = 128

// Filename turns an identifier such as a session ID into a safe file name
// stem. Runs of other characters collapse to a single underscore.
func Filename(id string) string {
	var b strings.Builder
	underscore := false
	for _, r := range id {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			underscore = r == '_'
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "session"
	}
	return out
}
