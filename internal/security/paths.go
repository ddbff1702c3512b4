// Package security validates file paths supplied over the HTTP API.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path escapes allowed directory")
	ErrNoAllowedDirs = errors.New("no allowed directories")
	ErrMapExtension  = errors.New("map files must end in .txt or .map")
)

// MapExtensions are the file suffixes accepted for recorded maps.
var MapExtensions = []string{".txt", ".map"}

// canonical resolves p to an absolute path with symlinks evaluated. When p
// does not exist the nearest existing ancestor is resolved instead, so a
// symlinked parent cannot smuggle a new file outside the directory.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
	}
}

// WithinDirectory returns nil if path resolves to a location inside dir.
func WithinDirectory(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", dir, err)
	}
	d, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", dir, err)
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s not under %s", ErrPathTraversal, path, dir)
	}
	return nil
}

// WithinAnyDirectory returns nil if path is inside at least one of dirs.
func WithinAnyDirectory(path string, dirs []string) error {
	if len(dirs) == 0 {
		return ErrNoAllowedDirs
	}
	for _, dir := range dirs {
		if WithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be within one of %v", ErrPathTraversal, path, dirs)
}

// ValidateExportPath accepts paths under the system temp directory or the
// current working directory.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	return WithinAnyDirectory(path, []string{os.TempDir(), cwd})
}

// ValidateMapPath is ValidateExportPath plus a map file extension check.
func ValidateMapPath(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	ok := false
	for _, e := range MapExtensions {
		if ext == e {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrMapExtension, path)
	}
	return ValidateExportPath(path)
}
