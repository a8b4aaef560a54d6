// Package security guards file names taken from the environment against
// escaping their mount directories.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned for a path that resolves outside its directory.
var ErrPathEscape = errors.New("security: path escapes its directory")

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't escape
// the specified safe directory. This includes protection against symlink-based attacks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := canonical(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathEscape, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("%w: %s leaves %s", ErrPathEscape, filePath, safeDir)
	}
	return nil
}

// canonical resolves symlinks in path. Files that do not exist yet, such
// as report outputs, are resolved through their nearest existing parent so
// /out/link/report.db with link -> /etc is still caught.
func canonical(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	checkPath := absPath
	for {
		parentDir := filepath.Dir(checkPath)
		if parentDir == checkPath {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
			relToParent, _ := filepath.Rel(parentDir, absPath)
			return filepath.Join(resolved, relToParent)
		}
		checkPath = parentDir
	}
}

// JoinWithin joins name onto dir and rejects the result when it leaves
// dir. An empty dir returns name unchanged, and an empty name stays empty.
func JoinWithin(dir, name string) (string, error) {
	if dir == "" || name == "" {
		return name, nil
	}
	path := filepath.Join(dir, name)
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}
