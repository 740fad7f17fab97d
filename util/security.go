package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal indicates a path traversal attempt was detected
var ErrPathTraversal = errors.New("path traversal attempt detected")

// ErrSymlinkNotAllowed indicates a symlink was detected and is not allowed
var ErrSymlinkNotAllowed = errors.New("symlink not allowed")

// ValidateFilePathRelaxed validates path format without confining it to a
// directory and returns the absolute form. Configured database paths go
// through this at startup; operators may point them anywhere, but traversal
// sequences and null bytes are still rejected.
func ValidateFilePathRelaxed(path string, checkSymlinks bool) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}

	// ".." is checked before Clean, which would normalize it away
	if strings.Contains(path, "..") {
		return "", ErrPathTraversal
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "\x00") {
		return "", fmt.Errorf("null bytes not allowed in path")
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}

	if checkSymlinks {
		fi, err := os.Lstat(absPath)
		if err == nil && fi.Mode()&os.ModeSymlink != 0 {
			return "", ErrSymlinkNotAllowed
		}
	}

	return absPath, nil
}
