// Package files provides the workspace file tools: read_file, write_file,
// edit_file and list_dir. Paths resolve relative to the agent workspace;
// with restriction enabled, escapes above the workspace root are rejected.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config controls filesystem tool defaults.
type Config struct {
	// Workspace is the root directory relative paths resolve against.
	Workspace string

	// Restrict confines resolved paths to the workspace root.
	Restrict bool

	// MaxReadBytes caps read_file output. Zero means the package default.
	MaxReadBytes int
}

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root     string
	Restrict bool
}

// Resolve returns an absolute, cleaned path. With Restrict set, a path that
// lands outside the workspace root is an error.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if clean == "~" || strings.HasPrefix(clean, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			clean = filepath.Join(home, strings.TrimPrefix(clean, "~"))
		}
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !r.Restrict {
		return targetAbs, nil
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return targetAbs, nil
}
