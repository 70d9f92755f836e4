package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aisbot/aisbot/internal/tools"
)

// WriteTool writes file contents, creating parent directories as needed.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace, Restrict: cfg.Restrict}}
}

func (t *WriteTool) Name() string { return "write_file" }

func (t *WriteTool) Description() string {
	return "Write content to a file, overwriting any existing content. Parent directories are created."
}

func (t *WriteTool) Source() tools.Source { return tools.SourceLocal }

func (t *WriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	resolved, err := t.resolver.Resolve(tools.StringArg(args, "path", ""))
	if err != nil {
		return "", err
	}
	content := tools.StringArg(args, "content", "")

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), tools.StringArg(args, "path", "")), nil
}
