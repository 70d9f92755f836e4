package files

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aisbot/aisbot/internal/tools"
)

// ListDirTool lists directory entries.
type ListDirTool struct {
	resolver Resolver
}

// NewListDirTool creates a list tool scoped to the workspace.
func NewListDirTool(cfg Config) *ListDirTool {
	return &ListDirTool{resolver: Resolver{Root: cfg.Workspace, Restrict: cfg.Restrict}}
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory. Defaults to the workspace root."
}

func (t *ListDirTool) Source() tools.Source { return tools.SourceLocal }

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list (default: workspace root)",
			},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := tools.StringArg(args, "path", ".")
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
			continue
		}
		size := int64(0)
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Name(), size)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
