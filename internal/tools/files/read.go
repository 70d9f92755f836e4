package files

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aisbot/aisbot/internal/tools"
)

const defaultMaxReadBytes = 200000

// ReadTool reads file contents, capped to a byte limit.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = defaultMaxReadBytes
	}
	return &ReadTool{
		resolver: Resolver{Root: cfg.Workspace, Restrict: cfg.Restrict},
		maxBytes: limit,
	}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read the contents of a file. Paths are relative to the workspace."
}

func (t *ReadTool) Source() tools.Source { return tools.SourceLocal }

func (t *ReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	resolved, err := t.resolver.Resolve(tools.StringArg(args, "path", ""))
	if err != nil {
		return "", err
	}

	file, err := os.Open(resolved)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf, err := io.ReadAll(io.LimitReader(file, int64(t.maxBytes)+1))
	if err != nil {
		return "", err
	}
	if len(buf) > t.maxBytes {
		return string(buf[:t.maxBytes]) + fmt.Sprintf("\n... (truncated at %d bytes)", t.maxBytes), nil
	}
	return string(buf), nil
}
