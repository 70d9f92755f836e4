package files

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aisbot/aisbot/internal/tools"
)

// EditTool applies an in-place find/replace edit to a file.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace, Restrict: cfg.Restrict}}
}

func (t *EditTool) Name() string { return "edit_file" }

func (t *EditTool) Description() string {
	return "Replace text in a file. old_text must match exactly; by default only the first occurrence is replaced."
}

func (t *EditTool) Source() tools.Source { return tools.SourceLocal }

func (t *EditTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to edit",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "Exact text to replace",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace every occurrence (default: first only)",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := tools.StringArg(args, "path", "")
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	oldText := tools.StringArg(args, "old_text", "")
	newText := tools.StringArg(args, "new_text", "")
	if oldText == "" {
		return "", fmt.Errorf("old_text is required")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	content := string(data)
	count := strings.Count(content, oldText)
	if count == 0 {
		return "", fmt.Errorf("old_text not found in %s", path)
	}

	replaced := 1
	if tools.BoolArg(args, "replace_all", false) {
		content = strings.ReplaceAll(content, oldText, newText)
		replaced = count
	} else {
		content = strings.Replace(content, oldText, newText, 1)
	}

	info, err := os.Stat(resolved)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(resolved, []byte(content), mode); err != nil {
		return "", err
	}
	return fmt.Sprintf("Edited %s (%d replacement(s))", path, replaced), nil
}
