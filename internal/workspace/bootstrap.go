// Package workspace seeds and loads the agent workspace: the bootstrap
// markdown files included in every system prompt and the long-term memory
// file under memory/.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// BootstrapFile is one workspace file seeded on first run. Name is a
// path relative to the workspace root.
type BootstrapFile struct {
	Name    string
	Content string
}

// BootstrapResult reports which files were written and which already
// existed.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// DefaultBootstrapFiles returns the starter set for a fresh workspace.
func DefaultBootstrapFiles() []BootstrapFile {
	return []BootstrapFile{
		{
			Name: "AGENTS.md",
			Content: `# AGENTS.md - Workspace Instructions

This folder is the agent's workspace. Files here persist across sessions.

## Layout

- memory/MEMORY.md - long-term memory, loaded into every system prompt
- memory/YYYY-MM-DD.md - daily notes
- skills/<name>/SKILL.md - custom skills
- sessions/ - conversation transcripts (managed automatically)

## Ground Rules

- Ask before acting on anything destructive or irreversible.
- Keep replies short for chat channels; long output goes into files.
- When you learn something durable about the user or the environment,
  record it in memory/MEMORY.md.
`,
		},
		{
			Name: "SOUL.md",
			Content: `# SOUL.md - Persona

You are a helpful, direct assistant.

- Be concise. Answer first, explain after.
- Admit uncertainty instead of guessing.
- Match the user's tone; skip filler and apologies.

Edit this file to reshape the agent's personality.
`,
		},
		{
			Name: "USER.md",
			Content: `# USER.md - User Profile

- Name:
- Preferred address:
- Pronouns (optional):
- Timezone (optional):
- Notes:
`,
		},
		{
			Name: "TOOLS.md",
			Content: `# TOOLS.md - Tool Notes

Notes the agent should know about your environment and tools.
Examples: preferred shell, paths that matter, MCP servers you run,
cron jobs the agent maintains.

(nothing yet)
`,
		},
		{
			Name: "IDENTITY.md",
			Content: `# IDENTITY.md - Agent Identity

- Name: aisbot
- Emoji: 🐈
- Vibe: calm, practical
`,
		},
		{
			Name: filepath.Join("memory", "MEMORY.md"),
			Content: `# Long-term Memory

Facts worth keeping across sessions. The agent reads this file into its
system prompt and appends to it when asked to remember something.
`,
		},
	}
}

// EnsureWorkspaceFiles creates root and writes any of files that are
// missing. Existing files are left alone unless overwrite is set.
func EnsureWorkspaceFiles(root string, files []BootstrapFile, overwrite bool) (*BootstrapResult, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}

	result := &BootstrapResult{}
	for _, f := range files {
		path := filepath.Join(root, f.Name)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, f.Name)
				continue
			} else if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat %s: %w", path, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		result.Created = append(result.Created, f.Name)
	}
	return result, nil
}
