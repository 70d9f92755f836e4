// Package spawn provides the spawn tool: fire-and-forget background agent
// runs whose results come back later as system messages.
package spawn

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aisbot/aisbot/internal/tools"
)

// Spawner starts background agent runs. The subagent manager satisfies it.
type Spawner interface {
	Spawn(ctx context.Context, task, originChannel, originChatID string) (string, error)
}

// Tool launches subagent tasks from the active conversation, so completion
// announcements route back to it.
type Tool struct {
	spawner Spawner

	mu      sync.Mutex
	channel string
	chatID  string
}

// NewTool creates a spawn tool.
func NewTool(spawner Spawner) *Tool {
	return &Tool{spawner: spawner}
}

func (t *Tool) Name() string { return "spawn" }

func (t *Tool) Description() string {
	return "Spawn a background subagent to work on a task. The result is announced to this conversation when it finishes."
}

func (t *Tool) Source() tools.Source { return tools.SourceLocal }

func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Task for the subagent to perform",
			},
			"label": map[string]any{
				"type":        "string",
				"description": "Optional short label for the task",
			},
		},
		"required": []string{"task"},
	}
}

// SetContext records the conversation the subagent reports back to.
func (t *Tool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.spawner == nil {
		return "", fmt.Errorf("subagent manager unavailable")
	}
	task := tools.StringArg(args, "task", "")
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task is required")
	}
	if label := tools.StringArg(args, "label", ""); label != "" {
		task = "[" + label + "] " + task
	}

	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()
	if channel == "" {
		channel = "cli"
	}
	if chatID == "" {
		chatID = "direct"
	}

	id, err := t.spawner.Spawn(ctx, task, channel, chatID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Spawned subagent %s; its result will be announced here.", id), nil
}
