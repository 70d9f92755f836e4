package spawn

import (
	"context"
	"strings"
	"testing"
)

type captureSpawner struct {
	task    string
	channel string
	chatID  string
	err     error
}

func (c *captureSpawner) Spawn(ctx context.Context, task, originChannel, originChatID string) (string, error) {
	c.task = task
	c.channel = originChannel
	c.chatID = originChatID
	if c.err != nil {
		return "", c.err
	}
	return "sub-1", nil
}

func TestSpawnCarriesOrigin(t *testing.T) {
	spawner := &captureSpawner{}
	tool := NewTool(spawner)
	tool.SetContext("telegram", "55")

	got, err := tool.Execute(context.Background(), map[string]any{"task": "collect links"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(got, "sub-1") {
		t.Errorf("result = %q", got)
	}
	if spawner.task != "collect links" {
		t.Errorf("task = %q", spawner.task)
	}
	if spawner.channel != "telegram" || spawner.chatID != "55" {
		t.Errorf("origin = %s:%s", spawner.channel, spawner.chatID)
	}
}

func TestSpawnDefaultsToCLI(t *testing.T) {
	spawner := &captureSpawner{}
	tool := NewTool(spawner)

	if _, err := tool.Execute(context.Background(), map[string]any{"task": "t"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if spawner.channel != "cli" || spawner.chatID != "direct" {
		t.Errorf("origin = %s:%s", spawner.channel, spawner.chatID)
	}
}

func TestSpawnLabelPrefixesTask(t *testing.T) {
	spawner := &captureSpawner{}
	tool := NewTool(spawner)
	tool.SetContext("cli", "u")

	if _, err := tool.Execute(context.Background(), map[string]any{
		"task":  "dig into logs",
		"label": "logs",
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(spawner.task, "[logs] ") {
		t.Errorf("task = %q", spawner.task)
	}
}

func TestSpawnRequiresTask(t *testing.T) {
	tool := NewTool(&captureSpawner{})
	tool.SetContext("cli", "u")

	if _, err := tool.Execute(context.Background(), map[string]any{"task": " "}); err == nil {
		t.Error("expected error for blank task")
	}
}
