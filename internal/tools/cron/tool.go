// Package cron provides the cron tool: scheduled-job management from inside
// a conversation. Added jobs default their routing to the conversation that
// created them.
package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"

	croncore "github.com/aisbot/aisbot/internal/cron"
	"github.com/aisbot/aisbot/internal/tools"
)

// Tool exposes cron job management to the model.
type Tool struct {
	service *croncore.Service

	mu      sync.Mutex
	channel string
	chatID  string
}

// NewTool creates a cron tool backed by the service.
func NewTool(service *croncore.Service) *Tool {
	return &Tool{service: service}
}

func (t *Tool) Name() string { return "cron" }

func (t *Tool) Description() string {
	return "Manage scheduled jobs: add, list, remove, enable, disable, run. Jobs send their message to this conversation on schedule."
}

func (t *Tool) Source() tools.Source { return tools.SourceLocal }

func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "Action to perform",
				"enum":        []string{"add", "list", "remove", "enable", "disable", "run"},
			},
			"id": map[string]any{
				"type":        "string",
				"description": "Job id (remove/enable/disable/run)",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Job name (add)",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message the job sends when it fires (add)",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "Cron expression, e.g. '0 9 * * *' (add)",
			},
			"every": map[string]any{
				"type":        "string",
				"description": "Interval, e.g. '30m' (add; alternative to cron)",
			},
		},
		"required": []string{"action"},
	}
}

// SetContext records the conversation new jobs route back to.
func (t *Tool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.service == nil {
		return "", fmt.Errorf("cron service unavailable")
	}
	action := strings.ToLower(strings.TrimSpace(tools.StringArg(args, "action", "")))

	switch action {
	case "add":
		return t.add(args)
	case "list":
		return t.list(), nil
	case "remove":
		id := tools.StringArg(args, "id", "")
		if err := t.service.Remove(id); err != nil {
			return "", err
		}
		return "Removed job " + id, nil
	case "enable":
		id := tools.StringArg(args, "id", "")
		if err := t.service.Enable(id); err != nil {
			return "", err
		}
		return "Enabled job " + id, nil
	case "disable":
		id := tools.StringArg(args, "id", "")
		if err := t.service.Disable(id); err != nil {
			return "", err
		}
		return "Disabled job " + id, nil
	case "run":
		id := tools.StringArg(args, "id", "")
		if err := t.service.RunNow(ctx, id); err != nil {
			return "", err
		}
		return "Ran job " + id, nil
	default:
		return "", fmt.Errorf("unsupported action: %s", action)
	}
}

func (t *Tool) add(args map[string]any) (string, error) {
	t.mu.Lock()
	channel, chatID := t.channel, t.chatID
	t.mu.Unlock()

	job, err := t.service.Add(croncore.Job{
		Name: tools.StringArg(args, "name", ""),
		Schedule: croncore.Schedule{
			Cron:  tools.StringArg(args, "cron", ""),
			Every: tools.StringArg(args, "every", ""),
		},
		Message: tools.StringArg(args, "message", ""),
		Channel: channel,
		ChatID:  chatID,
		Enabled: true,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added job %s (%s, %s)", job.ID, job.Name, job.Schedule), nil
}

func (t *Tool) list() string {
	jobs := t.service.List()
	if len(jobs) == 0 {
		return "No cron jobs."
	}
	var b strings.Builder
	for _, job := range jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "%s  %s  [%s, %s] -> %s:%s  %q\n",
			job.ID, job.Name, job.Schedule, state, job.Channel, job.ChatID, job.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
