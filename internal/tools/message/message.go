// Package message provides the message tool: explicit outbound sends from
// the model to the active conversation, or to another channel/chat when the
// arguments say so.
package message

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// Sender publishes outbound messages. *bus.MessageBus satisfies it.
type Sender interface {
	PublishOutbound(ctx context.Context, msg *models.OutboundMessage) error
}

// Tool sends a message through the bus. The loop updates the conversation
// context before each turn so bare sends reach the active chat.
type Tool struct {
	sender Sender

	mu      sync.Mutex
	channel string
	chatID  string
}

// NewTool creates a message tool.
func NewTool(sender Sender) *Tool {
	return &Tool{sender: sender}
}

func (t *Tool) Name() string { return "message" }

func (t *Tool) Description() string {
	return "Send a message to the user. Defaults to the current conversation; channel and chat_id override the target."
}

func (t *Tool) Source() tools.Source { return tools.SourceLocal }

func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "Message text to send",
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Target channel (default: current)",
			},
			"chat_id": map[string]any{
				"type":        "string",
				"description": "Target chat id (default: current)",
			},
		},
		"required": []string{"content"},
	}
}

// SetContext records the active conversation routing tuple.
func (t *Tool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channel = channel
	t.chatID = chatID
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.sender == nil {
		return "", fmt.Errorf("message bus unavailable")
	}
	content := tools.StringArg(args, "content", "")
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("content is required")
	}

	t.mu.Lock()
	channel := tools.StringArg(args, "channel", t.channel)
	chatID := tools.StringArg(args, "chat_id", t.chatID)
	t.mu.Unlock()
	if channel == "" || chatID == "" {
		return "", fmt.Errorf("no conversation context; pass channel and chat_id")
	}

	if err := t.sender.PublishOutbound(ctx, models.NewOutboundMessage(channel, chatID, content)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}
