package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey     string
	APIBase    string
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicProvider serves claude models through the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	base   BaseProvider
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		base:   NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay),
	}
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// MatchModel claims claude models, with or without the anthropic/ prefix.
func (p *AnthropicProvider) MatchModel(model string) bool {
	return strings.HasPrefix(model, "anthropic/") || strings.HasPrefix(model, "claude-")
}

// Chat sends a non-streaming Messages API request.
func (p *AnthropicProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*models.LLMResponse, error) {
	model := strings.TrimPrefix(req.Model, "anthropic/")

	system, msgs := convertAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(req.Tools) > 0 {
		converted, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, NewProviderError("anthropic", model, err)
		}
		params.Tools = converted
	}

	var message *anthropic.Message
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		message, callErr = p.client.Messages.New(ctx, params)
		if callErr != nil {
			return p.wrapError(model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseAnthropicMessage(message), nil
}

func (p *AnthropicProvider) wrapError(model string, err error) error {
	perr := NewProviderError("anthropic", model, err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		perr = perr.WithStatus(apiErr.StatusCode)
	}
	return perr
}

// convertAnthropicMessages splits out the system prompt (Anthropic takes
// it as a request parameter, not a message) and maps the rest onto
// content-block messages. Tool results ride on user messages.
func convertAnthropicMessages(messages []models.ChatMessage) (string, []anthropic.MessageParam) {
	var system []string
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)
		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(
					tc.ID,
					decodeArguments(tc.Function.Arguments),
					tc.Function.Name,
				))
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(content...))
		default:
			var content []anthropic.ContentBlockParamUnion
			if len(msg.Parts) > 0 {
				content = convertAnthropicParts(msg.Parts)
			} else if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return strings.Join(system, "\n\n"), result
}

func convertAnthropicParts(parts []models.ContentPart) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, part := range parts {
		switch part.Type {
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			data, mimeType, err := parseDataURL(part.ImageURL.URL)
			if err != nil {
				continue
			}
			content = append(content, anthropic.NewImageBlockBase64(
				mimeType,
				base64.StdEncoding.EncodeToString(data),
			))
		default:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		}
	}
	return content
}

func convertAnthropicTools(defs []tools.Definition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, def := range defs {
		raw, err := json.Marshal(def.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", def.Function.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", def.Function.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, def.Function.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", def.Function.Name)
		}
		toolParam.OfTool.Description = anthropic.String(def.Function.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func parseAnthropicMessage(message *anthropic.Message) *models.LLMResponse {
	out := &models.LLMResponse{
		Usage: models.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: decodeArguments(string(b.Input)),
			})
		}
	}
	out.Content = text.String()
	out.FinishReason = normalizeFinishReason(string(message.StopReason), len(out.ToolCalls) > 0)
	return out
}
