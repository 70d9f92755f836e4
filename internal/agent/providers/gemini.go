package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	APIBase    string
	MaxRetries int
	RetryDelay time.Duration
}

// GeminiProvider serves Gemini models through the GenAI API.
type GeminiProvider struct {
	client *genai.Client
	base   BaseProvider
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIBase != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.APIBase
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{
		client: client,
		base:   NewBaseProvider("gemini", cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// MatchModel claims gemini models, with or without a vendor prefix.
func (p *GeminiProvider) MatchModel(model string) bool {
	return strings.HasPrefix(model, "gemini/") ||
		strings.HasPrefix(model, "google/") ||
		strings.HasPrefix(model, "gemini-")
}

// Chat sends a non-streaming GenerateContent request.
func (p *GeminiProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*models.LLMResponse, error) {
	model := strings.TrimPrefix(strings.TrimPrefix(req.Model, "gemini/"), "google/")

	system, contents := convertGeminiMessages(req.Messages)

	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     &temperature,
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertGeminiTools(req.Tools)
	}

	var resp *genai.GenerateContentResponse
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		resp, callErr = p.client.Models.GenerateContent(ctx, model, contents, cfg)
		if callErr != nil {
			return NewProviderError("gemini", model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseGeminiResponse(resp), nil
}

// convertGeminiMessages splits out the system prompt (Gemini takes it as
// SystemInstruction) and maps the rest onto role/parts contents. Tool
// results travel back as user-role FunctionResponse parts.
func convertGeminiMessages(messages []models.ChatMessage) (string, []*genai.Content) {
	var system []string
	var result []*genai.Content

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg.Content)
			continue
		}

		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}

		switch msg.Role {
		case models.RoleTool:
			name := msg.Name
			if name == "" {
				name = toolNameForCall(msg.ToolCallID, messages)
			}
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     name,
					Response: response,
				},
			})
		case models.RoleAssistant:
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Function.Name,
						Args: decodeArguments(tc.Function.Arguments),
					},
				})
			}
		default:
			if len(msg.Parts) > 0 {
				content.Parts = append(content.Parts, convertGeminiParts(msg.Parts)...)
			} else if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
		}

		if len(content.Parts) == 0 {
			continue
		}
		result = append(result, content)
	}

	return strings.Join(system, "\n\n"), result
}

func convertGeminiParts(parts []models.ContentPart) []*genai.Part {
	var out []*genai.Part
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
			out = append(out, &genai.Part{
				InlineData: &genai.Blob{Data: data, MIMEType: mimeType},
			})
		default:
			if part.Text != "" {
				out = append(out, &genai.Part{Text: part.Text})
			}
		}
	}
	return out
}

func convertGeminiTools(defs []tools.Definition) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  geminiSchema(def.Function.Parameters),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// geminiSchema converts a JSON Schema map to Gemini's Schema type.
func geminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = geminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = geminiSchema(items)
	}
	return schema
}

func parseGeminiResponse(resp *genai.GenerateContentResponse) *models.LLMResponse {
	out := &models.LLMResponse{FinishReason: "stop"}
	if resp.UsageMetadata != nil {
		out.Usage = models.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "":
			text.WriteString(part.Text)
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = generateToolCallID(part.FunctionCall.Name)
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()
	out.FinishReason = normalizeFinishReason(string(candidate.FinishReason), len(out.ToolCalls) > 0)
	return out
}

// generateToolCallID synthesizes a call ID for providers that do not
// return one, keeping the tool name recoverable from the ID.
func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}

// toolNameForCall finds the tool name a call ID belongs to by scanning
// prior assistant tool calls, falling back to the call_<name>_<ts> format.
func toolNameForCall(toolCallID string, messages []models.ChatMessage) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Function.Name
			}
		}
	}
	parts := strings.Split(toolCallID, "_")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
