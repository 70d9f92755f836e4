package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey string

	// APIBase points the client at a compatible endpoint such as
	// OpenRouter, vLLM, or a local gateway. Empty means api.openai.com.
	APIBase string

	// ExtraHeaders are sent with every request, for gateways that key on
	// custom headers (APP-Code and the like).
	ExtraHeaders map[string]string

	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider talks to the OpenAI chat completions API or any
// compatible endpoint. It is the routing fallback: MatchModel accepts
// every model, so requests no other provider claims land here.
type OpenAIProvider struct {
	client *openai.Client
	base   BaseProvider
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.APIBase, "/")
	}
	if len(cfg.ExtraHeaders) > 0 {
		clientCfg.HTTPClient = &http.Client{
			Transport: headerTransport{headers: cfg.ExtraHeaders, next: http.DefaultTransport},
		}
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		base:   NewBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// MatchModel accepts every model; this provider is the catch-all route.
func (p *OpenAIProvider) MatchModel(string) bool {
	return true
}

// Chat sends a non-streaming chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*models.LLMResponse, error) {
	oaReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    convertOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if len(req.Tools) > 0 {
		oaReq.Tools = convertOpenAITools(req.Tools)
		oaReq.ToolChoice = "auto"
	}

	var resp openai.ChatCompletionResponse
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, oaReq)
		if callErr != nil {
			return p.wrapError(req.Model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(resp), nil
}

func (p *OpenAIProvider) wrapError(model string, err error) error {
	perr := NewProviderError("openai", model, err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		perr = perr.WithStatus(apiErr.HTTPStatusCode)
	}
	return perr
}

func convertOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		if len(msg.Parts) > 0 {
			out.MultiContent = convertOpenAIParts(msg.Parts)
		} else {
			out.Content = msg.Content
		}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		result = append(result, out)
	}
	return result
}

func convertOpenAIParts(parts []models.ContentPart) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case "image_url":
			if part.ImageURL == nil {
				continue
			}
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    part.ImageURL.URL,
					Detail: openai.ImageURLDetailAuto,
				},
			})
		default:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		}
	}
	return out
}

func convertOpenAITools(defs []tools.Definition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}
	return out
}

func parseOpenAIResponse(resp openai.ChatCompletionResponse) *models.LLMResponse {
	out := &models.LLMResponse{
		FinishReason: "stop",
		Usage: models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	out.FinishReason = normalizeFinishReason(string(choice.FinishReason), len(out.ToolCalls) > 0)
	return out
}

// headerTransport injects static headers into every outgoing request.
type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.next.RoundTrip(clone)
}
