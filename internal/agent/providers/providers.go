// Package providers implements the upstream LLM clients (OpenAI-compatible,
// Anthropic, Gemini, Bedrock) behind the agent.Provider contract, plus the
// model-routing factory the agent loop talks to.
package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)

// Factory routes chat requests to the first provider whose MatchModel
// accepts the requested model. It implements agent.ChatClient: failures
// never escape as errors, they come back as a response with
// FinishReason "error" so the loop can surface them as content.
type Factory struct {
	providers    []agent.Provider
	defaultModel string
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewFactory builds a factory over the given providers, tried in order.
func NewFactory(defaultModel string, logger *observability.Logger, metrics *observability.Metrics, providers ...agent.Provider) *Factory {
	return &Factory{
		providers:    providers,
		defaultModel: defaultModel,
		logger:       logger,
		metrics:      metrics,
	}
}

// FromConfig builds the provider lineup from configuration. Providers
// with credentials register in fixed order (anthropic, gemini, bedrock)
// with the OpenAI-compatible client last as the catch-all route, so
// unclaimed models still reach a real endpoint.
func FromConfig(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *Factory {
	var list []agent.Provider

	if pc, key := providerKey(cfg, "anthropic", "ANTHROPIC_API_KEY"); key != "" {
		list = append(list, NewAnthropic(AnthropicConfig{APIKey: key, APIBase: pc.APIBase}))
	}

	if pc, key := providerKey(cfg, "gemini", "GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		p, err := NewGemini(ctx, GeminiConfig{APIKey: key, APIBase: pc.APIBase})
		if err != nil {
			logger.Warn(ctx, "gemini provider unavailable", "error", err)
		} else {
			list = append(list, p)
		}
	}

	if pc, ok := cfg.Provider("bedrock"); ok {
		p, err := NewBedrock(ctx, BedrockConfig{Region: pc.Region})
		if err != nil {
			logger.Warn(ctx, "bedrock provider unavailable", "error", err)
		} else {
			list = append(list, p)
		}
	}

	oc, key := providerKey(cfg, "openai", "OPENAI_API_KEY")
	list = append(list, NewOpenAI(OpenAIConfig{
		APIKey:       key,
		APIBase:      oc.APIBase,
		ExtraHeaders: oc.ExtraHeaders,
	}))

	return NewFactory(cfg.Agents.Defaults.Model, logger, metrics, list...)
}

func providerKey(cfg *config.Config, name string, envVars ...string) (config.ProviderConfig, string) {
	pc, _ := cfg.Provider(name)
	if pc.APIKey != "" {
		return pc, pc.APIKey
	}
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			return pc, v
		}
	}
	return pc, ""
}

// Chat routes the request and absorbs failures. The request is copied
// before defaults are applied, so callers can reuse it.
func (f *Factory) Chat(ctx context.Context, req *agent.ChatRequest) *models.LLMResponse {
	start := time.Now()

	r := *req
	if r.Model == "" {
		r.Model = f.defaultModel
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = defaultMaxTokens
	}
	if r.Temperature == 0 {
		r.Temperature = defaultTemperature
	}

	provider := f.match(r.Model)
	if provider == nil {
		f.record("none", r.Model, "error", start, nil)
		return errorResponse(fmt.Errorf("no provider found for model: %s", r.Model))
	}

	resp, err := provider.Chat(ctx, &r)
	if err != nil {
		f.logger.Warn(ctx, "llm request failed",
			"provider", provider.Name(),
			"model", r.Model,
			"error", err)
		if f.metrics != nil {
			f.metrics.RecordError("providers", string(Classify(err)))
		}
		f.record(provider.Name(), r.Model, "error", start, nil)
		return errorResponse(err)
	}

	f.record(provider.Name(), r.Model, "success", start, resp)
	return resp
}

// Providers returns the registered providers in routing order.
func (f *Factory) Providers() []agent.Provider {
	return f.providers
}

func (f *Factory) match(model string) agent.Provider {
	for _, p := range f.providers {
		if p.MatchModel(model) {
			return p
		}
	}
	return nil
}

func (f *Factory) record(provider, model, status string, start time.Time, resp *models.LLMResponse) {
	if f.metrics == nil {
		return
	}
	var prompt, completion int
	if resp != nil {
		prompt = resp.Usage.PromptTokens
		completion = resp.Usage.CompletionTokens
	}
	f.metrics.RecordLLMRequest(provider, model, status, time.Since(start).Seconds(), prompt, completion)
}

func errorResponse(err error) *models.LLMResponse {
	return &models.LLMResponse{
		Content:      "Error calling LLM: " + err.Error(),
		FinishReason: "error",
	}
}

// decodeArguments parses a tool-call argument payload. Payloads that are
// not JSON objects are kept verbatim under a "raw" key rather than lost.
func decodeArguments(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"raw": raw}
	}
	return args
}

// normalizeFinishReason maps provider-specific stop reasons onto the
// OpenAI-style vocabulary the loop understands.
func normalizeFinishReason(reason string, hasToolCalls bool) string {
	switch strings.ToLower(reason) {
	case "tool_use", "tool_calls", "function_call":
		return "tool_calls"
	case "max_tokens", "length", "max_output_tokens":
		return "length"
	case "", "end_turn", "stop", "stop_sequence":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	default:
		if hasToolCalls {
			return "tool_calls"
		}
		return strings.ToLower(reason)
	}
}

// parseDataURL splits a data: URL into its decoded payload and MIME type.
// The MIME type defaults to image/jpeg when the URL omits it.
func parseDataURL(raw string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data url")
	}
	mimeType := "image/jpeg"
	if m, _, _ := strings.Cut(meta, ";"); m != "" {
		mimeType = m
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return data, mimeType, nil
}
