package agent

import (
	"context"

	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// ChatRequest is one LLM round trip: the full prompt window plus the
// tool definitions the model may call this turn.
type ChatRequest struct {
	Model       string
	Messages    []models.ChatMessage
	Tools       []tools.Definition
	MaxTokens   int
	Temperature float64
}

// Provider is a single upstream LLM API. MatchModel reports whether the
// provider serves the given model identifier; routing walks providers in
// registration order and picks the first match.
type Provider interface {
	Name() string
	MatchModel(model string) bool
	Chat(ctx context.Context, req *ChatRequest) (*models.LLMResponse, error)
}

// ChatClient is the chat surface the loop talks to. Implementations
// absorb provider failures: the caller always gets a response, with
// errors rendered as content and FinishReason "error".
type ChatClient interface {
	Chat(ctx context.Context, req *ChatRequest) *models.LLMResponse
}
