package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

func TestAnthropicMatchModel(t *testing.T) {
	provider := NewAnthropic(AnthropicConfig{APIKey: "test"})

	tests := []struct {
		model string
		want  bool
	}{
		{"claude-3-5-sonnet-20241022", true},
		{"anthropic/claude-opus-4-5", true},
		{"gpt-4o", false},
		{"gemini-2.0-flash", false},
	}
	for _, tt := range tests {
		if got := provider.MatchModel(tt.model); got != tt.want {
			t.Errorf("MatchModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestAnthropicChat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "read_file", "input": {"path": "notes.md"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 9, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	provider := NewAnthropic(AnthropicConfig{APIKey: "test", APIBase: srv.URL})
	resp, err := provider.Chat(context.Background(), &agent.ChatRequest{
		Model: "anthropic/claude-3-5-sonnet-20241022",
		Messages: []models.ChatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "read my notes"},
		},
		Tools: []tools.Definition{{
			Type: "function",
			Function: tools.FunctionDefinition{
				Name:        "read_file",
				Description: "Read a file",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{"path": map[string]any{"type": "string"}}},
			},
		}},
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Content != "Let me check." {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "toolu_1" || resp.ToolCalls[0].Arguments["path"] != "notes.md" {
		t.Errorf("tool call = %+v", resp.ToolCalls[0])
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("TotalTokens = %d, want 13", resp.Usage.TotalTokens)
	}

	// The model prefix is stripped and the system prompt travels as a
	// request parameter, not a message.
	if gotBody["model"] != "claude-3-5-sonnet-20241022" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if _, ok := gotBody["system"]; !ok {
		t.Error("request missing system parameter")
	}
	if msgs, ok := gotBody["messages"].([]any); !ok || len(msgs) != 1 {
		t.Errorf("request messages = %v, want 1 non-system message", gotBody["messages"])
	}
	if defs, ok := gotBody["tools"].([]any); !ok || len(defs) != 1 {
		t.Errorf("request tools = %v", gotBody["tools"])
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	system, msgs := convertAnthropicMessages([]models.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "system", Content: "stay safe"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "checking", ToolCalls: []models.ToolCallRecord{{
			ID:       "toolu_1",
			Type:     "function",
			Function: models.FunctionCall{Name: "read_file", Arguments: `{"path":"a"}`},
		}}},
		{Role: "tool", Name: "read_file", ToolCallID: "toolu_1", Content: "contents"},
	})

	if system != "be brief\n\nstay safe" {
		t.Errorf("system = %q", system)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	if msgs[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("msgs[0].Role = %v, want user", msgs[0].Role)
	}

	if msgs[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("msgs[1].Role = %v, want assistant", msgs[1].Role)
	}
	if len(msgs[1].Content) != 2 {
		t.Fatalf("assistant blocks = %d, want text + tool_use", len(msgs[1].Content))
	}
	toolUse := msgs[1].Content[1].OfToolUse
	if toolUse == nil || toolUse.ID != "toolu_1" || toolUse.Name != "read_file" {
		t.Errorf("tool_use block = %+v", msgs[1].Content[1])
	}

	if msgs[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("tool result role = %v, want user", msgs[2].Role)
	}
	toolResult := msgs[2].Content[0].OfToolResult
	if toolResult == nil || toolResult.ToolUseID != "toolu_1" {
		t.Errorf("tool_result block = %+v", msgs[2].Content[0])
	}
}

func TestConvertAnthropicParts(t *testing.T) {
	content := convertAnthropicParts([]models.ContentPart{
		models.ImagePart("data:image/png;base64,aGVsbG8="),
		models.ImagePart("not-a-data-url"),
		models.TextPart("what is this?"),
	})

	if len(content) != 2 {
		t.Fatalf("blocks = %d, want image + text (bad URL skipped)", len(content))
	}
	image := content[0].OfImage
	if image == nil {
		t.Fatal("first block is not an image")
	}
	if image.Source.OfBase64 == nil || image.Source.OfBase64.Data != "aGVsbG8=" {
		t.Errorf("image source = %+v", image.Source)
	}
	if content[1].OfText == nil || content[1].OfText.Text != "what is this?" {
		t.Errorf("text block = %+v", content[1])
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	converted, err := convertAnthropicTools([]tools.Definition{{
		Type: "function",
		Function: tools.FunctionDefinition{
			Name:        "write_file",
			Description: "Write a file",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []any{"path"},
			},
		},
	}})
	if err != nil {
		t.Fatalf("convertAnthropicTools() error = %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("got %d tools, want 1", len(converted))
	}

	tool := converted[0].OfTool
	if tool == nil {
		t.Fatal("OfTool is nil")
	}
	if tool.Name != "write_file" {
		t.Errorf("Name = %q", tool.Name)
	}
	if tool.Description.Value != "Write a file" {
		t.Errorf("Description = %q", tool.Description.Value)
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "path" {
		t.Errorf("InputSchema.Required = %v", tool.InputSchema.Required)
	}
}

func TestParseAnthropicMessage(t *testing.T) {
	var message anthropic.Message
	payload := `{
		"id": "msg_2",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"content": [{"type": "text", "text": "done"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 20, "output_tokens": 7}
	}`
	if err := json.Unmarshal([]byte(payload), &message); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}

	resp := parseAnthropicMessage(&message)
	if resp.Content != "done" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.PromptTokens != 20 || resp.Usage.CompletionTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.HasToolCalls() {
		t.Error("HasToolCalls() = true, want false")
	}
}

func TestWrapAnthropicError(t *testing.T) {
	provider := NewAnthropic(AnthropicConfig{APIKey: "test"})

	apiErr := &anthropic.Error{
		StatusCode: 429,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: 429},
	}
	wrapped := provider.wrapError("claude-3-5-sonnet", apiErr)

	var perr *ProviderError
	if !errors.As(wrapped, &perr) {
		t.Fatalf("wrapError() = %T, want *ProviderError", wrapped)
	}
	if perr.Status != 429 || perr.Reason != ReasonRateLimit {
		t.Errorf("ProviderError = %+v", perr)
	}
	if !IsRetryable(wrapped) {
		t.Error("IsRetryable() = false for 429")
	}
}
