package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

func chatCompletionJSON(t *testing.T, msg openai.ChatCompletionMessage, finishReason string) []byte {
	t.Helper()
	payload, err := json.Marshal(openai.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Model:   "gpt-4o",
		Choices: []openai.ChatCompletionChoice{{Message: msg, FinishReason: openai.FinishReason(finishReason)}},
		Usage:   openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return payload
}

func TestOpenAIChatText(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionJSON(t, openai.ChatCompletionMessage{Role: "assistant", Content: "hello"}, "stop"))
	}))
	defer srv.Close()

	provider := NewOpenAI(OpenAIConfig{APIKey: "test", APIBase: srv.URL + "/v1"})
	resp, err := provider.Chat(context.Background(), &agent.ChatRequest{
		Model:       "gpt-4o",
		Messages:    []models.ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens:   128,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if gotReq.Model != "gpt-4o" || gotReq.MaxTokens != 128 {
		t.Errorf("request model/max_tokens = %q/%d", gotReq.Model, gotReq.MaxTokens)
	}
}

func TestOpenAIChatParsesToolCalls(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		msg := openai.ChatCompletionMessage{
			Role: "assistant",
			ToolCalls: []openai.ToolCall{{
				ID:   "call_1",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "read_file",
					Arguments: `{"path":"notes.md"}`,
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionJSON(t, msg, "tool_calls"))
	}))
	defer srv.Close()

	provider := NewOpenAI(OpenAIConfig{APIKey: "test", APIBase: srv.URL + "/v1"})
	resp, err := provider.Chat(context.Background(), &agent.ChatRequest{
		Model:    "gpt-4o",
		Messages: []models.ChatMessage{{Role: "user", Content: "read my notes"}},
		Tools: []tools.Definition{{
			Type: "function",
			Function: tools.FunctionDefinition{
				Name:        "read_file",
				Description: "Read a file",
				Parameters:  map[string]any{"type": "object"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if !resp.HasToolCalls() {
		t.Fatal("HasToolCalls() = false, want true")
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "read_file" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments["path"] != "notes.md" {
		t.Errorf("Arguments = %v, want decoded path", tc.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}

	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Function.Name != "read_file" {
		t.Errorf("request tools = %+v", gotReq.Tools)
	}
	if gotReq.ToolChoice != "auto" {
		t.Errorf("tool_choice = %v, want auto", gotReq.ToolChoice)
	}
}

func TestOpenAIChatSendsExtraHeaders(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("APP-Code")
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionJSON(t, openai.ChatCompletionMessage{Role: "assistant", Content: "ok"}, "stop"))
	}))
	defer srv.Close()

	provider := NewOpenAI(OpenAIConfig{
		APIKey:       "test",
		APIBase:      srv.URL + "/v1",
		ExtraHeaders: map[string]string{"APP-Code": "abc123"},
	})
	if _, err := provider.Chat(context.Background(), &agent.ChatRequest{
		Model:    "gpt-4o",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if gotHeader != "abc123" {
		t.Errorf("APP-Code header = %q, want abc123", gotHeader)
	}
}

func TestOpenAIChatRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionJSON(t, openai.ChatCompletionMessage{Role: "assistant", Content: "recovered"}, "stop"))
	}))
	defer srv.Close()

	provider := NewOpenAI(OpenAIConfig{
		APIKey:     "test",
		APIBase:    srv.URL + "/v1",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	resp, err := provider.Chat(context.Background(), &agent.ChatRequest{
		Model:    "gpt-4o",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Content != "recovered" {
		t.Errorf("Content = %q, want recovered", resp.Content)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestOpenAIChatDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	provider := NewOpenAI(OpenAIConfig{
		APIKey:     "bad",
		APIBase:    srv.URL + "/v1",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	_, err := provider.Chat(context.Background(), &agent.ChatRequest{
		Model:    "gpt-4o",
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Chat() error = nil, want auth failure")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (no retries)", got)
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Parts: []models.ContentPart{
			models.ImagePart("data:image/png;base64,aGk="),
			models.TextPart("what is this?"),
		}},
		{Role: "assistant", ToolCalls: []models.ToolCallRecord{{
			ID:       "call_1",
			Type:     "function",
			Function: models.FunctionCall{Name: "read_file", Arguments: `{"path":"a"}`},
		}}},
		{Role: "tool", Name: "read_file", ToolCallID: "call_1", Content: "contents"},
	}

	got := convertOpenAIMessages(messages)
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}

	if got[0].Role != "system" || got[0].Content != "be brief" {
		t.Errorf("system message = %+v", got[0])
	}

	if len(got[1].MultiContent) != 2 {
		t.Fatalf("multimodal parts = %d, want 2", len(got[1].MultiContent))
	}
	if got[1].MultiContent[0].Type != openai.ChatMessagePartTypeImageURL {
		t.Errorf("first part type = %v, want image_url", got[1].MultiContent[0].Type)
	}
	if got[1].MultiContent[1].Text != "what is this?" {
		t.Errorf("text part = %q", got[1].MultiContent[1].Text)
	}

	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Function.Name != "read_file" {
		t.Errorf("assistant tool calls = %+v", got[2].ToolCalls)
	}

	if got[3].ToolCallID != "call_1" || got[3].Content != "contents" {
		t.Errorf("tool message = %+v", got[3])
	}
}

func TestOpenAIMatchModelAcceptsEverything(t *testing.T) {
	provider := NewOpenAI(OpenAIConfig{})
	for _, model := range []string{"gpt-4o", "claude-3-opus", "anything/at-all"} {
		if !provider.MatchModel(model) {
			t.Errorf("MatchModel(%q) = false, want true", model)
		}
	}
}
