package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/sessions"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

func newTestManager(t *testing.T, b *bus.MessageBus, chat ChatClient, store sessions.Store, extra ...tools.Tool) *Manager {
	t.Helper()
	reg := tools.NewRegistry(nil, nil)
	for _, tool := range extra {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register(%s) error = %v", tool.Name(), err)
		}
	}
	return NewManager(b, chat, reg, store, t.TempDir(), config.AgentDefaults{
		Model:             "anthropic/claude-opus-4-5",
		MaxTokens:         512,
		Temperature:       0.2,
		MaxToolIterations: 3,
	}, nil, nil)
}

func consumeInbound(t *testing.T, b *bus.MessageBus, timeout time.Duration) *models.InboundMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, err := b.ConsumeInbound(context.Background())
		if err != nil {
			t.Fatalf("ConsumeInbound() error = %v", err)
		}
		if msg != nil {
			return msg
		}
	}
	t.Fatal("no inbound message before deadline")
	return nil
}

func TestSpawnAnnouncesCompletion(t *testing.T) {
	b := newTestBus(t)
	store := sessions.NewMemoryStore()
	chat := &scriptedChat{responses: []*models.LLMResponse{textResponse("task output")}}
	m := newTestManager(t, b, chat, store)

	id, err := m.Spawn(context.Background(), "scrape the docs", "telegram", "42")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if id == "" {
		t.Fatal("Spawn() returned empty id")
	}
	m.Wait()

	announce := consumeInbound(t, b, 10*time.Second)
	if announce.Channel != models.ChannelSystem {
		t.Errorf("announce channel = %q, want system", announce.Channel)
	}
	if announce.SenderID != "subagent" {
		t.Errorf("announce sender = %q, want subagent", announce.SenderID)
	}
	if announce.ChatID != "telegram:42" {
		t.Errorf("announce chat_id = %q, want telegram:42", announce.ChatID)
	}
	want := fmt.Sprintf("[Subagent %s completed] task output", id)
	if announce.Content != want {
		t.Errorf("announce content = %q, want %q", announce.Content, want)
	}

	req := chat.request(0)
	if req.Messages[0].Role != models.RoleSystem {
		t.Fatalf("first message role = %q, want system", req.Messages[0].Role)
	}
	if !strings.Contains(req.Messages[0].Content, "# aisbot subagent") {
		t.Error("system prompt missing subagent identity")
	}
	if !strings.Contains(req.Messages[0].Content, "Spawned from: telegram:42") {
		t.Error("system prompt missing origin")
	}
	if req.Messages[1].Role != models.RoleUser || req.Messages[1].Content != "scrape the docs" {
		t.Errorf("task message = %+v", req.Messages[1])
	}

	session, err := store.Get(context.Background(), "subagent:"+id)
	if err != nil {
		t.Fatalf("task session not saved: %v", err)
	}
	history := session.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Content != "scrape the docs" || history[1].Content != "task output" {
		t.Errorf("history = %+v", history)
	}
}

func TestSpawnRunsTools(t *testing.T) {
	b := newTestBus(t)
	echo := &stubTool{name: "echo", desc: "Repeats text", result: "echo: hi"}
	chat := &scriptedChat{responses: []*models.LLMResponse{
		toolCallResponse("call_1", "echo", map[string]any{"text": "hi"}),
		textResponse("finished"),
	}}
	m := newTestManager(t, b, chat, sessions.NewMemoryStore(), echo)

	id, err := m.Spawn(context.Background(), "use echo", "cli", "direct")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	m.Wait()

	if echo.calls != 1 {
		t.Errorf("echo executed %d times, want 1", echo.calls)
	}
	announce := consumeInbound(t, b, 10*time.Second)
	want := fmt.Sprintf("[Subagent %s completed] finished", id)
	if announce.Content != want {
		t.Errorf("announce content = %q, want %q", announce.Content, want)
	}
}

func TestSpawnIterationExhaustion(t *testing.T) {
	b := newTestBus(t)
	busy := &stubTool{name: "busy", desc: "Never finishes", result: "working"}
	responses := []*models.LLMResponse{
		toolCallResponse("c1", "busy", map[string]any{"text": "a"}),
		toolCallResponse("c2", "busy", map[string]any{"text": "b"}),
		toolCallResponse("c3", "busy", map[string]any{"text": "c"}),
	}
	chat := &scriptedChat{responses: responses}
	m := newTestManager(t, b, chat, sessions.NewMemoryStore(), busy)

	id, err := m.Spawn(context.Background(), "never finish", "cli", "direct")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	m.Wait()

	announce := consumeInbound(t, b, 10*time.Second)
	want := fmt.Sprintf("[Subagent %s completed] (no output)", id)
	if announce.Content != want {
		t.Errorf("announce content = %q, want %q", announce.Content, want)
	}
	if chat.calls() != 3 {
		t.Errorf("chat calls = %d, want 3", chat.calls())
	}
}

func TestSpawnFailureAnnounced(t *testing.T) {
	b := newTestBus(t)
	chat := &scriptedChat{}
	m := newTestManager(t, b, chat, failingStore{})

	id, err := m.Spawn(context.Background(), "doomed task", "telegram", "42")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	m.Wait()

	announce := consumeInbound(t, b, 10*time.Second)
	if !strings.HasPrefix(announce.Content, fmt.Sprintf("[Subagent %s failed] ", id)) {
		t.Errorf("announce content = %q, want failed prefix", announce.Content)
	}
	if !strings.Contains(announce.Content, "load session") {
		t.Errorf("announce missing cause: %q", announce.Content)
	}
	if announce.ChatID != "telegram:42" {
		t.Errorf("announce chat_id = %q", announce.ChatID)
	}
}

func TestSpawnRejectsEmptyTask(t *testing.T) {
	m := newTestManager(t, newTestBus(t), &scriptedChat{}, sessions.NewMemoryStore())
	if _, err := m.Spawn(context.Background(), "   ", "cli", "direct"); err == nil {
		t.Error("Spawn() with blank task did not fail")
	}
	if ids := m.Active(); len(ids) != 0 {
		t.Errorf("Active() = %v after rejected spawn", ids)
	}
}

// blockingChat holds the first request open until released, so tests can
// observe a subagent mid-flight.
type blockingChat struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingChat) Chat(ctx context.Context, req *ChatRequest) *models.LLMResponse {
	close(c.started)
	<-c.release
	return &models.LLMResponse{Content: "done", FinishReason: "stop"}
}

func TestActiveTracksRunningSubagents(t *testing.T) {
	b := newTestBus(t)
	chat := &blockingChat{started: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(t, b, chat, sessions.NewMemoryStore())

	id, err := m.Spawn(context.Background(), "long task", "cli", "direct")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	<-chat.started
	active := m.Active()
	if len(active) != 1 || active[0] != id {
		t.Errorf("Active() = %v, want [%s]", active, id)
	}

	close(chat.release)
	m.Wait()
	if ids := m.Active(); len(ids) != 0 {
		t.Errorf("Active() = %v after completion", ids)
	}
}
