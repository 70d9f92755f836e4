package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// stubTool is a minimal local tool for registry tests.
type stubTool struct {
	name    string
	params  map[string]any
	execute func(ctx context.Context, args map[string]any) (string, error)
	calls   int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool " + s.name }
func (s *stubTool) Source() Source      { return SourceLocal }

func (s *stubTool) Parameters() map[string]any {
	if s.params != nil {
		return s.params
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	s.calls++
	if s.execute != nil {
		return s.execute(ctx, args)
	}
	return "ok", nil
}

func echoParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":  map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer"},
		},
		"required": []string{"text"},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil, nil)
	if err := r.Register(&stubTool{name: "echo", params: echoParams()}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !r.Has("echo") {
		t.Error("Has should report registered tool")
	}
	if _, ok := r.Get("echo"); !ok {
		t.Error("Get should find registered tool")
	}
	if r.Has("nope") {
		t.Error("Has should not report unregistered tool")
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := NewRegistry(nil, nil)
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := r.Register(&stubTool{name: "echo"})
	if err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegisterBadSchemaRejected(t *testing.T) {
	r := NewRegistry(nil, nil)
	bad := &stubTool{name: "broken", params: map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": 42}},
	}}

	if err := r.Register(bad); err == nil {
		t.Fatal("schema with non-string type should be rejected at registration")
	}
}

func TestNamesAndDefinitionsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil, nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"zeta", "alpha", "mid"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("names[%d] = %q, want %q", i, names[i], name)
		}
	}

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, def := range defs {
		if def.Type != "function" {
			t.Errorf("definition type = %q, want function", def.Type)
		}
		if def.Function.Name != want[i] {
			t.Errorf("definitions[%d] = %q, want %q", i, def.Function.Name, want[i])
		}
		if def.Function.Parameters == nil {
			t.Error("definition parameters should never be nil")
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil, nil)

	got := r.Execute(context.Background(), "missing", nil)
	if got != "Unknown tool: missing" {
		t.Errorf("got %q", got)
	}
}

func TestExecuteValidatesBeforeInvoking(t *testing.T) {
	r := NewRegistry(nil, nil)
	tool := &stubTool{name: "echo", params: echoParams()}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := r.Execute(context.Background(), "echo", map[string]any{"text": 123})
	if !strings.Contains(got, `"text"`) {
		t.Errorf("diagnostic should name the bad parameter, got %q", got)
	}
	if tool.calls != 0 {
		t.Error("tool must not run when validation fails")
	}
}

func TestExecuteConvertsErrorsToStrings(t *testing.T) {
	r := NewRegistry(nil, nil)
	tool := &stubTool{
		name: "flaky",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("disk on fire")
		},
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := r.Execute(context.Background(), "flaky", map[string]any{})
	if got != "Error executing flaky: disk on fire" {
		t.Errorf("got %q", got)
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	r := NewRegistry(nil, nil)
	tool := &stubTool{
		name: "boom",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			panic("unexpected state")
		},
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := r.Execute(context.Background(), "boom", map[string]any{})
	if !strings.HasPrefix(got, "Error executing boom:") {
		t.Errorf("panic should surface as diagnostic, got %q", got)
	}
}

func TestExecuteIsDeterministicForPureTools(t *testing.T) {
	r := NewRegistry(nil, nil)
	tool := &stubTool{
		name:   "echo",
		params: echoParams(),
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return StringArg(args, "text", ""), nil
		},
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	args := map[string]any{"text": "same"}
	first := r.Execute(context.Background(), "echo", args)
	second := r.Execute(context.Background(), "echo", args)
	if first != second {
		t.Errorf("pure tool gave %q then %q", first, second)
	}
}

type contextualTool struct {
	stubTool
	channel string
	chatID  string
}

func (c *contextualTool) SetContext(channel, chatID string) {
	c.channel = channel
	c.chatID = chatID
}

func TestSetContextReachesAwareTools(t *testing.T) {
	r := NewRegistry(nil, nil)
	aware := &contextualTool{stubTool: stubTool{name: "message"}}
	plain := &stubTool{name: "plain"}
	if err := r.Register(aware); err != nil {
		t.Fatalf("register aware: %v", err)
	}
	if err := r.Register(plain); err != nil {
		t.Fatalf("register plain: %v", err)
	}

	r.SetContext("telegram", "chat-9")

	if aware.channel != "telegram" || aware.chatID != "chat-9" {
		t.Errorf("context not delivered: %q %q", aware.channel, aware.chatID)
	}
}
