package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/tools"
)

// fakeServer speaks just enough JSON-RPC over HTTP to satisfy the client.
type fakeServer struct {
	tools    []*RemoteTool
	callText string
	calls    []CallToolParams
}

func (f *fakeServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		respond := func(result any) {
			payload, _ := json.Marshal(result)
			resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}

		switch req.Method {
		case "initialize":
			respond(InitializeResult{
				ProtocolVersion: protocolVersion,
				ServerInfo:      ServerInfo{Name: "fake", Version: "0.1.0"},
			})
		case "tools/list":
			respond(ListToolsResult{Tools: f.tools})
		case "tools/call":
			var params CallToolParams
			json.Unmarshal(req.Params, &params)
			f.calls = append(f.calls, params)
			respond(ToolCallResult{Content: []ContentPart{{Type: "text", Text: f.callText}}})
		default:
			http.Error(w, "unknown method "+req.Method, http.StatusBadRequest)
		}
	}
}

func mathServer() *fakeServer {
	return &fakeServer{
		callText: "3",
		tools: []*RemoteTool{{
			Name:        "add",
			Description: "Add two numbers",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a": map[string]any{"type": "integer"},
					"b": map[string]any{"type": "integer"},
				},
				"required": []any{"a", "b"},
			},
		}},
	}
}

func newMathProxy(t *testing.T) (*Proxy, *fakeServer) {
	t.Helper()
	fake := mathServer()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	proxy := NewProxy(map[string]config.MCPServerConfig{
		"math": {Transport: "http", URL: srv.URL, Description: "arithmetic"},
	}, nil, nil)
	return proxy, fake
}

func TestVerifiedCall(t *testing.T) {
	proxy, fake := newMathProxy(t)
	ctx := context.Background()

	got := proxy.VerifiedCall(ctx, "math", "add", map[string]any{"a": 1, "b": 2})
	if got != "3" {
		t.Fatalf("VerifiedCall = %q, want %q", got, "3")
	}
	if len(fake.calls) != 1 || fake.calls[0].Name != "add" {
		t.Fatalf("remote calls = %+v, want one call to add", fake.calls)
	}
}

func TestVerifiedCallUnknownServer(t *testing.T) {
	proxy, _ := newMathProxy(t)

	got := proxy.VerifiedCall(context.Background(), "nope", "add", nil)
	want := "Error: MCP server 'nope' not found. Available servers: math"
	if got != want {
		t.Fatalf("VerifiedCall = %q, want %q", got, want)
	}
}

func TestVerifiedCallUnknownTool(t *testing.T) {
	proxy, _ := newMathProxy(t)

	got := proxy.VerifiedCall(context.Background(), "math", "sub", nil)
	want := "Error: tool 'sub' not found on MCP server 'math'. Available tools: add"
	if got != want {
		t.Fatalf("VerifiedCall = %q, want %q", got, want)
	}
}

func TestVerifiedCallInvalidArguments(t *testing.T) {
	proxy, fake := newMathProxy(t)

	got := proxy.VerifiedCall(context.Background(), "math", "add", map[string]any{"a": 1})
	if !strings.HasPrefix(got, "Invalid arguments for math_add:") {
		t.Fatalf("VerifiedCall = %q, want invalid-arguments diagnostic", got)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("remote was called despite invalid arguments: %+v", fake.calls)
	}
}

func TestVerifiedCallFloatForInteger(t *testing.T) {
	proxy, fake := newMathProxy(t)

	got := proxy.VerifiedCall(context.Background(), "math", "add", map[string]any{"a": 1.5, "b": 2})
	if !strings.HasPrefix(got, "Invalid arguments for math_add:") {
		t.Fatalf("VerifiedCall = %q, want invalid-arguments diagnostic", got)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("remote was called despite invalid arguments: %+v", fake.calls)
	}
}

func TestSummaryListsServersAndTools(t *testing.T) {
	fake := mathServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	proxy := NewProxy(map[string]config.MCPServerConfig{
		"math":   {Transport: "http", URL: srv.URL, Description: "arithmetic"},
		"broken": {Transport: "stdio", Command: "/does/not/exist"},
	}, nil, nil)

	summary := proxy.Summary(context.Background())

	if !strings.HasPrefix(summary, "Registered MCP servers & tools:\n") {
		t.Fatalf("summary missing header: %q", summary)
	}
	for _, want := range []string{
		"- broken (stdio)",
		"- math (http): arithmetic",
		"    Tool: add",
		"      Description: Add two numbers",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Index(summary, "- broken") > strings.Index(summary, "- math") {
		t.Errorf("servers not sorted:\n%s", summary)
	}
}

func TestPreloadIsolatesFailures(t *testing.T) {
	fake := mathServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	proxy := NewProxy(map[string]config.MCPServerConfig{
		"math":   {Transport: "http", URL: srv.URL},
		"broken": {Transport: "stdio", Command: "/does/not/exist"},
	}, nil, nil)

	proxy.Preload(context.Background())

	cached := proxy.CachedTools()
	if len(cached["math"]) != 1 {
		t.Fatalf("math catalog = %+v, want one tool", cached["math"])
	}
	if len(cached["broken"]) != 0 {
		t.Fatalf("broken catalog = %+v, want empty", cached["broken"])
	}

	// The healthy server stays callable.
	if got := proxy.VerifiedCall(context.Background(), "math", "add", map[string]any{"a": 1, "b": 2}); got != "3" {
		t.Fatalf("VerifiedCall after preload = %q, want %q", got, "3")
	}
}

func TestProxyToolSummaryAction(t *testing.T) {
	proxy, _ := newMathProxy(t)
	tool := NewProxyTool(proxy)

	out, err := tool.Execute(context.Background(), map[string]any{"action": "summary"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out, "Registered MCP servers & tools:") {
		t.Fatalf("summary = %q", out)
	}
}

func TestProxyToolCallAction(t *testing.T) {
	proxy, _ := newMathProxy(t)
	tool := NewProxyTool(proxy)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{
		"action":    "call",
		"server":    "math",
		"tool_name": "add",
		"arguments": map[string]any{"a": 1, "b": 2},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "3" {
		t.Fatalf("call result = %q, want %q", out, "3")
	}
}

func TestProxyToolDiagnostics(t *testing.T) {
	proxy, _ := newMathProxy(t)
	tool := NewProxyTool(proxy)
	ctx := context.Background()

	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "unsupported action",
			args: map[string]any{"action": "inspect"},
			want: "Error: Unsupported action 'inspect'",
		},
		{
			name: "missing server and tool",
			args: map[string]any{"action": "call"},
			want: "Error: 'server' and 'tool_name' are required for 'call'",
		},
		{
			name: "unknown server",
			args: map[string]any{"action": "call", "server": "nope", "tool_name": "add"},
			want: "Error: MCP server 'nope' not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tool.Execute(ctx, tc.args)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out != tc.want {
				t.Fatalf("Execute = %q, want %q", out, tc.want)
			}
		})
	}
}

func TestRegisterAllBridgesRemoteTools(t *testing.T) {
	proxy, _ := newMathProxy(t)
	reg := tools.NewRegistry(nil, nil)
	ctx := context.Background()

	registered := proxy.RegisterAll(ctx, reg)
	if len(registered) != 1 || registered[0] != "math_add" {
		t.Fatalf("registered = %v, want [math_add]", registered)
	}

	bridge, ok := reg.Get("math_add")
	if !ok {
		t.Fatal("math_add not in registry")
	}
	if bridge.Source() != tools.SourceMCP {
		t.Fatalf("source = %q, want %q", bridge.Source(), tools.SourceMCP)
	}
	if !strings.Contains(bridge.Description(), "math.add") {
		t.Fatalf("description = %q, want server.tool reference", bridge.Description())
	}

	if got := reg.Execute(ctx, "math_add", map[string]any{"a": 1, "b": 2}); got != "3" {
		t.Fatalf("registry execute = %q, want %q", got, "3")
	}
}

func TestToolCallResultText(t *testing.T) {
	cases := []struct {
		name   string
		result *ToolCallResult
		want   string
	}{
		{
			name:   "text part",
			result: &ToolCallResult{Content: []ContentPart{{Type: "text", Text: "hello"}}},
			want:   "hello",
		},
		{
			name:   "first part wins",
			result: &ToolCallResult{Content: []ContentPart{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}},
			want:   "a",
		},
		{
			name:   "non-text part stringified",
			result: &ToolCallResult{Content: []ContentPart{{Type: "image", Data: "abc", MimeType: "image/png"}}},
			want:   `{"type":"image","data":"abc","mimeType":"image/png"}`,
		},
		{
			name:   "empty content",
			result: &ToolCallResult{},
			want:   "(no output)",
		},
		{
			name:   "nil result",
			result: nil,
			want:   "(no output)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.Text(); got != tc.want {
				t.Fatalf("Text() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRemoteToolUsageHint(t *testing.T) {
	tool := &RemoteTool{Name: "add", Meta: map[string]any{"usage": "add(a=1, b=2)"}}
	if got := tool.UsageHint(); got != "add(a=1, b=2)" {
		t.Fatalf("UsageHint = %q", got)
	}
	if got := (&RemoteTool{Name: "add"}).UsageHint(); got != "" {
		t.Fatalf("UsageHint on bare tool = %q, want empty", got)
	}
}
