package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/aisbot/aisbot/internal/tools"
)

// ProxyTool is the mcp_proxy registry tool: a single entry point the model
// can use to list every MCP server's tools or call one dynamically, without
// each remote tool being registered up front.
type ProxyTool struct {
	proxy *Proxy
}

// NewProxyTool wraps a proxy as a registry tool.
func NewProxyTool(p *Proxy) *ProxyTool {
	return &ProxyTool{proxy: p}
}

func (t *ProxyTool) Name() string { return "mcp_proxy" }

func (t *ProxyTool) Description() string {
	return "Proxy tool to call any MCP server/tool dynamically and provide full summary of tools (parameters, usage) to LLM."
}

func (t *ProxyTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"call", "summary"},
				"description": "Call a tool or get summary for LLM",
			},
			"server":    map[string]any{"type": "string", "description": "MCP server name"},
			"tool_name": map[string]any{"type": "string", "description": "Tool to call"},
			"arguments": map[string]any{"type": "object", "description": "Tool arguments"},
		},
		"required": []string{"action"},
	}
}

func (t *ProxyTool) Source() tools.Source { return tools.SourceLocal }

// Execute handles the summary and call actions. Failures come back as
// strings so the model always sees a reply.
func (t *ProxyTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	action := tools.StringArg(args, "action", "")
	switch action {
	case "summary":
		return t.proxy.Summary(ctx), nil
	case "call":
	default:
		return fmt.Sprintf("Error: Unsupported action '%s'", action), nil
	}

	server := tools.StringArg(args, "server", "")
	toolName := tools.StringArg(args, "tool_name", "")
	if server == "" || toolName == "" {
		return "Error: 'server' and 'tool_name' are required for 'call'", nil
	}

	cfg, ok := t.proxy.ServerConfig(server)
	if !ok {
		return fmt.Sprintf("Error: MCP server '%s' not found", server), nil
	}
	switch cfg.Transport {
	case "", TransportStdio, TransportHTTP:
	default:
		return fmt.Sprintf("Error: Unsupported transport '%s'", cfg.Transport), nil
	}

	arguments, _ := args["arguments"].(map[string]any)
	out, err := t.proxy.Call(ctx, server, toolName, arguments)
	if err != nil {
		return err.Error(), nil
	}
	return out, nil
}

// remoteTool bridges one discovered MCP tool into the registry under its
// composite name. Execution goes through the proxy's verification path, so
// a stale catalog or bad arguments produce diagnostics instead of failures.
type remoteTool struct {
	proxy  *Proxy
	server string
	remote *RemoteTool
	name   string
}

func newRemoteTool(p *Proxy, server string, remote *RemoteTool) *remoteTool {
	return &remoteTool{
		proxy:  p,
		server: server,
		remote: remote,
		name:   server + "_" + remote.Name,
	}
}

func (b *remoteTool) Name() string { return b.name }

func (b *remoteTool) Description() string {
	desc := strings.TrimSpace(b.remote.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.server, b.remote.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.server, b.remote.Name, desc)
}

func (b *remoteTool) Parameters() map[string]any {
	if len(b.remote.InputSchema) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return b.remote.InputSchema
}

func (b *remoteTool) Source() tools.Source { return tools.SourceMCP }

func (b *remoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return b.proxy.VerifiedCall(ctx, b.server, b.remote.Name, args), nil
}
