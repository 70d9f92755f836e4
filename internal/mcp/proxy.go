package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/internal/tools"
)

// Proxy brokers calls to the configured MCP servers. Tool catalogs are
// cached per server; sessions are opened per operation and closed when it
// finishes. One unreachable server never blocks the others.
type Proxy struct {
	servers map[string]config.MCPServerConfig
	logger  *observability.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	cache map[string][]*RemoteTool
}

// NewProxy creates a proxy over the given server definitions. Logger and
// metrics may be nil.
func NewProxy(servers map[string]config.MCPServerConfig, logger *observability.Logger, metrics *observability.Metrics) *Proxy {
	if servers == nil {
		servers = map[string]config.MCPServerConfig{}
	}
	return &Proxy{
		servers: servers,
		logger:  logger,
		metrics: metrics,
		cache:   make(map[string][]*RemoteTool),
	}
}

// ServerNames returns the configured server names, sorted.
func (p *Proxy) ServerNames() []string {
	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasServer reports whether a server with the given name is configured.
func (p *Proxy) HasServer(name string) bool {
	_, ok := p.servers[name]
	return ok
}

// ServerConfig returns the definition for one server.
func (p *Proxy) ServerConfig(name string) (config.MCPServerConfig, bool) {
	cfg, ok := p.servers[name]
	return cfg, ok
}

// Preload fetches the tool catalog of every configured server. Failures are
// logged and leave that server's cache empty; the other servers stay usable.
func (p *Proxy) Preload(ctx context.Context) {
	for _, name := range p.ServerNames() {
		if _, err := p.refreshTools(ctx, name); err != nil && p.logger != nil {
			p.logger.Warn(ctx, "mcp tool discovery failed",
				"server", name, "error", err)
		}
	}
}

// Tools returns the cached catalog for a server, fetching it on first use.
// The returned slice is shared; callers must not mutate it.
func (p *Proxy) Tools(ctx context.Context, server string) []*RemoteTool {
	p.mu.Lock()
	cached, ok := p.cache[server]
	p.mu.Unlock()
	if ok {
		return cached
	}
	fetched, _ := p.refreshTools(ctx, server)
	return fetched
}

// CachedTools returns a snapshot of every populated catalog, keyed by server.
func (p *Proxy) CachedTools() map[string][]*RemoteTool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][]*RemoteTool, len(p.cache))
	for server, list := range p.cache {
		out[server] = list
	}
	return out
}

// refreshTools refetches one server's catalog. The cache entry is written
// even on failure so summary rendering sees the server as visited; an empty
// entry triggers another refresh on the next verification.
func (p *Proxy) refreshTools(ctx context.Context, server string) ([]*RemoteTool, error) {
	cfg, ok := p.servers[server]
	if !ok {
		return nil, fmt.Errorf("mcp server %q not found", server)
	}

	var fetched []*RemoteTool
	err := p.withSession(ctx, server, cfg, func(client *Client) error {
		list, err := client.ListTools(ctx)
		if err != nil {
			return err
		}
		fetched = list
		return nil
	})

	p.mu.Lock()
	p.cache[server] = fetched
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return fetched, nil
}

// Call opens a session to the server, invokes the remote tool, and returns
// the canonical text of its result. Errors are tagged with the transport so
// the model can tell which path failed.
func (p *Proxy) Call(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	cfg, ok := p.servers[server]
	if !ok {
		return "", fmt.Errorf("mcp server %q not found", server)
	}

	start := time.Now()
	var out string
	err := p.withSession(ctx, server, cfg, func(client *Client) error {
		result, err := client.CallTool(ctx, tool, args)
		if err != nil {
			return err
		}
		out = result.Text()
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordMCPCall(server, status, time.Since(start).Seconds())
	}

	if err != nil {
		return "", fmt.Errorf("%s MCP error: %w", transportLabel(cfg), err)
	}
	return out, nil
}

// VerifiedCall re-checks the server, the remote tool (refreshing an empty
// catalog), and the arguments before dispatching. Every negative outcome is
// returned as a diagnostic string listing the available alternatives.
func (p *Proxy) VerifiedCall(ctx context.Context, server, tool string, args map[string]any) string {
	if !p.HasServer(server) {
		return fmt.Sprintf("Error: MCP server '%s' not found. Available servers: %s",
			server, joinOrNone(p.ServerNames()))
	}

	catalog := p.Tools(ctx, server)
	remote := findTool(catalog, tool)
	if remote == nil && len(catalog) == 0 {
		catalog, _ = p.refreshTools(ctx, server)
		remote = findTool(catalog, tool)
	}
	if remote == nil {
		return fmt.Sprintf("Error: tool '%s' not found on MCP server '%s'. Available tools: %s",
			tool, server, joinOrNone(toolNames(catalog)))
	}

	if err := tools.ValidateArguments(remote.InputSchema, args); err != nil {
		return fmt.Sprintf("Invalid arguments for %s_%s: %v", server, tool, err)
	}

	out, err := p.Call(ctx, server, tool, args)
	if err != nil {
		return err.Error()
	}
	return out
}

// Summary renders every server with its discovered tools, parameters, and
// usage hints for the model. Catalogs missing from the cache are fetched;
// unreachable servers show with no tool lines.
func (p *Proxy) Summary(ctx context.Context) string {
	var summaries []string
	for _, name := range p.ServerNames() {
		cfg := p.servers[name]
		transport := cfg.Transport
		if transport == "" {
			transport = TransportStdio
		}

		line := fmt.Sprintf("- %s (%s)", name, transport)
		if cfg.Description != "" {
			line += ": " + cfg.Description
		}

		var toolLines []string
		for _, tool := range p.Tools(ctx, name) {
			entry := fmt.Sprintf("    Tool: %s", tool.Name)
			if tool.Description != "" {
				entry += fmt.Sprintf("\n      Description: %s", tool.Description)
			}
			if len(tool.InputSchema) > 0 {
				if schema, err := json.Marshal(tool.InputSchema); err == nil {
					entry += fmt.Sprintf("\n      Parameters: %s", schema)
				}
			}
			if usage := tool.UsageHint(); usage != "" {
				entry += fmt.Sprintf("\n      Common Usage: %s", usage)
			}
			toolLines = append(toolLines, entry)
		}
		if len(toolLines) > 0 {
			line += "\n" + strings.Join(toolLines, "\n")
		}
		summaries = append(summaries, line)
	}
	return "Registered MCP servers & tools:\n" + strings.Join(summaries, "\n")
}

// RegisterAll registers every discovered remote tool with the registry under
// its composite "<server>_<tool>" name. Registration failures (name
// collisions, uncompilable schemas) are logged and skipped. Returns the
// names that were registered.
func (p *Proxy) RegisterAll(ctx context.Context, reg *tools.Registry) []string {
	var registered []string
	for _, server := range p.ServerNames() {
		for _, remote := range p.Tools(ctx, server) {
			bridge := newRemoteTool(p, server, remote)
			if err := reg.Register(bridge); err != nil {
				if p.logger != nil {
					p.logger.Warn(ctx, "skipping mcp tool registration",
						"server", server, "tool", remote.Name, "error", err)
				}
				continue
			}
			registered = append(registered, bridge.Name())
		}
	}
	return registered
}

func (p *Proxy) withSession(ctx context.Context, server string, cfg config.MCPServerConfig, fn func(*Client) error) error {
	client, err := Dial(ctx, server, cfg, p.logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func transportLabel(cfg config.MCPServerConfig) string {
	if cfg.Transport == TransportHTTP {
		return "HTTP"
	}
	return "STDIO"
}

func findTool(catalog []*RemoteTool, name string) *RemoteTool {
	for _, tool := range catalog {
		if tool.Name == name {
			return tool
		}
	}
	return nil
}

func toolNames(catalog []*RemoteTool) []string {
	names := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		names = append(names, tool.Name)
	}
	return names
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
