package mcp

import (
	"context"
	"encoding/json"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
)

// Transport carries JSON-RPC traffic to one MCP server for the lifetime of a
// session. Sessions are short-lived: the proxy dials, performs its calls, and
// closes.
type Transport interface {
	// Connect establishes the transport (spawns the subprocess or prepares
	// the HTTP client).
	Connect(ctx context.Context) error

	// Close tears the session down.
	Close() error

	// Call sends a request and waits for the matching response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is usable.
	Connected() bool
}

// newTransport selects the transport for a server definition. Unset
// transports default to stdio, matching config loading.
func newTransport(serverID string, cfg config.MCPServerConfig, logger *observability.Logger) Transport {
	if cfg.Transport == TransportHTTP {
		return newHTTPTransport(serverID, cfg, logger)
	}
	return newStdioTransport(serverID, cfg, logger)
}
