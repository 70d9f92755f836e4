package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
)

// Client is a connected session with one MCP server. Dial performs the
// handshake; the caller is responsible for Close.
type Client struct {
	serverID  string
	transport Transport
	logger    *observability.Logger
	info      ServerInfo
}

// Dial connects a transport and performs the MCP handshake: initialize,
// then the initialized notification.
func Dial(ctx context.Context, serverID string, cfg config.MCPServerConfig, logger *observability.Logger) (*Client, error) {
	c := &Client{
		serverID:  serverID,
		transport: newTransport(serverID, cfg, logger),
		logger:    logger,
	}

	if err := c.transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		c.transport.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	var init InitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		c.transport.Close()
		return nil, fmt.Errorf("parse initialize result: %w", err)
	}
	c.info = init.ServerInfo

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil && logger != nil {
		logger.Debug(ctx, "initialized notification failed",
			"server", serverID, "error", err)
	}

	if logger != nil {
		logger.Debug(ctx, "mcp session established",
			"server", serverID,
			"name", init.ServerInfo.Name,
			"protocol", init.ProtocolVersion)
	}
	return c, nil
}

// Close tears down the session.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ServerInfo returns the identity the server reported during initialize.
func (c *Client) ServerInfo() ServerInfo {
	return c.info
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]*RemoteTool, error) {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var list ListToolsResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}
	return list.Tools, nil
}

// CallTool invokes a remote tool and returns its raw result.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := c.transport.Call(ctx, "tools/call", CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, err
	}
	var call ToolCallResult
	if err := json.Unmarshal(result, &call); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &call, nil
}
