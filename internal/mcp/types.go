// Package mcp implements a Model Context Protocol client and the proxy
// that exposes remote MCP tools through the agent's tool registry.
package mcp

import "encoding/json"

// protocolVersion is the MCP protocol revision sent during initialize.
const protocolVersion = "2024-11-05"

const (
	clientName    = "aisbot"
	clientVersion = "1.0.0"
)

// TransportStdio and TransportHTTP are the supported server transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCNotification is a JSON-RPC 2.0 notification (a request without an ID).
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ServerInfo identifies an MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's reply to the initialize method.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// RemoteTool describes one tool advertised by an MCP server. InputSchema is
// kept as a decoded map so arguments can be validated with the same rules as
// local tools.
type RemoteTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	Meta        map[string]any `json:"_meta,omitempty"`
}

// UsageHint returns the optional usage note some servers attach to tool
// metadata.
func (t *RemoteTool) UsageHint() string {
	if t == nil || t.Meta == nil {
		return ""
	}
	usage, _ := t.Meta["usage"].(string)
	return usage
}

// ListToolsResult is the reply to tools/list.
type ListToolsResult struct {
	Tools []*RemoteTool `json:"tools"`
}

// CallToolParams are the parameters for tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentPart is one piece of content in a tool call result.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCallResult is the reply to tools/call.
type ToolCallResult struct {
	Content []ContentPart `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text reduces a tool result to its canonical string form: the first content
// part's text when it is text-typed, otherwise the first part serialized as
// JSON, otherwise "(no output)".
func (r *ToolCallResult) Text() string {
	if r == nil || len(r.Content) == 0 {
		return "(no output)"
	}
	first := r.Content[0]
	if first.Type == "text" {
		return first.Text
	}
	payload, err := json.Marshal(first)
	if err != nil {
		return "(no output)"
	}
	return string(payload)
}
