// Package tools implements the tool plane: the Tool contract, a
// schema-validated registry with OpenAI-shaped definitions, and the
// diagnostic-string dispatch the agent loop relies on. Execution failures
// never surface as Go errors to the loop; they come back as strings the
// model can read and react to.
package tools

import (
	"context"
)

// Source identifies where a tool came from.
type Source string

const (
	// SourceLocal marks built-in tools compiled into the binary.
	SourceLocal Source = "local"

	// SourceMCP marks tools proxied from a remote MCP server. The loop
	// dispatches these through the proxy's verification path.
	SourceMCP Source = "mcp"

	// SourceSkill marks tools contributed by a loaded skill.
	SourceSkill Source = "skill"
)

// Tool is a capability the agent can invoke. Parameters returns a JSON
// Schema object ({"type":"object","properties":...,"required":...});
// arguments are validated against it at top level before Execute runs.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Source() Source
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ContextAware is implemented by tools that act on behalf of a conversation
// (message, spawn, cron). The loop calls SetContext before each run so the
// tool routes its side effects to the active channel and chat.
type ContextAware interface {
	SetContext(channel, chatID string)
}

// Definition is one entry of the OpenAI function-calling tool array.
type Definition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the function half of a tool definition.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Definition builds the OpenAI-shaped schema entry for a tool.
func makeDefinition(t Tool) Definition {
	params := t.Parameters()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return Definition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}
