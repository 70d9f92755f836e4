package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aisbot/aisbot/internal/observability"
)

// Registry maps tool names to tools with thread-safe registration and
// lookup. Registration is monotonic: a name, once taken, cannot be rebound,
// so tool identity stays stable for the lifetime of the process.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry. Logger and metrics may be nil.
func NewRegistry(logger *observability.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a tool. A duplicate name or a parameter schema that does not
// compile is rejected.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tools: tool has empty name")
	}
	if err := compileToolSchema(name, tool.Parameters()); err != nil {
		return fmt.Errorf("tools: invalid schema for %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: tool already registered: %s", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns the registered tools in registration order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns every tool as an OpenAI function-calling schema entry,
// in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, makeDefinition(r.tools[name]))
	}
	return defs
}

// SetContext pushes the active conversation routing tuple to every tool
// that wants one.
func (r *Registry) SetContext(channel, chatID string) {
	for _, tool := range r.All() {
		if ca, ok := tool.(ContextAware); ok {
			ca.SetContext(channel, chatID)
		}
	}
}

// Execute looks up a tool, validates the arguments against its schema, and
// runs it. Every failure mode returns a diagnostic string rather than an
// error, so the model always sees a tool result it can react to.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	tool, ok := r.Get(name)
	if !ok {
		r.recordExecution(name, "unknown", 0)
		return "Unknown tool: " + name
	}

	if err := ValidateArguments(tool.Parameters(), args); err != nil {
		r.recordExecution(name, "invalid_args", 0)
		return fmt.Sprintf("Invalid arguments for %s: %v", name, err)
	}

	start := time.Now()
	result, err := runTool(ctx, tool, args)
	elapsed := time.Since(start)
	if err != nil {
		r.recordExecution(name, "error", elapsed)
		if r.logger != nil {
			r.logger.Warn(ctx, "tool execution failed", "tool", name, "error", err)
		}
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}
	r.recordExecution(name, "ok", elapsed)
	return result
}

// runTool isolates tool panics, converting them to errors so a misbehaving
// tool cannot take down the loop.
func runTool(ctx context.Context, tool Tool, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return tool.Execute(ctx, args)
}

func (r *Registry) recordExecution(name, status string, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordToolExecution(name, status, elapsed.Seconds())
	}
}

// compileToolSchema rejects parameter schemas that are not valid JSON
// Schema. Compiled schemas are not retained; top-level argument checks use
// ValidateArguments at call time.
func compileToolSchema(name string, params map[string]any) error {
	if params == nil {
		return nil
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = jsonschema.CompileString(name+".schema.json", string(payload))
	return err
}
