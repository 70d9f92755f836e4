package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/internal/sessions"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// Manager runs background subagent tasks. Each task gets its own bounded
// conversation under a task-scoped session; the result is announced back
// to the origin conversation as a system-channel inbound message, which
// the loop picks up like any other message.
//
// The manager references the bus and the chat client, never the loop, so
// subagents cannot recurse into message handling.
type Manager struct {
	bus      *bus.MessageBus
	chat     ChatClient
	registry *tools.Registry
	sessions sessions.Store
	logger   *observability.Logger
	metrics  *observability.Metrics

	workspace     string
	model         string
	maxIterations int
	maxTokens     int
	temperature   float64

	mu      sync.Mutex
	active  map[string]string
	wg      sync.WaitGroup
}

// NewManager creates a subagent manager. registry should carry only the
// tools subagents may use; context-routed tools (message, spawn, cron) are
// normally excluded so a task cannot fan out further.
func NewManager(b *bus.MessageBus, chat ChatClient, registry *tools.Registry, store sessions.Store, workspacePath string, defaults config.AgentDefaults, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	maxIterations := defaults.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Manager{
		bus:           b,
		chat:          chat,
		registry:      registry,
		sessions:      store,
		logger:        logger,
		metrics:       metrics,
		workspace:     workspacePath,
		model:         defaults.Model,
		maxIterations: maxIterations,
		maxTokens:     defaults.MaxTokens,
		temperature:   defaults.Temperature,
		active:        make(map[string]string),
	}
}

// Spawn launches a background run for task and returns its id immediately.
// The run's outcome is published later as a system message addressed to
// "<originChannel>:<originChatID>".
func (m *Manager) Spawn(ctx context.Context, task, originChannel, originChatID string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task is empty")
	}

	id := shortID()
	m.mu.Lock()
	m.active[id] = task
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionStarted("subagent")
	}
	m.logger.Info(ctx, "subagent spawned",
		"id", id, "origin", originChannel+":"+originChatID, "task", preview(task, 80))

	// The run outlives the tool call that requested it.
	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, id)
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.SessionEnded("subagent")
			}
		}()
		m.run(runCtx, id, task, originChannel, originChatID)
	}()

	return id, nil
}

// Active returns the ids of currently running tasks, unordered.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every running subagent has announced its result.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// run executes one task to completion and announces the outcome.
func (m *Manager) run(ctx context.Context, id, task, originChannel, originChatID string) {
	output, err := m.execute(ctx, id, task, originChannel, originChatID)

	var content string
	if err != nil {
		m.logger.Error(ctx, "subagent failed", "id", id, "error", err)
		content = fmt.Sprintf("[Subagent %s failed] %v", id, err)
	} else {
		m.logger.Info(ctx, "subagent completed", "id", id, "preview", preview(output, 80))
		content = fmt.Sprintf("[Subagent %s completed] %s", id, output)
	}

	announce := models.NewInboundMessage(models.ChannelSystem, "subagent", originChannel+":"+originChatID, content)
	if err := m.bus.PublishInbound(ctx, announce); err != nil {
		m.logger.Error(ctx, "subagent announce publish failed", "id", id, "error", err)
	}
}

// execute drives the subagent's own conversation until the model stops
// requesting tools or the iteration bound is hit.
func (m *Manager) execute(ctx context.Context, id, task, originChannel, originChatID string) (string, error) {
	session, err := m.sessions.GetOrCreate(ctx, "subagent:"+id)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: m.systemPrompt(originChannel, originChatID)},
		{Role: models.RoleUser, Content: task},
	}

	var defs []tools.Definition
	if m.registry != nil {
		defs = m.registry.Definitions()
	}

	output := ""
	finished := false
	for iteration := 0; iteration < m.maxIterations; iteration++ {
		response := m.chat.Chat(ctx, &ChatRequest{
			Model:       m.model,
			Messages:    messages,
			Tools:       defs,
			MaxTokens:   m.maxTokens,
			Temperature: m.temperature,
		})

		if !response.HasToolCalls() {
			output = response.Content
			finished = true
			break
		}
		if m.registry == nil {
			output = response.Content
			finished = true
			break
		}

		messages = appendAssistantTurn(messages, response.Content, toolCallRecords(response.ToolCalls))
		for _, call := range response.ToolCalls {
			m.logger.Info(ctx, "subagent tool call",
				"id", id, "tool", call.Name, "args", preview(encodeArguments(call.Arguments), 200))
			result := m.registry.Execute(ctx, call.Name, call.Arguments)
			messages = appendToolResult(messages, call.ID, call.Name, result)
		}
	}
	if !finished {
		output = "(no output)"
	}

	session.AddMessage(models.RoleUser, task)
	session.AddMessage(models.RoleAssistant, output)
	if err := m.sessions.Save(ctx, session); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return output, nil
}

func (m *Manager) systemPrompt(originChannel, originChatID string) string {
	return fmt.Sprintf(`# aisbot subagent

You are a subagent spawned to complete one background task. Work through it
autonomously with the tools available, then reply with a final summary of
the outcome. Your reply is announced to the conversation that spawned you;
you cannot ask questions or wait for input.

## Runtime
%s

## Workspace
Your workspace is at: %s

## Origin
Spawned from: %s:%s`, runtimeInfo(), m.workspace, originChannel, originChatID)
}

// shortID returns the first uuid group, enough to tell tasks apart in chat.
func shortID() string {
	id := uuid.NewString()
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
