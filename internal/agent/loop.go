// Package agent implements the core processing engine: the loop that
// consumes inbound messages from the bus, assembles context, drives the
// LLM through tool iterations, and publishes replies. It also hosts the
// provider contract and the subagent manager.
package agent

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/compression"
	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/internal/sessions"
	"github.com/aisbot/aisbot/internal/tools"
	"github.com/aisbot/aisbot/pkg/models"
)

// defaultMaxIterations bounds the tool loop when configuration does not.
const defaultMaxIterations = 20

// Deps wires a loop's collaborators. Bus, Chat, Sessions, Registry, and
// Context are required; Compressor, Discovery, Logger, Metrics, and Tracer
// may be nil.
type Deps struct {
	Bus        *bus.MessageBus
	Chat       ChatClient
	Sessions   sessions.Store
	Registry   *tools.Registry
	Context    *ContextBuilder
	Compressor *compression.Compressor
	Discovery  ToolDiscovery
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// Loop is the core processing engine. It consumes inbound messages from
// the bus, builds context with history, memory, and skills, calls the LLM,
// executes requested tools, and publishes exactly one reply per message.
type Loop struct {
	bus        *bus.MessageBus
	chat       ChatClient
	sessions   sessions.Store
	registry   *tools.Registry
	context    *ContextBuilder
	compressor *compression.Compressor
	discovery  ToolDiscovery
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer

	model         string
	maxIterations int
	maxTokens     int
	temperature   float64

	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a loop with the given collaborators and per-turn limits.
func NewLoop(deps Deps, defaults config.AgentDefaults) *Loop {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	maxIterations := defaults.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Loop{
		bus:           deps.Bus,
		chat:          deps.Chat,
		sessions:      deps.Sessions,
		registry:      deps.Registry,
		context:       deps.Context,
		compressor:    deps.Compressor,
		discovery:     deps.Discovery,
		logger:        logger,
		metrics:       deps.Metrics,
		tracer:        deps.Tracer,
		model:         defaults.Model,
		maxIterations: maxIterations,
		maxTokens:     defaults.MaxTokens,
		temperature:   defaults.Temperature,
		done:          make(chan struct{}),
	}
}

// Run processes inbound messages until Stop is called or the context is
// cancelled. MCP catalogs are preloaded once before the first message.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info(ctx, "agent loop started", "model", l.model)

	if l.discovery != nil && len(l.discovery.CachedTools()) == 0 {
		l.discovery.Preload(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		default:
		}

		msg, err := l.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn(ctx, "inbound consume failed", "error", err)
			continue
		}
		if msg == nil {
			continue
		}
		l.handle(ctx, msg)
	}
}

// Stop ends Run after the in-flight message, if any, finishes.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.logger.Info(context.Background(), "agent loop stopping")
	})
}

// handle processes one message and publishes the reply. Processing errors
// are reported back to the sender instead of crashing the loop.
func (l *Loop) handle(ctx context.Context, msg *models.InboundMessage) {
	response, err := l.processMessage(ctx, msg)
	if err != nil {
		l.logger.Error(ctx, "message processing failed",
			"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		if l.metrics != nil {
			l.metrics.RecordError("agent", "process_message")
		}
		errReply := models.NewOutboundMessage(msg.Channel, msg.ChatID,
			"Sorry, I encountered an error: "+err.Error())
		if pubErr := l.bus.PublishOutbound(ctx, errReply); pubErr != nil {
			l.logger.Error(ctx, "error reply publish failed", "error", pubErr)
		}
		return
	}
	if response == nil {
		return
	}
	if err := l.bus.PublishOutbound(ctx, response); err != nil {
		l.logger.Error(ctx, "outbound publish failed",
			"channel", response.Channel, "error", err)
	}
}

// RunDirect processes one message synchronously under the cli:direct
// session and returns the reply text. CLI one-shots use it; the message
// still runs through the full session and tool machinery.
func (l *Loop) RunDirect(ctx context.Context, content string) (string, error) {
	if l.discovery != nil && len(l.discovery.CachedTools()) == 0 {
		l.discovery.Preload(ctx)
	}

	msg := models.NewInboundMessage("cli", "user", "direct", content)
	response, err := l.processMessage(ctx, msg)
	if err != nil {
		return "", err
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}

func (l *Loop) processMessage(ctx context.Context, msg *models.InboundMessage) (*models.OutboundMessage, error) {
	if msg.IsSystem() {
		return l.processSystemMessage(ctx, msg)
	}

	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.TraceMessageProcessing(ctx, msg.Channel, msg.ChatID)
		defer span.End()
	}
	if l.metrics != nil {
		l.metrics.MessageReceived(msg.Channel)
	}
	l.logger.Info(ctx, "processing message",
		"channel", msg.Channel, "sender", msg.SenderID, "preview", preview(msg.Content, 80))

	session, err := l.sessions.GetOrCreate(ctx, msg.SessionKey())
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	// Point context-aware tools (message, spawn, cron) at this conversation.
	l.registry.SetContext(msg.Channel, msg.ChatID)

	toolsSummary := l.context.BuildToolsSummary(l.registry, l.discovery)
	messages, stats := l.context.BuildMessages(ctx, BuildInput{
		History:      session.History(),
		Current:      msg.Content,
		Media:        msg.Media,
		Channel:      msg.Channel,
		ChatID:       msg.ChatID,
		ToolsSummary: toolsSummary,
	})
	if stats.Compressed {
		l.logger.Info(ctx, "history compressed",
			"original_tokens", stats.OriginalTokens,
			"final_tokens", stats.FinalTokens,
			"reduction_percent", stats.ReductionPercent)
	}

	finalContent, done := l.converse(ctx, messages, true)
	if !done {
		finalContent = "I've completed processing but have no response to give."
	}

	l.logger.Info(ctx, "sending response",
		"channel", msg.Channel, "sender", msg.SenderID, "preview", preview(finalContent, 120))

	session.AddMessage(models.RoleUser, msg.Content)
	session.AddMessage(models.RoleAssistant, finalContent)
	if err := l.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if l.metrics != nil {
		l.metrics.MessageSent(msg.Channel)
	}
	return models.NewOutboundMessage(msg.Channel, msg.ChatID, finalContent), nil
}

// processSystemMessage handles announces from subagents and cron firings.
// The chat_id field carries "origin_channel:origin_chat_id"; the reply is
// routed to that conversation and recorded in its session.
func (l *Loop) processSystemMessage(ctx context.Context, msg *models.InboundMessage) (*models.OutboundMessage, error) {
	l.logger.Info(ctx, "processing system message", "sender", msg.SenderID)

	originChannel, originChatID := models.ParseSystemChatID(msg.ChatID)
	session, err := l.sessions.GetOrCreate(ctx, originChannel+":"+originChatID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	l.registry.SetContext(originChannel, originChatID)

	toolsSummary := l.context.BuildToolsSummary(l.registry, l.discovery)
	messages, _ := l.context.BuildMessages(ctx, BuildInput{
		History:      session.History(),
		Current:      msg.Content,
		Channel:      originChannel,
		ChatID:       originChatID,
		ToolsSummary: toolsSummary,
	})

	finalContent, done := l.converse(ctx, messages, false)
	if !done {
		finalContent = "Background task completed."
	}

	session.AddMessage(models.RoleUser, fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content))
	session.AddMessage(models.RoleAssistant, finalContent)
	if err := l.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return models.NewOutboundMessage(originChannel, originChatID, finalContent), nil
}

// converse drives the model until it answers without tool calls, returning
// the final content and true. When the iteration bound is exhausted it
// returns false and the caller supplies a fallback. compressResults enables
// tool-result compression for interactive turns; announce handling skips it.
func (l *Loop) converse(ctx context.Context, messages []models.ChatMessage, compressResults bool) (string, bool) {
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		response := l.chat.Chat(ctx, &ChatRequest{
			Model:       l.model,
			Messages:    messages,
			Tools:       l.registry.Definitions(),
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		})

		if !response.HasToolCalls() {
			return response.Content, true
		}

		messages = appendAssistantTurn(messages, response.Content, toolCallRecords(response.ToolCalls))
		for _, call := range response.ToolCalls {
			l.logger.Info(ctx, "tool call",
				"tool", call.Name, "args", preview(encodeArguments(call.Arguments), 200))

			result := l.executeTool(ctx, call.Name, call.Arguments)
			if compressResults && l.compressor != nil {
				compressed := l.compressor.CompressToolResult(ctx, result)
				if len(compressed) < len(result) {
					l.logger.Info(ctx, "tool result compressed",
						"tool", call.Name, "original_chars", len(result), "compressed_chars", len(compressed))
				}
				result = compressed
			}
			messages = appendToolResult(messages, call.ID, call.Name, result)
		}
	}
	return "", false
}

func (l *Loop) executeTool(ctx context.Context, name string, args map[string]any) string {
	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.TraceToolExecution(ctx, name)
		defer span.End()
	}
	return l.registry.Execute(ctx, name, args)
}

// preview truncates s for log lines, marking elided content.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
