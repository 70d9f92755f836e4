package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// Tracks message flow through the bus, LLM request performance, tool
// execution, MCP calls, context compression, and session persistence.
type Metrics struct {
	// MessageCounter tracks messages by channel and direction.
	// Labels: channel, direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// BusMessages counts envelopes moving through the bus.
	// Labels: provider (dds|zenoh), topic (inbound|outbound), op (publish|consume)
	BusMessages *prometheus.CounterVec

	// BusDropped counts envelopes the bus discarded.
	// Labels: provider, topic, reason (malformed|callback_error)
	BusDropped *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// MCPCallCounter counts MCP remote tool calls.
	// Labels: server, status (success|error)
	MCPCallCounter *prometheus.CounterVec

	// MCPCallDuration measures MCP call latency in seconds.
	// Labels: server
	MCPCallDuration *prometheus.HistogramVec

	// CompressionRuns counts compression attempts by outcome.
	// Labels: reason (compressed|disabled|under_limit|too_few_messages)
	CompressionRuns *prometheus.CounterVec

	// CompressionTokensSaved accumulates tokens removed by compression.
	CompressionTokensSaved prometheus.Counter

	// ErrorCounter tracks errors by component and type.
	// Labels: component (agent|bus|channel|tool|session), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of sessions with in-memory state.
	// Labels: channel
	ActiveSessions *prometheus.GaugeVec

	// StoreQueryDuration measures session store operation latency.
	// Labels: operation (append|load|list), backend (file|sqlite|memory)
	StoreQueryDuration *prometheus.HistogramVec

	// StoreQueryCounter counts session store operations.
	// Labels: operation, backend, status (success|error)
	StoreQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at application startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics against the given registerer. Tests
// pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_messages_total",
				Help: "Total number of messages processed by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		BusMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_bus_messages_total",
				Help: "Total number of envelopes through the bus by provider, topic, and operation",
			},
			[]string{"provider", "topic", "op"},
		),

		BusDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_bus_dropped_total",
				Help: "Total number of envelopes dropped by the bus",
			},
			[]string{"provider", "topic", "reason"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aisbot_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aisbot_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		MCPCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_mcp_calls_total",
				Help: "Total number of MCP remote tool calls by server and status",
			},
			[]string{"server", "status"},
		),

		MCPCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aisbot_mcp_call_duration_seconds",
				Help:    "Duration of MCP remote tool calls in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"server"},
		),

		CompressionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_compression_runs_total",
				Help: "Total number of context compression attempts by outcome",
			},
			[]string{"reason"},
		),

		CompressionTokensSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aisbot_compression_tokens_saved_total",
				Help: "Total estimated tokens removed by context compression",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aisbot_active_sessions",
				Help: "Current number of active sessions by channel",
			},
			[]string{"channel"},
		),

		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aisbot_session_store_duration_seconds",
				Help:    "Duration of session store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "backend"},
		),

		StoreQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aisbot_session_store_operations_total",
				Help: "Total number of session store operations",
			},
			[]string{"operation", "backend", "status"},
		),
	}
}

// MessageReceived increments the message counter for inbound messages.
func (m *Metrics) MessageReceived(channel string) {
	m.MessageCounter.WithLabelValues(channel, "inbound").Inc()
}

// MessageSent increments the message counter for outbound messages.
func (m *Metrics) MessageSent(channel string) {
	m.MessageCounter.WithLabelValues(channel, "outbound").Inc()
}

// RecordBusMessage counts one envelope through the bus.
func (m *Metrics) RecordBusMessage(provider, topic, op string) {
	m.BusMessages.WithLabelValues(provider, topic, op).Inc()
}

// RecordBusDrop counts one discarded envelope.
func (m *Metrics) RecordBusDrop(provider, topic, reason string) {
	m.BusDropped.WithLabelValues(provider, topic, reason).Inc()
}

// RecordLLMRequest records metrics for an LLM API request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordMCPCall records metrics for an MCP remote tool call.
func (m *Metrics) RecordMCPCall(server, status string, durationSeconds float64) {
	m.MCPCallCounter.WithLabelValues(server, status).Inc()
	m.MCPCallDuration.WithLabelValues(server).Observe(durationSeconds)
}

// RecordCompression records one compression attempt and the tokens it saved.
func (m *Metrics) RecordCompression(reason string, tokensSaved int) {
	m.CompressionRuns.WithLabelValues(reason).Inc()
	if tokensSaved > 0 {
		m.CompressionTokensSaved.Add(float64(tokensSaved))
	}
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted(channel string) {
	m.ActiveSessions.WithLabelValues(channel).Inc()
}

// SessionEnded decrements the active sessions gauge.
func (m *Metrics) SessionEnded(channel string) {
	m.ActiveSessions.WithLabelValues(channel).Dec()
}

// RecordStoreOperation records metrics for a session store operation.
func (m *Metrics) RecordStoreOperation(operation, backend, status string, durationSeconds float64) {
	m.StoreQueryCounter.WithLabelValues(operation, backend, status).Inc()
	m.StoreQueryDuration.WithLabelValues(operation, backend).Observe(durationSeconds)
}
