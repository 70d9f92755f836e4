package compression

import (
	"context"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// Ratios applied when rewriting content. Older history is compressed harder
// than tool results.
const (
	historyRatio    = 0.3
	toolResultRatio = 0.4
)

// toolResultMaxLength is the tool output size, in characters, above which
// the result is compressed before it is appended to the conversation.
const toolResultMaxLength = 1000

// Stats describes the outcome of one compression pass.
type Stats struct {
	Compressed       bool    `json:"compressed"`
	OriginalTokens   int     `json:"original_tokens,omitempty"`
	FinalTokens      int     `json:"final_tokens,omitempty"`
	Reduction        int     `json:"reduction,omitempty"`
	ReductionPercent float64 `json:"reduction_percent,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// Reasons reported when a pass leaves the messages untouched.
const (
	ReasonDisabled   = "disabled"
	ReasonUnderLimit = "under_limit"
)

// EstimateTokens estimates the token count of a piece of text using the
// four-characters-per-token heuristic, rounding up.
func EstimateTokens(content string) int {
	return (runeLen(content) + 3) / 4
}

// EstimateMessageTokens sums the token estimate over all text in the
// messages. Image parts are not counted; the model accounts for those
// separately.
func EstimateMessageTokens(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += (m.TextLen() + 3) / 4
	}
	return total
}

// Compressor rewrites conversation history to fit the configured token
// budget while keeping the system prompt and the most recent turns intact.
type Compressor struct {
	cfg     config.CompressionConfig
	log     *observability.Logger
	metrics *observability.Metrics

	cache      *SystemPromptCache
	strategies map[string]Strategy
}

// NewCompressor builds a compressor. chat powers the summary strategy and
// may be nil, in which case summaries degrade to passthrough. log and
// metrics may be nil.
func NewCompressor(cfg config.CompressionConfig, chat ChatFunc, log *observability.Logger, metrics *observability.Metrics) *Compressor {
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{})
	}
	return &Compressor{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		cache:   NewSystemPromptCache(),
		strategies: map[string]Strategy{
			StrategySummary:    NewSummaryStrategy(chat, log),
			StrategyTruncation: TruncationStrategy{},
			StrategySemantic:   SemanticStrategy{},
		},
	}
}

// Config returns the compression configuration in effect.
func (c *Compressor) Config() config.CompressionConfig {
	return c.cfg
}

// Strategy returns the named strategy, or nil when unknown.
func (c *Compressor) Strategy(name string) Strategy {
	return c.strategies[name]
}

// SetStrategy installs or replaces a named strategy.
func (c *Compressor) SetStrategy(name string, s Strategy) {
	c.strategies[name] = s
}

// CompressMessages rewrites the message list to fit under the target token
// budget. The system prompt and the most recent recent_messages_keep
// non-system messages are never modified.
func (c *Compressor) CompressMessages(ctx context.Context, messages []models.ChatMessage) ([]models.ChatMessage, Stats) {
	if !c.cfg.Enabled {
		c.recordPass(ReasonDisabled, 0)
		return messages, Stats{Compressed: false, Reason: ReasonDisabled}
	}

	total := EstimateMessageTokens(messages)
	c.log.Debug(ctx, "estimated context size", "tokens", total, "target", c.cfg.TargetContextTokens)

	if total <= c.cfg.TargetContextTokens {
		c.recordPass(ReasonUnderLimit, 0)
		return messages, Stats{Compressed: false, OriginalTokens: total, Reason: ReasonUnderLimit}
	}

	compressed := c.applyCompression(ctx, messages)
	final := EstimateMessageTokens(compressed)

	stats := Stats{
		Compressed:     true,
		OriginalTokens: total,
		FinalTokens:    final,
		Reduction:      total - final,
	}
	if total > 0 {
		stats.ReductionPercent = float64(total-final) / float64(total) * 100
	}

	c.log.Info(ctx, "context compressed",
		"original_tokens", total,
		"final_tokens", final,
		"reduction_percent", stats.ReductionPercent)
	c.recordPass("compressed", stats.Reduction)

	return compressed, stats
}

func (c *Compressor) recordPass(reason string, tokensSaved int) {
	if c.metrics != nil {
		c.metrics.RecordCompression(reason, tokensSaved)
	}
}

// applyCompression hoists system messages to the front and compresses the
// older portion of the remaining history.
func (c *Compressor) applyCompression(ctx context.Context, messages []models.ChatMessage) []models.ChatMessage {
	if len(messages) == 0 {
		return messages
	}

	var system, others []models.ChatMessage
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return messages
	}

	history := c.compressHistory(ctx, others)

	out := make([]models.ChatMessage, 0, len(system)+len(history))
	out = append(out, system...)
	out = append(out, history...)
	return out
}

// compressHistory rewrites every message older than the keep window whose
// content is a sufficiently long string. Recent messages pass through
// verbatim.
func (c *Compressor) compressHistory(ctx context.Context, messages []models.ChatMessage) []models.ChatMessage {
	if len(messages) <= c.cfg.RecentMessagesKeep {
		return messages
	}

	split := len(messages) - c.cfg.RecentMessagesKeep
	older := messages[:split]
	recent := messages[split:]

	strategy := c.strategies[c.cfg.Strategy]
	if strategy == nil {
		strategy = c.strategies[StrategySemantic]
	}

	out := make([]models.ChatMessage, 0, len(messages))
	for _, msg := range older {
		if len(msg.Parts) == 0 && runeLen(msg.Content) > c.cfg.MinContentLength {
			original := msg.Content
			msg.Content = strategy.Compress(ctx, original, historyRatio)
			msg.Compressed = true
			msg.OriginalLength = runeLen(original)
		}
		out = append(out, msg)
	}
	return append(out, recent...)
}

// CompressToolResult compresses a long tool output before it is appended to
// the conversation. Short results are returned as-is.
func (c *Compressor) CompressToolResult(ctx context.Context, result string) string {
	if runeLen(result) <= toolResultMaxLength {
		return result
	}
	strategy := c.strategies[c.cfg.Strategy]
	if strategy == nil {
		return result
	}
	compressed := strategy.Compress(ctx, result, toolResultRatio)
	c.log.Debug(ctx, "tool result compressed", "original_chars", runeLen(result), "compressed_chars", runeLen(compressed))
	return compressed
}

// CompressSystemPrompt returns the cached prompt when the content sources
// have not changed since the last call, and caches the given prompt
// otherwise.
func (c *Compressor) CompressSystemPrompt(ctx context.Context, systemPrompt string, sources map[string]string) string {
	if !c.cfg.PreserveSystemPromptCache {
		return systemPrompt
	}

	key := sourcesKey(sources)
	serialized := serializeSources(sources)

	if cached, ok := c.cache.Get(key, serialized); ok {
		c.log.Debug(ctx, "system prompt cache hit", "key", key)
		return cached
	}

	c.cache.Set(key, systemPrompt, serialized)
	return systemPrompt
}

// ClearPromptCache drops all cached system prompts.
func (c *Compressor) ClearPromptCache() {
	c.cache.Clear()
}
