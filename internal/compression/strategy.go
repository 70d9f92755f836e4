// Package compression keeps LLM prompts under the configured token budget.
// It rewrites older history entries with one of three strategies and caches
// assembled system prompts so unchanged sources are not rebuilt every turn.
package compression

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// Strategy names accepted in configuration.
const (
	StrategySummary    = "summary"
	StrategyTruncation = "truncation"
	StrategySemantic   = "semantic"
)

// Minimum content lengths, in characters. Content at or below the threshold
// passes through untouched.
const (
	truncationMinLength = 200
	summaryMinLength    = 400
	semanticMinLength   = 500
)

// ChatFunc asks the underlying model for a completion with no tools
// attached. The summary strategy uses it to produce condensed history.
type ChatFunc func(ctx context.Context, messages []models.ChatMessage) (*models.LLMResponse, error)

// Strategy reduces content to roughly targetRatio of its original length.
// Implementations never fail: content that cannot be compressed is returned
// unchanged.
type Strategy interface {
	Name() string
	Compress(ctx context.Context, content string, targetRatio float64) string
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncationStrategy cuts content at the target length, preferring a
// sentence or line break near the cut point.
type TruncationStrategy struct{}

func (TruncationStrategy) Name() string { return StrategyTruncation }

func (TruncationStrategy) Compress(_ context.Context, content string, targetRatio float64) string {
	runes := []rune(content)
	n := len(runes)
	if n <= truncationMinLength {
		return content
	}

	target := int(float64(n) * targetRatio)
	if target >= n {
		return content
	}

	slice := runes[:target]

	// Prefer ending on a sentence boundary, but only when the break falls
	// inside the last 30% of the slice.
	breakPoint := -1
	for i := len(slice) - 1; i >= 0; i-- {
		if slice[i] == '.' || slice[i] == '\n' {
			breakPoint = i
			break
		}
	}
	if float64(breakPoint) > float64(target)*0.7 {
		slice = slice[:breakPoint+1]
	}

	if len(slice) < n {
		return string(slice) + "..."
	}
	return string(slice)
}

// Key terms that raise a section's importance score.
var semanticKeyTerms = []string{
	"error", "exception", "result", "summary", "conclusion", "important", "critical",
}

// SemanticStrategy keeps the most important sections of the content and
// drops the rest, preserving original order.
type SemanticStrategy struct{}

func (SemanticStrategy) Name() string { return StrategySemantic }

func (s SemanticStrategy) Compress(ctx context.Context, content string, targetRatio float64) string {
	if runeLen(content) <= semanticMinLength {
		return content
	}

	sections := splitSections(content)
	if len(sections) <= 1 {
		return TruncationStrategy{}.Compress(ctx, content, targetRatio)
	}

	type scored struct {
		index int
		score float64
	}
	scores := make([]scored, len(sections))
	total := 0.0
	for i, section := range sections {
		sc := scoreSection(section)
		scores[i] = scored{index: i, score: sc}
		total += sc
	}
	if total == 0 {
		return TruncationStrategy{}.Compress(ctx, content, targetRatio)
	}

	keep := int(float64(len(sections)) * targetRatio)
	if keep < 1 {
		keep = 1
	}

	// Stable sort so equal scores keep the earlier section.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	indices := make([]int, keep)
	for i := 0; i < keep; i++ {
		indices[i] = scores[i].index
	}
	sort.Ints(indices)

	kept := make([]string, len(indices))
	for i, idx := range indices {
		kept[i] = sections[idx]
	}
	return strings.Join(kept, "\n\n")
}

// splitSections breaks content on blank lines, then re-chunks any section
// over 2000 characters into pieces of roughly 1000 characters.
func splitSections(content string) []string {
	sections := strings.Split(content, "\n\n")

	var result []string
	for _, section := range sections {
		if runeLen(section) <= 2000 {
			result = append(result, section)
			continue
		}
		var chunk string
		for _, line := range strings.Split(section, "\n") {
			if runeLen(chunk)+runeLen(line) > 1000 && chunk != "" {
				result = append(result, chunk)
				chunk = line
			} else if chunk != "" {
				chunk += "\n" + line
			} else {
				chunk = line
			}
		}
		if chunk != "" {
			result = append(result, chunk)
		}
	}
	return result
}

func scoreSection(section string) float64 {
	score := 1.0

	if strings.Contains(section, "```") {
		score += 2.0
	}

	trimmed := strings.TrimSpace(section)
	if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ") {
		score += 1.5
	}

	lower := strings.ToLower(section)
	for _, term := range semanticKeyTerms {
		if strings.Contains(lower, term) {
			score += 0.5
		}
	}

	if runeLen(section) < 100 {
		score *= 0.5
	}
	return score
}

const summaryPrompt = "Summarize the following content concisely, preserving the key information. Aim for roughly %d%% of the original length:\n\n%s\n\nSummary:"

// SummaryStrategy asks the LLM for a condensed rendition. Any provider
// failure returns the original content unchanged.
type SummaryStrategy struct {
	chat ChatFunc
	log  *observability.Logger
}

// NewSummaryStrategy builds a summary strategy around the given chat
// function. A nil chat function disables the strategy: content passes
// through unchanged.
func NewSummaryStrategy(chat ChatFunc, log *observability.Logger) *SummaryStrategy {
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{})
	}
	return &SummaryStrategy{chat: chat, log: log}
}

func (*SummaryStrategy) Name() string { return StrategySummary }

func (s *SummaryStrategy) Compress(ctx context.Context, content string, targetRatio float64) string {
	if runeLen(content) <= summaryMinLength {
		return content
	}
	if s.chat == nil {
		return content
	}

	prompt := fmt.Sprintf(summaryPrompt, int(targetRatio*100), content)
	resp, err := s.chat(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: prompt}})
	if err != nil || resp == nil {
		s.log.Error(ctx, "summary generation failed", "error", err)
		return content
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return content
	}
	s.log.Debug(ctx, "summary generated", "original_chars", runeLen(content), "summary_chars", runeLen(summary))
	return summary
}
