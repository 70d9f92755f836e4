package compression

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error"})
}

// fakeChat returns a ChatFunc that always answers with content and counts
// its invocations.
func fakeChat(content string, calls *int) ChatFunc {
	return func(ctx context.Context, messages []models.ChatMessage) (*models.LLMResponse, error) {
		*calls++
		return &models.LLMResponse{Content: content}, nil
	}
}

func TestTruncationCompressesLongContent(t *testing.T) {
	content := strings.Repeat("This is a test. ", 50)

	out := TruncationStrategy{}.Compress(context.Background(), content, 0.5)

	if len(out) >= len(content) {
		t.Fatalf("expected shorter output, got %d chars from %d", len(out), len(content))
	}
	if !strings.HasSuffix(out, "...") {
		t.Errorf("expected ellipsis suffix, got %q", out[len(out)-10:])
	}
}

func TestTruncationPrefersSentenceBreak(t *testing.T) {
	content := strings.Repeat("One sentence here. ", 30)

	out := TruncationStrategy{}.Compress(context.Background(), content, 0.5)

	trimmed := strings.TrimSuffix(out, "...")
	if !strings.HasSuffix(trimmed, ".") {
		t.Errorf("expected cut at sentence boundary, got tail %q", trimmed[len(trimmed)-10:])
	}
}

func TestTruncationShortContentUnchanged(t *testing.T) {
	for _, content := range []string{"", "Short", strings.Repeat("a", 200)} {
		if out := (TruncationStrategy{}).Compress(context.Background(), content, 0.5); out != content {
			t.Errorf("content of %d chars should pass through, got %d chars", len(content), len(out))
		}
	}
}

func TestTruncationCountsRunes(t *testing.T) {
	content := strings.Repeat("错误信息。", 100)

	out := TruncationStrategy{}.Compress(context.Background(), content, 0.5)

	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncation of %d-rune content", runeLen(content))
	}
	for _, r := range out {
		if r == '�' {
			t.Fatal("truncation split a multibyte rune")
		}
	}
}

func TestSemanticKeepsImportantSections(t *testing.T) {
	content := "# Header 1\n" + strings.Repeat("This is important content. ", 50) + "\n\n" +
		"# Header 2\n" + strings.Repeat("This is also important. ", 50) + "\n\n" +
		"# Header 3\n" + strings.Repeat("This is less important filler text that goes on and on. ", 50)

	out := SemanticStrategy{}.Compress(context.Background(), content, 0.6)

	if len(out) >= len(content) {
		t.Fatalf("expected shorter output, got %d chars from %d", len(out), len(content))
	}
	if !strings.Contains(out, "# Header") {
		t.Error("expected a markdown header to survive")
	}
}

func TestSemanticPreservesCodeBlocks(t *testing.T) {
	sections := []string{
		strings.Repeat("Plain filler prose with nothing notable in it. ", 8),
		"```python\ndef probe():\n    return \"code\"\n```",
		strings.Repeat("More plain filler prose used only as padding. ", 8),
	}
	content := strings.Join(sections, "\n\n")

	out := SemanticStrategy{}.Compress(context.Background(), content, 0.4)

	if !strings.Contains(out, "```python") {
		t.Errorf("expected code block to be kept, got %q", out)
	}
	if strings.Contains(out, "filler") {
		t.Errorf("expected filler sections to be dropped, got %q", out)
	}
}

func TestSemanticPreservesOriginalOrder(t *testing.T) {
	plain := strings.Repeat("Nothing notable in this plain paragraph of prose. ", 4)
	first := "## Errors\n" + strings.Repeat("The run produced an error in stage two. ", 4)
	second := "### Summary\n" + strings.Repeat("The summary covers the whole run. ", 4)
	content := strings.Join([]string{plain, first, plain, second}, "\n\n")

	out := SemanticStrategy{}.Compress(context.Background(), content, 0.5)

	i, j := strings.Index(out, "## Errors"), strings.Index(out, "### Summary")
	if i < 0 || j < 0 {
		t.Fatalf("expected both scored sections kept, got %q", out)
	}
	if i > j {
		t.Error("sections reordered: later section appears first")
	}
}

func TestSemanticTieBreakKeepsEarliest(t *testing.T) {
	a := strings.Repeat("First plain paragraph with no signal in it at all. ", 4)
	b := strings.Repeat("Second plain paragraph with no signal in it too. ", 4)
	c := strings.Repeat("Third plain paragraph with no signal in it either. ", 4)
	content := strings.Join([]string{a, b, c}, "\n\n")

	out := SemanticStrategy{}.Compress(context.Background(), content, 0.3)

	if out != a {
		t.Errorf("expected the earliest of equally scored sections, got %q", out[:40])
	}
}

func TestSemanticSingleSectionFallsBackToTruncation(t *testing.T) {
	content := strings.Repeat("word ", 150)

	out := SemanticStrategy{}.Compress(context.Background(), content, 0.3)

	if !strings.HasSuffix(out, "...") {
		t.Errorf("expected truncation fallback, got tail %q", out[len(out)-10:])
	}
	if len(out) >= len(content) {
		t.Error("fallback did not shorten content")
	}
}

func TestSemanticSplitsOversizedSections(t *testing.T) {
	lines := make([]string, 60)
	for i := range lines {
		lines[i] = strings.Repeat("x", 50)
	}
	content := strings.Join(lines, "\n")

	sections := splitSections(content)

	if len(sections) < 2 {
		t.Fatalf("expected oversized section re-split, got %d sections", len(sections))
	}
	for i, s := range sections {
		if runeLen(s) > 1100 {
			t.Errorf("section %d still %d chars", i, runeLen(s))
		}
	}
}

func TestSummaryUsesChatResponse(t *testing.T) {
	calls := 0
	s := NewSummaryStrategy(fakeChat("Mock summary", &calls), quietLogger())
	content := strings.Repeat("This is a long piece of content that needs summarization. ", 50)

	out := s.Compress(context.Background(), content, 0.5)

	if out != "Mock summary" {
		t.Errorf("expected summary from chat, got %q", out)
	}
	if calls != 1 {
		t.Errorf("expected one chat call, got %d", calls)
	}
}

func TestSummaryShortContentSkipsChat(t *testing.T) {
	calls := 0
	s := NewSummaryStrategy(fakeChat("Mock summary", &calls), quietLogger())

	for _, content := range []string{"Short", strings.Repeat("a", 400)} {
		if out := s.Compress(context.Background(), content, 0.5); out != content {
			t.Errorf("content of %d chars should pass through", len(content))
		}
	}
	if calls != 0 {
		t.Errorf("chat should not be called for short content, got %d calls", calls)
	}
}

func TestSummaryFailureReturnsOriginal(t *testing.T) {
	content := strings.Repeat("Content that would be summarized if the provider worked. ", 20)

	failing := func(ctx context.Context, messages []models.ChatMessage) (*models.LLMResponse, error) {
		return nil, errors.New("provider down")
	}
	if out := NewSummaryStrategy(failing, quietLogger()).Compress(context.Background(), content, 0.5); out != content {
		t.Error("provider error should return original content")
	}

	empty := func(ctx context.Context, messages []models.ChatMessage) (*models.LLMResponse, error) {
		return &models.LLMResponse{Content: "   "}, nil
	}
	if out := NewSummaryStrategy(empty, quietLogger()).Compress(context.Background(), content, 0.5); out != content {
		t.Error("blank summary should return original content")
	}

	if out := NewSummaryStrategy(nil, quietLogger()).Compress(context.Background(), content, 0.5); out != content {
		t.Error("nil chat func should return original content")
	}
}

func TestSummaryPromptMentionsTargetLength(t *testing.T) {
	var prompt string
	chat := func(ctx context.Context, messages []models.ChatMessage) (*models.LLMResponse, error) {
		prompt = messages[0].Content
		return &models.LLMResponse{Content: "ok"}, nil
	}

	NewSummaryStrategy(chat, quietLogger()).Compress(context.Background(), strings.Repeat("a", 500), 0.3)

	if !strings.Contains(prompt, "30%") {
		t.Errorf("expected prompt to ask for 30%% length, got %q", prompt)
	}
	if !strings.Contains(prompt, strings.Repeat("a", 500)) {
		t.Error("expected prompt to embed the content")
	}
}

func TestStrategyLengthGates(t *testing.T) {
	ctx := context.Background()
	calls := 0
	summary := NewSummaryStrategy(fakeChat("S", &calls), quietLogger())

	cases := []struct {
		name     string
		strategy Strategy
		length   int
		compress bool
	}{
		{"truncation at gate", TruncationStrategy{}, 200, false},
		{"truncation above gate", TruncationStrategy{}, 201, true},
		{"semantic at gate", SemanticStrategy{}, 500, false},
		{"semantic above gate", SemanticStrategy{}, 501, true},
		{"summary at gate", summary, 400, false},
		{"summary above gate", summary, 401, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content := strings.Repeat("a", tc.length)
			out := tc.strategy.Compress(ctx, content, 0.3)
			if changed := out != content; changed != tc.compress {
				t.Errorf("length %d: changed=%v, want %v", tc.length, changed, tc.compress)
			}
		})
	}
}
