package channels

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkShortText(t *testing.T) {
	c := NewChunker(100)
	got := c.Chunk("hello")
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("Chunk() = %v", got)
	}
	if got := c.Chunk(""); got != nil {
		t.Errorf("Chunk(empty) = %v, want nil", got)
	}
}

func TestChunkPrefersParagraphBreaks(t *testing.T) {
	first := strings.Repeat("a", 40)
	second := strings.Repeat("b", 40)
	c := NewChunker(60)

	got := c.Chunk(first + "\n\n" + second)
	if len(got) != 2 {
		t.Fatalf("Chunk() produced %d chunks, want 2", len(got))
	}
	if got[0] != first || got[1] != second {
		t.Errorf("Chunk() = %q", got)
	}
}

func TestChunkFallsBackToWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 30) // 150 bytes, no newlines or sentences
	c := NewChunker(60)

	got := c.Chunk(text)
	if len(got) < 2 {
		t.Fatalf("Chunk() produced %d chunks", len(got))
	}
	for i, chunk := range got {
		if len(chunk) > 60 {
			t.Errorf("chunk %d is %d bytes", i, len(chunk))
		}
		if strings.HasPrefix(chunk, " ") || strings.HasSuffix(chunk, " ") {
			t.Errorf("chunk %d not trimmed: %q", i, chunk)
		}
	}
	if rejoined := strings.Join(got, " "); rejoined != strings.TrimSpace(text) {
		t.Errorf("content lost: %q", rejoined)
	}
}

func TestChunkHardBreakKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("北京", 100) // 600 bytes, no break points
	c := NewChunker(64)

	got := c.Chunk(text)
	var total int
	for i, chunk := range got {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %d split a rune: %q", i, chunk)
		}
		if len(chunk) > 64 {
			t.Errorf("chunk %d is %d bytes", i, len(chunk))
		}
		total += utf8.RuneCountInString(chunk)
	}
	if total != 200 {
		t.Errorf("rune count = %d, want 200", total)
	}
}

func TestChunkSentenceBoundary(t *testing.T) {
	text := "First sentence here. " + strings.Repeat("x", 50)
	c := NewChunker(60)

	got := c.Chunk(text)
	if len(got) != 2 {
		t.Fatalf("Chunk() = %q", got)
	}
	if got[0] != "First sentence here." {
		t.Errorf("first chunk = %q", got[0])
	}
}

func TestNewChunkerDefault(t *testing.T) {
	if c := NewChunker(0); c.MaxBytes != 4000 {
		t.Errorf("MaxBytes = %d, want 4000", c.MaxBytes)
	}
}
