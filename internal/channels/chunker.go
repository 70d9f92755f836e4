package channels

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker splits long outbound text into platform-sized pieces, preferring
// paragraph, line, sentence, then word boundaries before cutting mid-word.
type Chunker struct {
	// MaxBytes caps each chunk. UTF-8 byte counts always overcount
	// Telegram's UTF-16 length rule, so a byte cap never overshoots.
	MaxBytes int
}

// NewChunker creates a chunker. maxBytes <= 0 selects a 4000-byte default.
func NewChunker(maxBytes int) *Chunker {
	if maxBytes <= 0 {
		maxBytes = 4000
	}
	return &Chunker{MaxBytes: maxBytes}
}

// Chunk splits text into pieces no longer than MaxBytes. Whitespace around
// break points is dropped; empty input yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.MaxBytes {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > c.MaxBytes {
		brk := c.breakPoint(remaining)
		chunk := strings.TrimRightFunc(remaining[:brk], unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[brk:], unicode.IsSpace)
	}
	if remaining = strings.TrimSpace(remaining); remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// breakPoint picks the byte index to cut at within the size window.
func (c *Chunker) breakPoint(text string) int {
	window := text[:c.MaxBytes]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}

	// Hard break, aligned to a rune boundary.
	brk := c.MaxBytes
	for brk > 0 && !utf8.RuneStart(text[brk]) {
		brk--
	}
	if brk == 0 {
		return c.MaxBytes
	}
	return brk
}
