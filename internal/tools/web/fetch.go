package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"github.com/aisbot/aisbot/internal/tools"
)

const defaultMaxChars = 50000

// FetchTool downloads a URL and extracts readable content.
type FetchTool struct {
	client   *http.Client
	maxChars int
}

// NewFetchTool creates a web fetch tool.
func NewFetchTool(cfg Config) *FetchTool {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &FetchTool{
		client:   newHTTPClient(30 * time.Second),
		maxChars: maxChars,
	}
}

func (t *FetchTool) Name() string { return "web_fetch" }

func (t *FetchTool) Description() string {
	return "Fetch URL and extract readable content (HTML → markdown/text)."
}

func (t *FetchTool) Source() tools.Source { return tools.SourceLocal }

func (t *FetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch",
			},
			"extractMode": map[string]any{
				"type":    "string",
				"enum":    []string{"markdown", "text"},
				"default": "markdown",
			},
			"maxChars": map[string]any{
				"type":    "integer",
				"minimum": 100,
			},
		},
		"required": []string{"url"},
	}
}

type fetchResult struct {
	URL       string `json:"url"`
	FinalURL  string `json:"finalUrl"`
	Status    int    `json:"status"`
	Extractor string `json:"extractor"`
	Truncated bool   `json:"truncated"`
	Length    int    `json:"length"`
	Text      string `json:"text"`
}

// Execute fetches the URL. Every outcome, including failure, is a JSON
// payload so the model sees structured results.
func (t *FetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL := tools.StringArg(args, "url", "")
	extractMode := tools.StringArg(args, "extractMode", "markdown")
	maxChars := tools.IntArg(args, "maxChars", t.maxChars)

	if err := validateURL(rawURL); err != nil {
		return errorPayload(fmt.Sprintf("URL validation failed: %v", err), rawURL), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errorPayload(err.Error(), rawURL), nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return errorPayload(err.Error(), rawURL), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errorPayload(fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, rawURL), rawURL), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errorPayload(err.Error(), rawURL), nil
	}

	text, extractor := extractContent(resp, body, extractMode)

	truncated := false
	if utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
		truncated = true
	}

	result := fetchResult{
		URL:       rawURL,
		FinalURL:  resp.Request.URL.String(),
		Status:    resp.StatusCode,
		Extractor: extractor,
		Truncated: truncated,
		Length:    utf8.RuneCountInString(text),
		Text:      text,
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return errorPayload(err.Error(), rawURL), nil
	}
	return string(payload), nil
}

// extractContent picks an extractor by content type: JSON is pretty-printed,
// HTML goes through readability, everything else passes through raw.
func extractContent(resp *http.Response, body []byte, extractMode string) (text, extractor string) {
	ctype := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(ctype, "application/json"):
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			return buf.String(), "json"
		}
		return string(body), "json"

	case strings.Contains(ctype, "text/html") || looksLikeHTML(body):
		article, err := readability.FromReader(bytes.NewReader(body), resp.Request.URL)
		if err != nil {
			return normalizeWhitespace(stripTags(string(body))), "readability"
		}
		var content string
		if extractMode == "text" {
			content = strings.TrimSpace(article.TextContent)
		} else {
			content = toMarkdown(article.Content)
		}
		if article.Title != "" {
			return fmt.Sprintf("# %s\n\n%s", article.Title, content), "readability"
		}
		return content, "readability"

	default:
		return string(body), "raw"
	}
}

func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 256 {
		head = head[:256]
	}
	prefix := strings.ToLower(strings.TrimSpace(string(head)))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}

func errorPayload(message, rawURL string) string {
	payload, err := json.Marshal(map[string]string{"error": message, "url": rawURL})
	if err != nil {
		return message
	}
	return string(payload)
}

var (
	linkPattern    = regexp.MustCompile(`(?is)<a\s+[^>]*href=["']([^"']+)["'][^>]*>([\s\S]*?)</a>`)
	headingPattern = regexp.MustCompile(`(?is)<h([1-6])[^>]*>([\s\S]*?)</h[1-6]>`)
	listPattern    = regexp.MustCompile(`(?is)<li[^>]*>([\s\S]*?)</li>`)
	blockPattern   = regexp.MustCompile(`(?i)</(p|div|section|article)>`)
	breakPattern   = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
)

// toMarkdown converts readability HTML to markdown: links, headings and
// list items first, then block boundaries, then a final tag strip.
func toMarkdown(htmlContent string) string {
	text := linkPattern.ReplaceAllStringFunc(htmlContent, func(m string) string {
		parts := linkPattern.FindStringSubmatch(m)
		return fmt.Sprintf("[%s](%s)", stripTags(parts[2]), parts[1])
	})
	text = headingPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := headingPattern.FindStringSubmatch(m)
		level := int(parts[1][0] - '0')
		return "\n" + strings.Repeat("#", level) + " " + stripTags(parts[2]) + "\n"
	})
	text = listPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := listPattern.FindStringSubmatch(m)
		return "\n- " + stripTags(parts[1])
	})
	text = blockPattern.ReplaceAllString(text, "\n\n")
	text = breakPattern.ReplaceAllString(text, "\n")
	return normalizeWhitespace(stripTags(text))
}
