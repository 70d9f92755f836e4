package web

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aisbot/aisbot/internal/tools"
)

const duckduckgoHTML = "https://html.duckduckgo.com/html/"

// DuckDuckGo HTML result markup, primary and fallback layouts.
var (
	resultPattern = regexp.MustCompile(
		`(?s)<a rel="nofollow" class="result__a" href="(.*?)".*?>(.*?)</a>.*?<a class="result__snippet".*?>(.*?)</a>`)
	altResultPattern = regexp.MustCompile(
		`(?s)<h2 class="result__title">.*?<a.*?href="(.*?)".*?>(.*?)</a>.*?</h2>.*?<div class="result__snippet">(.*?)</div>`)
)

type searchResult struct {
	title       string
	url         string
	description string
}

// SearchTool searches the web through the DuckDuckGo HTML endpoint.
type SearchTool struct {
	endpoint   string
	client     *http.Client
	maxResults int
}

// NewSearchTool creates a web search tool.
func NewSearchTool(cfg Config) *SearchTool {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchTool{
		endpoint:   duckduckgoHTML,
		client:     newHTTPClient(10 * time.Second),
		maxResults: maxResults,
	}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web using DuckDuckGo. Returns titles, URLs, and snippets."
}

func (t *SearchTool) Source() tools.Source { return tools.SourceLocal }

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": "Results (1-10)",
				"minimum":     1,
				"maximum":     10,
			},
		},
		"required": []string{"query"},
	}
}

// Execute runs the search. Failures come back as "Error: ..." strings so the
// model can rephrase or retry rather than aborting the turn.
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := tools.StringArg(args, "query", "")
	n := tools.IntArg(args, "count", t.maxResults)
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}

	page, err := t.fetchResults(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	results := parseResults(page)
	if len(results) == 0 {
		return "No results for: " + query, nil
	}
	if len(results) > n {
		results = results[:n]
	}

	lines := []string{fmt.Sprintf("Results for: %s\n", query)}
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, r.title, r.url))
		if r.description != "" {
			lines = append(lines, "   "+r.description)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (t *SearchTool) fetchResults(ctx context.Context, query string) (string, error) {
	endpoint := t.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parseResults extracts search hits from the DuckDuckGo result page, trying
// the alternate markup when the primary one matches nothing.
func parseResults(page string) []searchResult {
	results := collectMatches(resultPattern.FindAllStringSubmatch(page, -1))
	if len(results) == 0 {
		results = collectMatches(altResultPattern.FindAllStringSubmatch(page, -1))
	}
	return results
}

func collectMatches(matches [][]string) []searchResult {
	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		title := stripTags(m[2])
		link := strings.TrimSpace(html.UnescapeString(m[1]))
		if title == "" || link == "" {
			continue
		}
		results = append(results, searchResult{
			title:       title,
			url:         link,
			description: stripTags(m[3]),
		})
	}
	return results
}
