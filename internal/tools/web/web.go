// Package web provides the web_search and web_fetch tools. Search goes
// through the DuckDuckGo HTML endpoint (no API key); fetch extracts
// readable content with go-readability and reports results as JSON.
package web

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	userAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects = 5
)

// Config controls web tool defaults.
type Config struct {
	// MaxResults is the default search result count (1-10).
	MaxResults int

	// MaxChars caps fetched document text. Zero means 50000.
	MaxChars int
}

var (
	scriptPattern   = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	stylePattern    = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
	spacesPattern   = regexp.MustCompile(`[ \t]+`)
	newlinesPattern = regexp.MustCompile(`\n{3,}`)
)

// stripTags removes HTML tags and decodes entities.
func stripTags(s string) string {
	s = scriptPattern.ReplaceAllString(s, "")
	s = stylePattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// normalizeWhitespace collapses runs of spaces and blank lines.
func normalizeWhitespace(s string) string {
	s = spacesPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(newlinesPattern.ReplaceAllString(s, "\n\n"))
}

// validateURL accepts absolute http/https URLs with a host.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		scheme := u.Scheme
		if scheme == "" {
			scheme = "none"
		}
		return fmt.Errorf("only http/https allowed, got '%s'", scheme)
	}
	if u.Host == "" {
		return errors.New("missing domain")
	}
	return nil
}

// newHTTPClient builds a client with a bounded redirect chain.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}
