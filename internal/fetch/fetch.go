// Package fetch fills in full article bodies for feed items whose entry
// content is too thin to rewrite from.
package fetch

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"autoblog/internal/feed"
)

// minContentLen is the body length below which we fetch the article page.
const minContentLen = 200

// Enricher fetches full article text via HTTP + readability extraction.
type Enricher struct {
	client *http.Client
}

// NewEnricher creates a content enricher with the given per-request timeout.
func NewEnricher(timeout time.Duration) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// EnrichAll fetches article pages for items with thin content and returns
// the items with bodies filled in where extraction succeeded. Items are
// otherwise returned unchanged; a fetch failure never drops an item.
func (e *Enricher) EnrichAll(items []feed.Item) []feed.Item {
	failedDomains := make(map[string]struct{})
	enriched := 0

	out := make([]feed.Item, len(items))
	for i, item := range items {
		out[i] = item
		if len(item.Content) >= minContentLen {
			continue
		}

		domain := hostOf(item.URL)
		if _, failed := failedDomains[domain]; failed {
			continue
		}

		content, httpErr := e.fetchArticleContent(item.URL)
		if httpErr != nil {
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("HTTP error for %s, skipping remaining from %s", item.URL, domain)
			continue
		}
		if content != "" {
			out[i].Content = content
			enriched++
		}
	}

	if enriched > 0 {
		log.Printf("Enriched %d items with full article content", enriched)
	}
	return out
}

func (e *Enricher) fetchArticleContent(articleURL string) (string, error) {
	req, err := http.NewRequest("GET", articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "autoblog/1.0 (blog automation)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	// Keep the cleaned HTML so downstream markdown conversion retains
	// structure; fall back to nothing if extraction found too little.
	if len(strings.TrimSpace(article.TextContent)) > 100 {
		return article.Content, nil
	}
	return "", nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
