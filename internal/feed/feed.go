// Package feed fetches configured RSS/Atom feeds and normalizes their
// entries into candidate items for the selection pipeline.
package feed

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"autoblog/internal/config"
)

const (
	fetchRetries = 3
	retryDelay   = 2 * time.Second
)

// Item is a normalized feed entry. It carries no identity beyond URL and
// is not mutated after creation.
type Item struct {
	URL         string
	Title       string
	Description string
	Content     string // raw HTML body from the feed, may be empty
	Published   time.Time
	Author      string
	Categories  []string
	ImageURL    string
	SourceName  string
}

// Aggregator fetches all configured feeds into one working set.
type Aggregator struct {
	feeds      []config.Feed
	maxPerFeed int
	maxAgeDays int
	parser     *gofeed.Parser
	sleep      func(time.Duration)
}

// NewAggregator creates an aggregator for the configured feeds.
func NewAggregator(cfg *config.Config) *Aggregator {
	parser := gofeed.NewParser()
	parser.UserAgent = "autoblog/1.0"
	parser.Client = &http.Client{Timeout: 15 * time.Second}

	return &Aggregator{
		feeds:      cfg.Feeds,
		maxPerFeed: cfg.Selection.MaxPerFeed,
		maxAgeDays: cfg.Selection.MaxAgeDays,
		parser:     parser,
		sleep:      time.Sleep,
	}
}

// FetchAll fetches every configured feed and returns the combined,
// URL-deduplicated items. A failing feed is logged and skipped; one bad
// feed never aborts the run.
func (a *Aggregator) FetchAll() []Item {
	cutoff := time.Now().AddDate(0, 0, -a.maxAgeDays)
	seen := make(map[string]struct{})
	var all []Item

	for _, fc := range a.feeds {
		if strings.TrimSpace(fc.URL) == "" {
			continue
		}

		parsed, err := a.fetchFeed(fc.URL)
		if err != nil {
			log.Printf("Skipping feed %s: %v", fc.URL, err)
			continue
		}

		items := a.normalize(parsed, fc, cutoff)
		added := 0
		for _, item := range items {
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			all = append(all, item)
			added++
		}
		log.Printf("Fetched %d items from %s", added, sourceName(parsed, fc))
	}

	return all
}

// fetchFeed parses one feed URL, retrying with a doubling delay.
func (a *Aggregator) fetchFeed(url string) (*gofeed.Feed, error) {
	delay := retryDelay
	var lastErr error
	for attempt := 1; attempt <= fetchRetries; attempt++ {
		parsed, err := a.parser.ParseURL(url)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		if attempt < fetchRetries {
			log.Printf("Feed fetch failed (attempt %d/%d) for %s: %v", attempt, fetchRetries, url, err)
			a.sleep(delay)
			delay *= 2
		}
	}
	return nil, lastErr
}

func (a *Aggregator) normalize(parsed *gofeed.Feed, fc config.Feed, cutoff time.Time) []Item {
	source := sourceName(parsed, fc)

	var items []Item
	for _, entry := range parsed.Items {
		if len(items) >= a.maxPerFeed {
			break
		}

		item, ok := normalizeEntry(entry, source)
		if !ok {
			continue
		}
		if !item.Published.IsZero() && item.Published.Before(cutoff) {
			continue
		}
		items = append(items, item)
	}
	return items
}

func normalizeEntry(entry *gofeed.Item, source string) (Item, bool) {
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}
	title := strings.TrimSpace(entry.Title)
	if link == "" || title == "" {
		return Item{}, false
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	content := entry.Content
	if content == "" {
		content = entry.Description
	}

	author := ""
	if len(entry.Authors) > 0 {
		author = entry.Authors[0].Name
	}

	return Item{
		URL:         link,
		Title:       title,
		Description: entry.Description,
		Content:     content,
		Published:   published,
		Author:      author,
		Categories:  entry.Categories,
		ImageURL:    extractImageURL(entry),
		SourceName:  source,
	}, true
}

// extractImageURL finds a header-image candidate for a feed entry, checking
// the feed-level image, media extensions, enclosures, and finally any <img>
// inside the entry HTML.
func extractImageURL(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}

	if media, ok := entry.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}

	for _, enc := range entry.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}

	for _, html := range []string{entry.Content, entry.Description} {
		if url := firstImageInHTML(html); url != "" {
			return url
		}
	}
	return ""
}

// firstImageInHTML returns the src of the first <img> in an HTML fragment.
func firstImageInHTML(html string) string {
	if html == "" || !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src := ""
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := sel.Attr("src"); ok && v != "" {
			src = v
			return false
		}
		if v, ok := sel.Attr("data-src"); ok && v != "" {
			src = v
			return false
		}
		return true
	})
	return src
}

func sourceName(parsed *gofeed.Feed, fc config.Feed) string {
	if fc.Name != "" {
		return fc.Name
	}
	if parsed != nil && parsed.Title != "" {
		return parsed.Title
	}
	return fc.URL
}
