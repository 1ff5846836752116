// Package filter applies the cheap pre-generation checks that keep
// structurally unusable or off-topic items away from the content generator.
package filter

import (
	"math/rand"
	"strings"

	"autoblog/internal/feed"
)

// Verdict explains why an item was rejected. Empty means eligible.
type Verdict string

const (
	Eligible       Verdict = ""
	DeniedTerm     Verdict = "denylisted term"
	NoUsableImage  Verdict = "no usable image"
)

// Check evaluates one item against the pre-generation rules: denylisted
// substrings in URL or description (case-insensitive), and an image URL
// with an http(s) scheme.
func Check(item feed.Item, denylist []string) Verdict {
	link := strings.ToLower(item.URL)
	desc := strings.ToLower(item.Description)
	for _, term := range denylist {
		term = strings.ToLower(term)
		if term == "" {
			continue
		}
		if strings.Contains(link, term) || strings.Contains(desc, term) {
			return DeniedTerm
		}
	}

	if !strings.HasPrefix(item.ImageURL, "http://") && !strings.HasPrefix(item.ImageURL, "https://") {
		return NoUsableImage
	}

	return Eligible
}

// Apply returns the items that pass Check, preserving order.
func Apply(items []feed.Item, denylist []string) []feed.Item {
	var out []feed.Item
	for _, item := range items {
		if Check(item, denylist) == Eligible {
			out = append(out, item)
		}
	}
	return out
}

// Shuffle randomizes item order in place so selection does not always favor
// the same feeds.
func Shuffle(items []feed.Item) {
	rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
