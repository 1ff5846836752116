// Package selection drives generation attempts over candidate items under a
// fixed daily quota, treating "not relevant" as a soft failure that moves on
// to the next candidate.
package selection

import (
	"context"
	"log"

	"autoblog/internal/feed"
)

// Kind tags the result of one generation attempt.
type Kind string

const (
	Published   Kind = "published"
	NotRelevant Kind = "not_relevant"
	Failed      Kind = "failed"
)

// Outcome is the tagged result of attempting to turn one candidate into a
// post. Only published outcomes carry paths.
type Outcome struct {
	Kind      Kind
	PostPath  string
	ImagePath string
	Err       error
}

// PublishedOutcome builds a successful outcome.
func PublishedOutcome(postPath, imagePath string) Outcome {
	return Outcome{Kind: Published, PostPath: postPath, ImagePath: imagePath}
}

// NotRelevantOutcome reports that the generator judged the item off-niche.
// This is an expected branch, not an error.
func NotRelevantOutcome() Outcome {
	return Outcome{Kind: NotRelevant}
}

// FailedOutcome reports a hard per-item failure.
func FailedOutcome(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}

// Attempter performs one generation attempt for a candidate. All I/O lives
// behind this interface; the loop itself only sequences attempts.
type Attempter interface {
	Attempt(ctx context.Context, item feed.Item) Outcome
}

// PublishedPost is one filled quota slot.
type PublishedPost struct {
	Item      feed.Item
	PostPath  string
	ImagePath string
}

// Attempted records a consumed candidate and what became of it.
type Attempted struct {
	Item    feed.Item
	Outcome Outcome
}

// Result is the product of one selection run. Published holds at most the
// quota; Consumed holds every candidate attempted, rejected ones included.
// Rejected candidates are not marked processed, so they may be retried on a
// future run.
type Result struct {
	Published      []PublishedPost
	Consumed       []Attempted
	SlotsAbandoned int
	Cancelled      bool
}

// Run fills up to quota slots from items, consuming each candidate at most
// once. A slot closes on the first published outcome; each rejection counts
// against the slot's retry budget, and the slot is abandoned once
// retriesPerSlot candidates have been burned without a publish. The loop
// terminates when the quota is met or candidates run out — the candidate
// index strictly increases on every attempt.
//
// Cancellation is checked between slots only: an in-flight attempt finishes,
// and everything already published stays in the result.
func Run(ctx context.Context, att Attempter, items []feed.Item, quota, retriesPerSlot int) *Result {
	r := &Result{}
	idx := 0

	for slot := 1; slot <= quota; slot++ {
		if ctx.Err() != nil {
			log.Printf("Selection cancelled after %d published, keeping partial batch", len(r.Published))
			r.Cancelled = true
			return r
		}
		if idx >= len(items) {
			log.Printf("Candidates exhausted after %d of %d slots", slot-1, quota)
			return r
		}

		failures := 0
		filled := false
		for idx < len(items) && failures < retriesPerSlot {
			item := items[idx]
			idx++

			outcome := att.Attempt(ctx, item)
			r.Consumed = append(r.Consumed, Attempted{Item: item, Outcome: outcome})

			switch outcome.Kind {
			case Published:
				log.Printf("Slot %d/%d filled: %s", slot, quota, item.Title)
				r.Published = append(r.Published, PublishedPost{
					Item:      item,
					PostPath:  outcome.PostPath,
					ImagePath: outcome.ImagePath,
				})
				filled = true
			case NotRelevant:
				log.Printf("Not relevant, trying next candidate: %s", item.URL)
				failures++
			case Failed:
				log.Printf("Attempt failed for %s: %v", item.URL, outcome.Err)
				failures++
			}

			if filled {
				break
			}
		}

		if !filled {
			log.Printf("Slot %d/%d abandoned after %d rejected candidates", slot, quota, failures)
			r.SlotsAbandoned++
		}
	}

	return r
}

// PublishedURLs returns the URLs of all filled slots, in publish order.
func (r *Result) PublishedURLs() []string {
	urls := make([]string, len(r.Published))
	for i, p := range r.Published {
		urls[i] = p.Item.URL
	}
	return urls
}

// CreatedFiles returns every file path produced by filled slots: post files
// and downloaded images.
func (r *Result) CreatedFiles() []string {
	var files []string
	for _, p := range r.Published {
		files = append(files, p.PostPath)
		if p.ImagePath != "" {
			files = append(files, p.ImagePath)
		}
	}
	return files
}
