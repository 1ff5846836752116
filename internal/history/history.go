// Package history tracks which article URLs have already been turned into
// posts, so a future run never publishes the same URL twice.
package history

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

const dateLayout = "2006-01-02"

// Ledger maps canonical article URLs to the date they were processed.
// It is persisted as a whole JSON snapshot on every mutation; a failed
// write is logged but the in-memory state is kept, so deduplication
// within the current run stays correct.
type Ledger struct {
	path    string
	entries map[string]string
	now     func() time.Time
}

// Stats holds read-only aggregates about the ledger.
type Stats struct {
	Total  int
	Recent int // processed within the last 7 days
}

// Load reads the ledger snapshot at path. A missing or corrupt file yields
// an empty ledger and a logged warning; Load never fails the caller.
func Load(path string) *Ledger {
	l := &Ledger{
		path:    path,
		entries: make(map[string]string),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: could not read history %s: %v (starting empty)", path, err)
		}
		return l
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		log.Printf("Warning: corrupt history %s: %v (starting empty)", path, err)
		l.entries = make(map[string]string)
		return l
	}

	log.Printf("Loaded %d entries from history", len(l.entries))
	return l
}

// IsProcessed reports whether url has already been processed. Exact string
// match on the canonical URL.
func (l *Ledger) IsProcessed(url string) bool {
	_, ok := l.entries[url]
	return ok
}

// MarkProcessed records url as processed today and persists the snapshot.
// Re-marking an existing URL updates its date; it never duplicates.
func (l *Ledger) MarkProcessed(url string) {
	l.entries[url] = l.now().Format(dateLayout)
	l.persist()
}

// MarkProcessedMany records all urls as processed today with a single
// persist at the end.
func (l *Ledger) MarkProcessedMany(urls []string) {
	if len(urls) == 0 {
		return
	}
	today := l.now().Format(dateLayout)
	for _, u := range urls {
		l.entries[u] = today
	}
	l.persist()
}

// Prune removes entries processed more than retentionDays ago. Entries
// dated exactly at the cutoff are retained. No-op on an empty ledger.
func (l *Ledger) Prune(retentionDays int) int {
	if len(l.entries) == 0 {
		return 0
	}

	cutoff := l.now().AddDate(0, 0, -retentionDays).Format(dateLayout)
	removed := 0
	for url, date := range l.entries {
		if date < cutoff {
			delete(l.entries, url)
			removed++
		}
	}

	if removed > 0 {
		log.Printf("Pruned %d history entries older than %d days", removed, retentionDays)
		l.persist()
	}
	return removed
}

// FilterUnprocessed returns the subset of urls not present in the ledger,
// preserving order.
func (l *Ledger) FilterUnprocessed(urls []string) []string {
	var out []string
	for _, u := range urls {
		if !l.IsProcessed(u) {
			out = append(out, u)
		}
	}
	return out
}

// Stats returns aggregate counts for observability.
func (l *Ledger) Stats() Stats {
	weekAgo := l.now().AddDate(0, 0, -7).Format(dateLayout)
	s := Stats{Total: len(l.entries)}
	for _, date := range l.entries {
		if date >= weekAgo {
			s.Recent++
		}
	}
	return s
}

func (l *Ledger) persist() {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		log.Printf("Warning: could not create history directory: %v", err)
		return
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		log.Printf("Warning: could not encode history: %v", err)
		return
	}

	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		log.Printf("Warning: could not write history %s: %v (in-memory state kept)", l.path, err)
	}
}
