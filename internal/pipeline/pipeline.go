// Package pipeline orchestrates a full publishing run: aggregate feeds,
// enrich content, drop already-processed and denylisted items, then fill the
// daily quota and push the batch to the blog repository.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"autoblog/internal/archive"
	"autoblog/internal/config"
	"autoblog/internal/feed"
	"autoblog/internal/fetch"
	"autoblog/internal/filter"
	"autoblog/internal/generate"
	"autoblog/internal/history"
	"autoblog/internal/image"
	"autoblog/internal/post"
	"autoblog/internal/publish"
	"autoblog/internal/selection"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Date      string
	Steps     []StepResult
	Published []selection.PublishedPost
	Cancelled bool
}

// Failed reports whether any step ended in an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// gitPublisher is the slice of publish.Publisher the pipeline needs.
type gitPublisher interface {
	Pull(ctx context.Context)
	CommitAndPush(ctx context.Context, message string, paths []string) error
}

// Pipeline wires the stages of one publishing run.
type Pipeline struct {
	cfg       *config.Config
	ledger    *history.Ledger
	db        *archive.DB
	attempter selection.Attempter
	publisher gitPublisher

	// Injected for tests.
	fetchItems func() []feed.Item
	enrich     func([]feed.Item) []feed.Item
	now        func() time.Time
}

// New creates a pipeline from the configuration. The ledger and archive are
// opened by the caller so commands can share them.
func New(cfg *config.Config, ledger *history.Ledger, db *archive.DB) (*Pipeline, error) {
	provider, err := generate.NewProvider(cfg.Generator.Provider, cfg.Generator.Model, cfg.Generator.APIKeyEnv)
	if err != nil {
		return nil, err
	}

	aggregator := feed.NewAggregator(cfg)
	enricher := fetch.NewEnricher(15 * time.Second)

	att := newPostAttempter(
		generate.New(provider, cfg.Generator.MaxWords),
		image.NewHandler(filepath.Join(cfg.Blog.RepoPath, cfg.Blog.ImagesDir)),
		post.NewRenderer(cfg.Blog),
		time.Duration(cfg.Selection.AttemptTimeout)*time.Second,
		time.Duration(cfg.Selection.MaxDelaySeconds)*time.Second,
	)

	return &Pipeline{
		cfg:        cfg,
		ledger:     ledger,
		db:         db,
		attempter:  att,
		publisher:  publish.NewPublisher(cfg.Blog),
		fetchItems: aggregator.FetchAll,
		enrich:     enricher.EnrichAll,
		now:        time.Now,
	}, nil
}

// Run executes the full pipeline. Quota overrides the configured posts per
// day when positive.
func (p *Pipeline) Run(ctx context.Context, quota int) *Result {
	if quota <= 0 {
		quota = p.cfg.Selection.PostsPerDay
	}
	date := archive.Today(p.now())
	r := &Result{Date: date}

	candidates := p.gatherCandidates(r)
	if len(candidates) == 0 {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Select",
			Summary: "No eligible candidates, nothing to publish",
		})
		return r
	}

	runID, err := p.db.BeginRun(date, false)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Select", Err: err})
		return r
	}

	log.Printf("Step 4/5: Selecting up to %d posts from %d candidates...", quota, len(candidates))
	sel := selection.Run(ctx, p.attempter, candidates, quota, p.cfg.Selection.RetriesPerSlot)
	r.Published = sel.Published
	r.Cancelled = sel.Cancelled
	r.Steps = append(r.Steps, StepResult{
		Name: "Select",
		Summary: fmt.Sprintf("Published %d of %d slots (%d candidates consumed, %d slots abandoned)",
			len(sel.Published), quota, len(sel.Consumed), sel.SlotsAbandoned),
	})

	p.recordAttempts(runID, sel)
	r.Steps = append(r.Steps, p.runPublish(ctx, sel))

	if err := p.db.FinishRun(runID, len(sel.Published), len(sel.Consumed), sel.SlotsAbandoned); err != nil {
		log.Printf("Archive bookkeeping failed: %v", err)
	}
	return r
}

// DryRun reports what a run would do without generating or publishing.
func (p *Pipeline) DryRun(quota int) *Result {
	if quota <= 0 {
		quota = p.cfg.Selection.PostsPerDay
	}
	date := archive.Today(p.now())
	r := &Result{Date: date}

	candidates := p.gatherCandidates(r)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Select",
		Summary: fmt.Sprintf("[dry-run] Would attempt up to %d posts from %d candidates", quota, len(candidates)),
	})

	if runID, err := p.db.BeginRun(date, true); err == nil {
		p.db.FinishRun(runID, 0, 0, 0)
	}
	return r
}

// gatherCandidates runs the shared front half of the pipeline: aggregate,
// enrich, drop processed URLs, then denylist-filter and shuffle.
func (p *Pipeline) gatherCandidates(r *Result) []feed.Item {
	log.Println("Step 1/5: Aggregating feeds...")
	items := p.fetchItems()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Aggregate",
		Summary: fmt.Sprintf("Collected %d entries from %d feeds", len(items), len(p.cfg.Feeds)),
	})

	log.Println("Step 2/5: Enriching thin entries...")
	items = p.enrich(items)

	fresh := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if !p.ledger.IsProcessed(item.URL) {
			fresh = append(fresh, item)
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedup",
		Summary: fmt.Sprintf("%d new entries (%d already processed)", len(fresh), len(items)-len(fresh)),
	})

	log.Println("Step 3/5: Filtering candidates...")
	eligible := filter.Apply(fresh, p.cfg.Selection.Denylist)
	filter.Shuffle(eligible)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Filter",
		Summary: fmt.Sprintf("%d eligible candidates (%d filtered out)", len(eligible), len(fresh)-len(eligible)),
	})
	return eligible
}

// runPublish pushes the batch and only then marks the source URLs processed.
// Rejected candidates are never marked, so they stay retryable. On a push
// failure nothing is marked either; the next run regenerates the batch.
//
// A cancelled run still flushes: the posts already written must reach the
// remote and get marked, so the git calls run on a context detached from the
// interrupt signal.
func (p *Pipeline) runPublish(ctx context.Context, sel *selection.Result) StepResult {
	if len(sel.Published) == 0 {
		return StepResult{Name: "Publish", Summary: "Nothing to publish"}
	}
	if sel.Cancelled {
		ctx = context.WithoutCancel(ctx)
	}

	log.Println("Step 5/5: Publishing to blog repository...")
	p.publisher.Pull(ctx)

	message := fmt.Sprintf("Add %d automated post(s) for %s", len(sel.Published), archive.Today(p.now()))
	if err := p.publisher.CommitAndPush(ctx, message, sel.CreatedFiles()); err != nil {
		return StepResult{Name: "Publish", Err: fmt.Errorf("pushing batch: %w", err)}
	}

	p.ledger.MarkProcessedMany(sel.PublishedURLs())
	return StepResult{
		Name:    "Publish",
		Summary: fmt.Sprintf("Pushed %d post(s), %d source URLs marked processed", len(sel.Published), len(sel.Published)),
	}
}

func (p *Pipeline) recordAttempts(runID int64, sel *selection.Result) {
	for _, a := range sel.Consumed {
		detail := ""
		if a.Outcome.Err != nil {
			detail = a.Outcome.Err.Error()
		}
		err := p.db.RecordAttempt(runID, archive.Attempt{
			URL:     a.Item.URL,
			Title:   a.Item.Title,
			Source:  a.Item.SourceName,
			Outcome: string(a.Outcome.Kind),
			Detail:  detail,
		})
		if err != nil {
			log.Printf("Archive bookkeeping failed: %v", err)
		}
	}
}
