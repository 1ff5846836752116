package pipeline

import (
	"context"
	"math/rand"
	"time"

	"autoblog/internal/feed"
	"autoblog/internal/generate"
	"autoblog/internal/image"
	"autoblog/internal/post"
	"autoblog/internal/selection"
)

// postAttempter turns one candidate into a published post file: generate the
// article, download its image into the site checkout, render the Markdown.
type postAttempter struct {
	gen      *generate.Generator
	images   *image.Handler
	renderer *post.Renderer
	timeout  time.Duration
	maxDelay time.Duration

	sleep     func(time.Duration)
	attempted bool
}

func newPostAttempter(gen *generate.Generator, images *image.Handler, renderer *post.Renderer, timeout, maxDelay time.Duration) *postAttempter {
	return &postAttempter{
		gen:      gen,
		images:   images,
		renderer: renderer,
		timeout:  timeout,
		maxDelay: maxDelay,
		sleep:    time.Sleep,
	}
}

func (a *postAttempter) Attempt(ctx context.Context, item feed.Item) selection.Outcome {
	// Random delay between attempts spaces out provider traffic.
	if a.attempted && a.maxDelay > 0 {
		a.sleep(time.Duration(rand.Int63n(int64(a.maxDelay))))
	}
	a.attempted = true

	actx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	generated, err := a.gen.GeneratePost(actx, item)
	if err != nil {
		return selection.FailedOutcome(err)
	}
	if !generated.Relevant {
		return selection.NotRelevantOutcome()
	}

	// A failed download just means the post ships without a thumbnail.
	imagePath := a.images.Download(item.ImageURL, generated.Title)

	postPath, err := a.renderer.Write(generated, imagePath)
	if err != nil {
		return selection.FailedOutcome(err)
	}
	return selection.PublishedOutcome(postPath, imagePath)
}
