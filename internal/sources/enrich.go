package sources

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/observability"
	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

// Enricher fetches post detail pages to fill fields a listing lacks.
// At most concurrency fetches run at once and dispatches are spaced by
// delay. A failed detail fetch leaves its post as it was.
type Enricher struct {
	fetcher     fetcher.Fetcher
	concurrency int
	delay       time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(f fetcher.Fetcher, concurrency int, delay time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{
		fetcher:     f,
		concurrency: concurrency,
		delay:       delay,
		metrics:     metrics,
		logger:      logger.With("component", "enricher"),
	}
}

// EnrichOptions controls which fields detail pages may overwrite.
type EnrichOptions struct {
	// ReplaceTitle lets the page title replace a placeholder title.
	ReplaceTitle bool
}

// Enrich updates posts in place and returns them. It stops dispatching
// once ctx is done; in-flight fetches finish and are kept.
func (e *Enricher) Enrich(ctx context.Context, src types.Source, posts []types.Post, opts EnrichOptions) []types.Post {
	if e == nil || len(posts) == 0 {
		return posts
	}
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i := range posts {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && e.delay > 0 {
			t := time.NewTimer(e.delay)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
			if ctx.Err() != nil {
				break
			}
		}
		i := i
		g.Go(func() error {
			e.enrichOne(ctx, src, &posts[i], opts)
			return nil
		})
	}
	_ = g.Wait()
	return posts
}

func (e *Enricher) enrichOne(ctx context.Context, src types.Source, p *types.Post, opts EnrichOptions) {
	if e.metrics != nil {
		e.metrics.DetailFetches.Add(1)
	}
	resp, err := fetcher.Get(ctx, e.fetcher, src.ID, p.URL, "detail")
	if err != nil {
		if e.metrics != nil {
			e.metrics.DetailFailures.Add(1)
		}
		e.logger.Warn("detail fetch failed, keeping listing data", "source", src.ID, "url", p.URL, "error", err)
		return
	}
	doc, err := resp.Document()
	if err != nil {
		return
	}
	base, _ := url.Parse(resp.FinalURL)
	meta := parser.ExtractMeta(doc, base)

	if meta.Title != "" && (opts.ReplaceTitle || p.Title == "") {
		p.Title = meta.Title
	}
	if p.PublishedAt == nil {
		p.PublishedAt = meta.PublishedAt
	}
	if p.Author == "" {
		p.Author = meta.Author
	}
	if p.Summary == "" {
		p.Summary = parser.Truncate(meta.Description, 500)
	}
	if p.ImageURL == "" {
		p.ImageURL = meta.ImageURL
	}
	if p.RawHTML == "" {
		p.RawHTML = parser.ArticleText(resp.Body, base, types.MaxRawHTMLChars)
	}
}
