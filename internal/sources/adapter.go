// Package sources holds the per-source adapters, the registry that binds
// them to catalog entries and the dispatcher that picks a strategy.
package sources

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/observability"
	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

// Built-in adapter kinds.
const (
	KindRSS           = "generic-rss"
	KindHTML          = "generic-html"
	KindWordPress     = "wordpress"
	KindJSONAPI       = "jsonapi"
	KindNextData      = "nextdata"
	KindApollo        = "apollo"
	KindArchive       = "archive"
	KindAggregate     = "aggregate"
	KindTwoTier       = "twotier"
	KindSitemap       = "sitemap"
	KindMultiCategory = "multicategory"
)

// defaultMaxPages bounds server-side pagination for adapters that cannot
// tell when a listing ends.
const defaultMaxPages = 50

// Adapter is the fetch contract every source strategy implements.
type Adapter interface {
	Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error)

// Fetch calls f.
func (f AdapterFunc) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	return f(ctx, src, opts)
}

// Env carries the collaborators adapters share. It is built once per
// process by the orchestrator.
type Env struct {
	Fetcher   fetcher.Fetcher
	Renderer  fetcher.Fetcher
	Robots    fetcher.RobotsChecker
	Extractor *parser.Extractor
	Enricher  *Enricher
	Datasets  *DatasetCache
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewEnv fills the optional collaborators of an Env with defaults.
func NewEnv(f fetcher.Fetcher, logger *slog.Logger) *Env {
	metrics := observability.NewMetrics(logger)
	return &Env{
		Fetcher:   f,
		Extractor: parser.NewExtractor(logger),
		Enricher:  NewEnricher(f, 5, 300*time.Millisecond, metrics, logger),
		Datasets:  NewDatasetCache(30 * time.Minute),
		Metrics:   metrics,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e *Env) fetcherFor(src types.Source) fetcher.Fetcher {
	if src.Render && e.Renderer != nil {
		return fetcher.Rendering{Fetcher: e.Renderer}
	}
	return e.Fetcher
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// checkRobots returns a RobotsDisallowedError when robots.txt forbids rawURL.
func (e *Env) checkRobots(ctx context.Context, src types.Source, rawURL string) error {
	if e.Robots == nil || e.Robots.Allowed(ctx, rawURL) {
		return nil
	}
	return &types.RobotsDisallowedError{SourceID: src.ID, URL: rawURL}
}

// fetchDoc fetches and parses an HTML page.
func (e *Env) fetchDoc(ctx context.Context, src types.Source, rawURL string) (*types.Response, *goquery.Document, error) {
	resp, err := fetcher.Get(ctx, e.fetcherFor(src), src.ID, rawURL, "listing")
	if err != nil {
		return nil, nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, nil, &types.ParseError{URL: rawURL, Err: err}
	}
	return resp, doc, nil
}

// observe records extraction metrics for a finished result.
func (e *Env) observe(src types.Source, res *types.FetchResult) {
	if e.Metrics != nil && res != nil {
		e.Metrics.ObserveExtraction(src.ID, res.Strategy, len(res.Posts))
	}
}

// isEndOfListing reports upstream answers that mean "no such page": a 404
// or 410 past the last page of a server-side paginated listing.
func isEndOfListing(err error) bool {
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusNotFound || fe.StatusCode == http.StatusGone
}

// partial turns a mid-call failure into a terminal result when posts were
// already gathered, and into an error otherwise.
func partial(log *slog.Logger, src types.Source, posts []types.Post, strategy string, err error) (*types.FetchResult, error) {
	if len(posts) == 0 {
		return nil, err
	}
	log.Warn("returning partial result after fetch failure", "source", src.ID, "posts", len(posts), "error", err)
	return &types.FetchResult{Posts: posts, HasMore: false, Strategy: strategy}, nil
}

func tagCategory(posts []types.Post, category string) {
	if category == "" {
		return
	}
	for i := range posts {
		if posts[i].Category == "" {
			posts[i].Category = category
		}
	}
}

func listURLOf(src types.Source, override string) string {
	switch {
	case override != "":
		return override
	case src.BlogListURL != "":
		return src.BlogListURL
	}
	return src.Homepage
}

func mustParse(raw string) *url.URL {
	u, _ := url.Parse(raw)
	return u
}
