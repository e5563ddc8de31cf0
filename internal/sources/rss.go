package sources

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IshaanNene/blogscope/internal/feed"
	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

// RSSAdapter reads a source's RSS or Atom feed. Feeds are fetched whole
// and paged client-side.
type RSSAdapter struct {
	env      *Env
	fallback Adapter
	logger   *slog.Logger
}

// NewRSSAdapter creates the generic feed adapter. fallback, when non-nil,
// is used for scrape-allowed sources whose feed cannot be parsed.
func NewRSSAdapter(env *Env, fallback Adapter) *RSSAdapter {
	return &RSSAdapter{env: env, fallback: fallback, logger: env.Logger.With("component", "rss_adapter")}
}

// Fetch implements Adapter.
func (a *RSSAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	if src.RSS == "" {
		return nil, &types.NoFetchStrategyError{SourceID: src.ID}
	}
	all, err := a.env.Datasets.Load(ctx, src.ID+"|feed", func(ctx context.Context) ([]types.Post, error) {
		resp, err := fetcher.Get(ctx, a.env.Fetcher, src.ID, src.RSS, "feed")
		if err != nil {
			return nil, err
		}
		posts, err := feed.Parse(resp.Body, src.ID, mustParse(resp.FinalURL))
		if err != nil {
			return nil, &types.ParseError{URL: src.RSS, Err: err}
		}
		return posts, nil
	})

	var perr *types.ParseError
	if errors.As(err, &perr) {
		if src.AllowScrape && src.BlogListURL != "" && a.fallback != nil {
			a.logger.Warn("feed unparseable, falling back to html listing", "source", src.ID, "error", err)
			return a.fallback.Fetch(ctx, src, opts)
		}
		a.logger.Warn("feed unparseable, no fallback allowed", "source", src.ID, "error", err)
		return &types.FetchResult{Strategy: parser.StrategyFeed}, nil
	}
	if err != nil {
		return nil, err
	}

	return finishDataset(ctx, a.env, src, all, opts, parser.StrategyFeed, false), nil
}
