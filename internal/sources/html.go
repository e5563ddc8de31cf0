package sources

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/blogscope/internal/pagination"
	"github.com/IshaanNene/blogscope/internal/types"
)

// HTMLAdapter scrapes a listing page with the extraction heuristics and
// pages through it with the detected or default page-N convention.
type HTMLAdapter struct {
	env    *Env
	logger *slog.Logger
}

// NewHTMLAdapter creates the generic scraping adapter.
func NewHTMLAdapter(env *Env) *HTMLAdapter {
	return &HTMLAdapter{env: env, logger: env.Logger.With("component", "html_adapter")}
}

// Fetch implements Adapter.
func (a *HTMLAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	if !src.AllowScrape || src.BlogListURL == "" {
		return nil, &types.NoFetchStrategyError{SourceID: src.ID}
	}
	var o htmlOptions
	if err := decodeOptions(src, &o); err != nil {
		return nil, err
	}
	return scrapeListing(ctx, a.env, src, src.BlogListURL, o, opts)
}

// scrapeListing fetches page opts.Page of listURL. A page past page 1 that
// the upstream rejects with 404 ends the listing instead of failing.
func scrapeListing(ctx context.Context, env *Env, src types.Source, listURL string, o htmlOptions, opts types.FetchOptions) (*types.FetchResult, error) {
	po, err := o.parserOptions()
	if err != nil {
		return nil, err
	}
	pattern := opts.DetectedPattern
	pageURL := pagination.BuildPageURL(listURL, pattern, opts.Page)

	if err := env.checkRobots(ctx, src, pageURL); err != nil {
		return nil, err
	}
	resp, doc, err := env.fetchDoc(ctx, src, pageURL)
	if err != nil {
		if opts.Page > 1 && isEndOfListing(err) {
			return &types.FetchResult{DetectedPattern: pattern}, nil
		}
		return nil, err
	}

	extracted := env.Extractor.ExtractDocument(doc, resp.FinalURL, src.ID, po)
	posts := extracted.Posts
	tagCategory(posts, opts.Category)

	if next, ok := pagination.DetectNextPage(resp.Body, resp.FinalURL); ok && pattern == "" {
		pattern = next
	}
	if o.Enrich {
		posts = env.Enricher.Enrich(ctx, src, posts, EnrichOptions{})
	}

	res := &types.FetchResult{
		Posts:           posts,
		HasMore:         len(posts) > 0 && opts.Page < o.maxPages(),
		DetectedPattern: pattern,
		Strategy:        extracted.Strategy,
	}
	if res.HasMore {
		res.NextPageURL = pagination.BuildPageURL(listURL, pattern, opts.Page+1)
	}
	env.observe(src, res)
	return res, nil
}
