package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

type archiveOptions struct {
	htmlOptions `yaml:",inline"`
	// URLTemplate is the per-year archive URL with a {year} placeholder.
	URLTemplate string `yaml:"url_template"`
	MinYear     int    `yaml:"min_year"`
	// Years is how many archive years the aggregate adapter merges.
	Years    int    `yaml:"years"`
	Homepage string `yaml:"homepage"`
}

func (o archiveOptions) yearURL(year int) string {
	return strings.ReplaceAll(o.URLTemplate, "{year}", strconv.Itoa(year))
}

// ArchiveAdapter derives pages from per-year archive listings: page 1 is
// the current year, page N the year N-1 before it.
type ArchiveAdapter struct {
	env  *Env
	opts archiveOptions
}

func newArchive(env *Env, src types.Source) (Adapter, error) {
	a := &ArchiveAdapter{env: env}
	if err := decodeOptions(src, &a.opts); err != nil {
		return nil, err
	}
	if !strings.Contains(a.opts.URLTemplate, "{year}") {
		return nil, fmt.Errorf("source %q: archive url_template needs a {year} placeholder", src.ID)
	}
	return a, nil
}

// Fetch implements Adapter.
func (a *ArchiveAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	year := a.env.now().Year() - (opts.Page - 1)
	minYear := a.opts.MinYear
	if minYear == 0 {
		minYear = a.env.now().Year() - 15
	}
	if year < minYear {
		return &types.FetchResult{}, nil
	}

	listOpts := opts
	listOpts.Page = 1
	res, err := scrapeListing(ctx, a.env, src, a.opts.yearURL(year), a.opts.htmlOptions, listOpts)
	if err != nil {
		if isEndOfListing(err) {
			return &types.FetchResult{HasMore: opts.Page == 1 && year > minYear}, nil
		}
		return nil, err
	}
	// An empty current year (early January) is not the end; an empty
	// earlier year is.
	res.HasMore = year > minYear && (len(res.Posts) > 0 || opts.Page == 1)
	res.NextPageURL = ""
	if res.HasMore {
		res.NextPageURL = a.opts.yearURL(year - 1)
	}
	res.DetectedPattern = ""
	return res, nil
}

// AggregateAdapter merges a homepage listing with the recent yearly
// archives into one deduplicated dataset paged client-side.
type AggregateAdapter struct {
	env  *Env
	opts archiveOptions
}

func newAggregate(env *Env, src types.Source) (Adapter, error) {
	a := &AggregateAdapter{env: env}
	if err := decodeOptions(src, &a.opts); err != nil {
		return nil, err
	}
	if a.opts.Years <= 0 {
		a.opts.Years = 3
	}
	return a, nil
}

// Fetch implements Adapter.
func (a *AggregateAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	var gathered []types.Post
	var strategy string
	all, err := a.env.Datasets.Load(ctx, src.ID+"|aggregate", func(ctx context.Context) ([]types.Post, error) {
		urls := []string{listURLOf(src, a.opts.Homepage)}
		if a.opts.URLTemplate != "" {
			year := a.env.now().Year()
			for i := 0; i < a.opts.Years; i++ {
				urls = append(urls, a.opts.yearURL(year-i))
			}
		}

		results := make([][]types.Post, len(urls))
		strategies := make([]string, len(urls))
		// A failed listing does not cancel the others.
		var g errgroup.Group
		for i, u := range urls {
			g.Go(func() error {
				listOpts := types.FetchOptions{Page: 1, MaxPosts: opts.MaxPosts}
				res, err := scrapeListing(ctx, a.env, src, u, a.opts.htmlOptions, listOpts)
				if err != nil {
					return err
				}
				results[i], strategies[i] = res.Posts, res.Strategy
				return nil
			})
		}
		firstErr := g.Wait()

		for i, posts := range results {
			gathered = append(gathered, posts...)
			if strategy == "" {
				strategy = strategies[i]
			}
		}
		gathered = types.DedupPosts(gathered)
		types.SortByDateDesc(gathered)
		if firstErr != nil {
			// Partial datasets are served once but never cached.
			return nil, firstErr
		}
		return gathered, nil
	})
	if strategy == "" {
		strategy = parser.StrategySemantic
	}
	if err != nil {
		return partial(a.env.Logger, src, firstPage(gathered, opts), strategy, err)
	}
	return finishDataset(ctx, a.env, src, all, opts, strategy, false), nil
}

// firstPage trims a partial set to the requested page size.
func firstPage(posts []types.Post, opts types.FetchOptions) []types.Post {
	page, _ := types.Slice(posts, opts.Page, opts.MaxPosts)
	return page
}
