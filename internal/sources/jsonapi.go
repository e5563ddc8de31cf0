package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

type jsonAPIOptions struct {
	// Endpoint may carry {page} and {per_page} placeholders; without
	// {page} the page parameter is appended.
	Endpoint       string          `yaml:"endpoint"`
	PageParam      string          `yaml:"page_param"`
	PerPageParam   string          `yaml:"per_page_param"`
	ZeroIndexed    bool            `yaml:"zero_indexed"`
	ItemsPath      string          `yaml:"items_path"`
	TotalPagesPath string          `yaml:"total_pages_path"`
	TotalPath      string          `yaml:"total_path"`
	HasMorePath    string          `yaml:"has_more_path"`
	CategoryParam  string          `yaml:"category_param"`
	AreaParam      string          `yaml:"area_param"`
	Fields         parser.FieldMap `yaml:"fields"`
	Enrich         bool            `yaml:"enrich"`
}

// JSONAPIAdapter pages a JSON listing endpoint server-side.
type JSONAPIAdapter struct {
	env  *Env
	opts jsonAPIOptions
}

func newJSONAPI(env *Env, src types.Source) (Adapter, error) {
	var o jsonAPIOptions
	if err := decodeOptions(src, &o); err != nil {
		return nil, err
	}
	return jsonAPIFromOptions(env, src.ID, o)
}

func jsonAPIFromOptions(env *Env, sourceID string, o jsonAPIOptions) (*JSONAPIAdapter, error) {
	if o.Endpoint == "" {
		return nil, fmt.Errorf("source %q: jsonapi adapter needs an endpoint", sourceID)
	}
	if o.PageParam == "" {
		o.PageParam = "p"
	}
	return &JSONAPIAdapter{env: env, opts: o}, nil
}

// pageURL builds the endpoint URL for the 1-based page n.
func (a *JSONAPIAdapter) pageURL(n int, opts types.FetchOptions) (string, error) {
	upstream := n
	if a.opts.ZeroIndexed {
		upstream = n - 1
	}
	raw := strings.NewReplacer(
		"{page}", strconv.Itoa(upstream),
		"{per_page}", strconv.Itoa(opts.MaxPosts),
	).Replace(a.opts.Endpoint)

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if !strings.Contains(a.opts.Endpoint, "{page}") {
		q.Set(a.opts.PageParam, strconv.Itoa(upstream))
	}
	if a.opts.PerPageParam != "" && !strings.Contains(a.opts.Endpoint, "{per_page}") {
		q.Set(a.opts.PerPageParam, strconv.Itoa(opts.MaxPosts))
	}
	if a.opts.CategoryParam != "" && opts.Category != "" {
		q.Set(a.opts.CategoryParam, opts.Category)
	}
	if a.opts.AreaParam != "" && opts.ResearchArea != "" {
		q.Set(a.opts.AreaParam, opts.ResearchArea)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch implements Adapter.
func (a *JSONAPIAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	endpoint, err := a.pageURL(opts.Page, opts)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", src.ID, err)
	}
	var body any
	resp, err := fetcher.GetJSON(ctx, a.env.Fetcher, src.ID, endpoint, &body)
	if err != nil {
		if opts.Page > 1 && isEndOfListing(err) {
			return &types.FetchResult{Strategy: parser.StrategyAPI}, nil
		}
		return nil, err
	}

	items := parser.Array(body, a.opts.ItemsPath)
	base := mustParse(listURLOf(src, ""))
	if base == nil || base.Host == "" {
		base = mustParse(resp.FinalURL)
	}
	posts := recordsToPosts(a.env, src, items, a.opts.Fields, base, nil)
	tagCategory(posts, opts.Category)
	if a.opts.Enrich {
		posts = a.env.Enricher.Enrich(ctx, src, posts, EnrichOptions{})
	}

	res := &types.FetchResult{Posts: posts, HasMore: a.hasMore(body, opts, len(items)), Strategy: parser.StrategyAPI}
	if res.HasMore {
		res.NextPageURL, _ = a.pageURL(opts.Page+1, opts)
	}
	a.env.observe(src, res)
	return res, nil
}

// hasMore prefers an explicit flag, then page or item totals, then
// whether the page came back full.
func (a *JSONAPIAdapter) hasMore(body any, opts types.FetchOptions, n int) bool {
	if n == 0 {
		return false
	}
	if a.opts.HasMorePath != "" {
		if v, ok := parser.WalkPath(body, a.opts.HasMorePath); ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	if a.opts.TotalPagesPath != "" {
		if total, err := strconv.Atoi(parser.String(body, a.opts.TotalPagesPath)); err == nil {
			return opts.Page < total
		}
	}
	if a.opts.TotalPath != "" {
		if total, err := strconv.Atoi(parser.String(body, a.opts.TotalPath)); err == nil {
			return opts.Page*opts.MaxPosts < total
		}
	}
	return n >= opts.MaxPosts
}

// recordsToPosts maps decoded JSON records, dropping those without a
// title or URL.
func recordsToPosts(env *Env, src types.Source, items []any, fm parser.FieldMap, base *url.URL, state map[string]any) []types.Post {
	posts := make([]types.Post, 0, len(items))
	for _, rec := range items {
		p, err := parser.PostFromRecord(rec, fm, base, src.ID, state)
		if err != nil {
			if env.Metrics != nil {
				env.Metrics.PostsDropped.Add(1)
			}
			env.Logger.Debug("skipping record", "source", src.ID, "error", err)
			continue
		}
		posts = append(posts, p)
	}
	return posts
}
