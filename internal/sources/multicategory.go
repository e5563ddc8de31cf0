package sources

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/blogscope/internal/pagination"
	"github.com/IshaanNene/blogscope/internal/types"
)

type multiCategoryOptions struct {
	// Kind is the adapter kind used for each category listing.
	Kind string `yaml:"kind"`
	// Options are shared by every category; PerCategory overrides them.
	Options     map[string]any            `yaml:"options"`
	PerCategory map[string]map[string]any `yaml:"per_category"`
}

type categoryAdapter struct {
	cat     types.Category
	src     types.Source
	adapter Adapter
}

// MultiCategoryAdapter fans a request out over a source's category
// listings, or narrows it to one when a category filter is given.
type MultiCategoryAdapter struct {
	env        *Env
	categories []categoryAdapter
	memo       *pagination.Memo
}

func newMultiCategory(r *Registry) Factory {
	return func(env *Env, src types.Source) (Adapter, error) {
		var o multiCategoryOptions
		if err := decodeOptions(src, &o); err != nil {
			return nil, err
		}
		if o.Kind == "" {
			o.Kind = KindHTML
		}
		a := &MultiCategoryAdapter{env: env, memo: pagination.NewMemo()}
		for _, cat := range src.Categories {
			child := src
			child.BlogListURL = cat.URL
			child.Adapter = o.Kind
			child.Categories = nil
			child.Options = mergeOptions(o.Options, o.PerCategory[cat.ID])
			ad, err := r.build(o.Kind, child)
			if err != nil {
				return nil, err
			}
			a.categories = append(a.categories, categoryAdapter{cat: cat, src: child, adapter: ad})
		}
		return a, nil
	}
}

func mergeOptions(shared, override map[string]any) map[string]any {
	out := make(map[string]any, len(shared)+len(override))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (a *MultiCategoryAdapter) names() []string {
	out := make([]string, len(a.categories))
	for i, c := range a.categories {
		out[i] = c.cat.Name
	}
	return out
}

func (a *MultiCategoryAdapter) find(category string) (categoryAdapter, bool) {
	for _, c := range a.categories {
		if strings.EqualFold(c.cat.ID, category) || strings.EqualFold(c.cat.Name, category) {
			return c, true
		}
	}
	return categoryAdapter{}, false
}

func (a *MultiCategoryAdapter) fetchOne(ctx context.Context, c categoryAdapter, opts types.FetchOptions) (*types.FetchResult, error) {
	key := c.src.ID + "|" + c.cat.ID
	if st, ok := a.memo.Get(key); ok {
		opts.DetectedPattern = st.CurrentPatternURL
	} else {
		opts.DetectedPattern = ""
	}
	opts.Category = ""
	res, err := c.adapter.Fetch(ctx, c.src, opts)
	if err != nil {
		return nil, err
	}
	a.memo.Record(key, res.DetectedPattern, opts.Page)
	for i := range res.Posts {
		res.Posts[i].Category = c.cat.Name
	}
	res.Posts = filterArea(res.Posts, opts.ResearchArea)
	return res, nil
}

// Fetch implements Adapter.
func (a *MultiCategoryAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	if opts.Category != "" {
		c, ok := a.find(opts.Category)
		if !ok {
			return &types.FetchResult{Categories: a.names()}, nil
		}
		res, err := a.fetchOne(ctx, c, opts)
		if err != nil {
			return nil, err
		}
		res.Categories = a.names()
		return res, nil
	}

	results := make([]*types.FetchResult, len(a.categories))
	var g errgroup.Group
	for i, c := range a.categories {
		g.Go(func() error {
			res, err := a.fetchOne(ctx, c, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	firstErr := g.Wait()

	var (
		posts    []types.Post
		more     bool
		strategy string
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		posts = append(posts, r.Posts...)
		more = more || r.HasMore
		if strategy == "" {
			strategy = r.Strategy
		}
	}
	posts = types.DedupPosts(posts)
	types.SortByDateDesc(posts)

	if firstErr != nil {
		res, err := partial(a.env.Logger, src, posts, strategy, firstErr)
		if res != nil {
			res.Categories = a.names()
		}
		return res, err
	}
	res := &types.FetchResult{Posts: posts, HasMore: more, Categories: a.names(), Strategy: strategy}
	a.env.observe(src, res)
	return res, nil
}

// filterArea keeps posts mentioning area in their sub-category, title or
// summary.
func filterArea(posts []types.Post, area string) []types.Post {
	if area == "" {
		return posts
	}
	area = strings.ToLower(area)
	out := posts[:0]
	for _, p := range posts {
		if strings.Contains(strings.ToLower(p.SubCategory), area) ||
			strings.Contains(strings.ToLower(p.Title), area) ||
			strings.Contains(strings.ToLower(p.Summary), area) {
			out = append(out, p)
		}
	}
	return out
}
