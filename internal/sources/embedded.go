package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

var defaultNextDataPaths = []string{
	"props.pageProps.posts",
	"props.pageProps.articles",
	"props.pageProps.data.posts",
	"props.pageProps.initialPosts",
	"props.pageProps.page.posts",
}

type nextDataOptions struct {
	URL string `yaml:"url"`
	// Path is the dot path of the post array inside the state.
	Path string `yaml:"path"`
	// Script reads the state from a custom <script> selector instead of
	// #__NEXT_DATA__; Assigned reads "window.<name> = {...}".
	Script   string          `yaml:"script"`
	Assigned string          `yaml:"assigned"`
	Fields   parser.FieldMap `yaml:"fields"`
	Sort     bool            `yaml:"sort"`
	Enrich   bool            `yaml:"enrich"`
}

// NextDataAdapter reads the posts a server-rendered framework embeds in its
// page state. The whole list is loaded once and paged client-side.
type NextDataAdapter struct {
	env  *Env
	opts nextDataOptions
}

func newNextData(env *Env, src types.Source) (Adapter, error) {
	a := &NextDataAdapter{env: env}
	if err := decodeOptions(src, &a.opts); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *NextDataAdapter) state(doc *goquery.Document) (map[string]any, string, error) {
	switch {
	case a.opts.Script != "":
		st, err := parser.ScriptJSON(doc, a.opts.Script)
		return st, a.opts.Script, err
	case a.opts.Assigned != "":
		st, err := parser.AssignedJSON(doc, a.opts.Assigned)
		return st, a.opts.Assigned, err
	}
	st, err := parser.NextData(doc)
	return st, "script#__NEXT_DATA__", err
}

// Fetch implements Adapter.
func (a *NextDataAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	pageURL := listURLOf(src, a.opts.URL)
	all, err := a.env.Datasets.Load(ctx, src.ID+"|state", func(ctx context.Context) ([]types.Post, error) {
		if err := a.env.checkRobots(ctx, src, pageURL); err != nil {
			return nil, err
		}
		resp, doc, err := a.env.fetchDoc(ctx, src, pageURL)
		if err != nil {
			return nil, err
		}
		state, selector, err := a.state(doc)
		if err != nil {
			return recoverState(a.env, src, resp, doc, &types.ParseError{URL: pageURL, Selector: selector, Err: err}), nil
		}
		paths := defaultNextDataPaths
		if a.opts.Path != "" {
			paths = []string{a.opts.Path}
		}
		var items []any
		for _, p := range paths {
			if items = parser.Array(state, p); len(items) > 0 {
				break
			}
		}
		if items == nil {
			err := fmt.Errorf("no post array at %v", paths)
			return recoverState(a.env, src, resp, doc, &types.ParseError{URL: pageURL, Selector: selector, Err: err}), nil
		}
		posts := recordsToPosts(a.env, src, items, a.opts.Fields, mustParse(resp.FinalURL), nil)
		if a.opts.Sort {
			types.SortByDateDesc(posts)
		}
		return types.DedupPosts(posts), nil
	})
	if err != nil {
		return nil, err
	}
	return finishDataset(ctx, a.env, src, all, opts, parser.StrategyState, a.opts.Enrich), nil
}

type apolloOptions struct {
	URL      string          `yaml:"url"`
	Typename string          `yaml:"typename"`
	Fields   parser.FieldMap `yaml:"fields"`
	Enrich   bool            `yaml:"enrich"`
}

// ApolloAdapter reads post entities out of a page's normalized Apollo
// cache, following __ref links for nested authors and images.
type ApolloAdapter struct {
	env  *Env
	opts apolloOptions
}

func newApollo(env *Env, src types.Source) (Adapter, error) {
	a := &ApolloAdapter{env: env}
	if err := decodeOptions(src, &a.opts); err != nil {
		return nil, err
	}
	if a.opts.Typename == "" {
		a.opts.Typename = "Post"
	}
	return a, nil
}

// Fetch implements Adapter.
func (a *ApolloAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	pageURL := listURLOf(src, a.opts.URL)
	all, err := a.env.Datasets.Load(ctx, src.ID+"|apollo", func(ctx context.Context) ([]types.Post, error) {
		if err := a.env.checkRobots(ctx, src, pageURL); err != nil {
			return nil, err
		}
		resp, doc, err := a.env.fetchDoc(ctx, src, pageURL)
		if err != nil {
			return nil, err
		}
		state, err := parser.ApolloState(doc)
		if err != nil {
			return recoverState(a.env, src, resp, doc, &types.ParseError{URL: pageURL, Selector: "__APOLLO_STATE__", Err: err}), nil
		}
		entities := parser.EntitiesOfType(state, a.opts.Typename)
		if len(entities) == 0 {
			err := fmt.Errorf("no %s entities", a.opts.Typename)
			return recoverState(a.env, src, resp, doc, &types.ParseError{URL: pageURL, Selector: "__APOLLO_STATE__", Err: err}), nil
		}
		items := make([]any, len(entities))
		for i, e := range entities {
			items[i] = e
		}
		posts := recordsToPosts(a.env, src, items, a.opts.Fields, mustParse(resp.FinalURL), state)
		types.SortByDateDesc(posts)
		return types.DedupPosts(posts), nil
	})
	if err != nil {
		return nil, err
	}
	return finishDataset(ctx, a.env, src, all, opts, parser.StrategyState, a.opts.Enrich), nil
}

// recoverState logs an unusable embedded state and extracts what the
// rendered markup of the same page offers instead.
func recoverState(env *Env, src types.Source, resp *types.Response, doc *goquery.Document, perr *types.ParseError) []types.Post {
	env.Logger.Warn("embedded state unusable, extracting from markup", "source", src.ID, "error", perr)
	res := env.Extractor.ExtractDocument(doc, resp.FinalURL, src.ID, parser.Options{})
	return types.DedupPosts(res.Posts)
}

// finishDataset filters a full dataset by category, slices the requested
// page and optionally enriches it.
func finishDataset(ctx context.Context, env *Env, src types.Source, all []types.Post, opts types.FetchOptions, strategy string, enrich bool) *types.FetchResult {
	if opts.Category != "" {
		filtered := make([]types.Post, 0, len(all))
		for _, p := range all {
			if strings.EqualFold(p.SubCategory, opts.Category) || strings.EqualFold(p.Category, opts.Category) {
				filtered = append(filtered, p)
			}
		}
		all = filtered
	}
	res := slicePage(all, opts, strategy)
	if enrich && len(res.Posts) > 0 {
		page := make([]types.Post, len(res.Posts))
		copy(page, res.Posts)
		res.Posts = env.Enricher.Enrich(ctx, src, page, EnrichOptions{})
	}
	env.observe(src, res)
	return res
}
