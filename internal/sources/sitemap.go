package sources

import (
	"context"
	"encoding/xml"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

type sitemapOptions struct {
	URL string `yaml:"url"`
	// Include keeps only URLs whose path starts with one of the prefixes.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	// ChildInclude picks sitemap-index children by substring.
	ChildInclude []string `yaml:"child_include"`
	MaxChildren  int      `yaml:"max_children"`
	SkipEnrich   bool     `yaml:"skip_enrich"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapEntry `xml:"url"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapLister interface {
	Sitemaps(ctx context.Context, origin string) []string
}

// SitemapAdapter lists posts from the site's XML sitemap and enriches each
// page of them from the post pages themselves.
type SitemapAdapter struct {
	env  *Env
	opts sitemapOptions
}

func newSitemap(env *Env, src types.Source) (Adapter, error) {
	a := &SitemapAdapter{env: env}
	if err := decodeOptions(src, &a.opts); err != nil {
		return nil, err
	}
	if a.opts.MaxChildren <= 0 {
		a.opts.MaxChildren = 5
	}
	return a, nil
}

func (a *SitemapAdapter) sitemapURL(ctx context.Context, src types.Source) string {
	if a.opts.URL != "" {
		return a.opts.URL
	}
	u, err := url.Parse(listURLOf(src, ""))
	if err != nil {
		return ""
	}
	origin := u.Scheme + "://" + u.Host
	if l, ok := a.env.Robots.(sitemapLister); ok {
		if maps := l.Sitemaps(ctx, origin); len(maps) > 0 {
			return maps[0]
		}
	}
	return origin + "/sitemap.xml"
}

// Fetch implements Adapter.
func (a *SitemapAdapter) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
	var gathered []types.Post
	all, err := a.env.Datasets.Load(ctx, src.ID+"|sitemap", func(ctx context.Context) ([]types.Post, error) {
		root := a.sitemapURL(ctx, src)
		doc, err := a.fetchSitemap(ctx, src, root)
		var perr *types.ParseError
		if errors.As(err, &perr) {
			return a.recoverListing(ctx, src, perr)
		}
		if err != nil {
			return nil, err
		}
		entries := doc.URLs
		var childErr error
		children := 0
		for _, child := range doc.Sitemaps {
			if children >= a.opts.MaxChildren {
				break
			}
			if !a.wantChild(child.Loc) {
				continue
			}
			children++
			cdoc, err := a.fetchSitemap(ctx, src, child.Loc)
			if errors.As(err, &perr) {
				a.env.Logger.Warn("skipping malformed child sitemap", "source", src.ID, "error", err)
				continue
			}
			if err != nil {
				childErr = err
				continue
			}
			entries = append(entries, cdoc.URLs...)
		}

		gathered = a.entriesToPosts(src, entries)
		if childErr != nil {
			return nil, childErr
		}
		return gathered, nil
	})
	if err != nil {
		return partial(a.env.Logger, src, a.enrichPage(ctx, src, firstPage(gathered, opts)), parser.StrategySitemap, err)
	}

	res := slicePage(all, opts, parser.StrategySitemap)
	res.Posts = a.enrichPage(ctx, src, res.Posts)
	a.env.observe(src, res)
	return res, nil
}

func (a *SitemapAdapter) enrichPage(ctx context.Context, src types.Source, posts []types.Post) []types.Post {
	if a.opts.SkipEnrich || len(posts) == 0 {
		return posts
	}
	page := make([]types.Post, len(posts))
	copy(page, posts)
	return a.env.Enricher.Enrich(ctx, src, page, EnrichOptions{ReplaceTitle: true})
}

func (a *SitemapAdapter) fetchSitemap(ctx context.Context, src types.Source, rawURL string) (*sitemapDoc, error) {
	resp, err := fetcher.Get(ctx, a.env.Fetcher, src.ID, rawURL, "sitemap")
	if err != nil {
		return nil, err
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &types.ParseError{URL: rawURL, Err: err}
	}
	return &doc, nil
}

// recoverListing replaces an unreadable root sitemap with the posts the
// listing page links to. No listing page means an empty dataset.
func (a *SitemapAdapter) recoverListing(ctx context.Context, src types.Source, perr *types.ParseError) ([]types.Post, error) {
	a.env.Logger.Warn("sitemap unreadable, extracting from listing page", "source", src.ID, "error", perr)
	listURL := listURLOf(src, "")
	if listURL == "" {
		return nil, nil
	}
	if err := a.env.checkRobots(ctx, src, listURL); err != nil {
		return nil, err
	}
	resp, doc, err := a.env.fetchDoc(ctx, src, listURL)
	if err != nil {
		return nil, err
	}
	var posts []types.Post
	for _, p := range a.env.Extractor.ExtractDocument(doc, resp.FinalURL, src.ID, parser.Options{}).Posts {
		if u, err := url.Parse(p.URL); err == nil && a.wantURL(u) {
			posts = append(posts, p)
		}
	}
	return types.DedupPosts(posts), nil
}

func (a *SitemapAdapter) wantChild(loc string) bool {
	if len(a.opts.ChildInclude) == 0 {
		return true
	}
	for _, s := range a.opts.ChildInclude {
		if strings.Contains(loc, s) {
			return true
		}
	}
	return false
}

func (a *SitemapAdapter) wantURL(u *url.URL) bool {
	for _, p := range a.opts.Exclude {
		if strings.HasPrefix(u.Path, p) {
			return false
		}
	}
	if len(a.opts.Include) == 0 {
		return true
	}
	for _, p := range a.opts.Include {
		if strings.HasPrefix(u.Path, p) && strings.TrimSuffix(u.Path, "/") != strings.TrimSuffix(p, "/") {
			return true
		}
	}
	return false
}

// entriesToPosts turns sitemap entries into placeholder posts titled from
// their slug, newest lastmod first.
func (a *SitemapAdapter) entriesToPosts(src types.Source, entries []sitemapEntry) []types.Post {
	posts := make([]types.Post, 0, len(entries))
	for _, e := range entries {
		u, err := url.Parse(strings.TrimSpace(e.Loc))
		if err != nil || u.Host == "" || !a.wantURL(u) {
			continue
		}
		title := titleFromSlug(u.Path)
		if title == "" {
			continue
		}
		p := types.NewPost(src.ID, title, u.String())
		p.PublishedAt = parser.ParseDate(e.LastMod)
		posts = append(posts, p)
	}
	posts = types.DedupPosts(posts)
	types.SortByDateDesc(posts)
	return posts
}

// titleFromSlug turns "/blog/my-first-post/" into "My first post".
func titleFromSlug(p string) string {
	slug := path.Base(strings.TrimSuffix(p, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	if ext := path.Ext(slug); ext != "" {
		slug = strings.TrimSuffix(slug, ext)
	}
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return ""
	}
	t := strings.Join(words, " ")
	return strings.ToUpper(t[:1]) + t[1:]
}
