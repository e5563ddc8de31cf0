package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

func TestDatasetCacheTTL(t *testing.T) {
	c := NewDatasetCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	loads := 0
	load := func(context.Context) ([]types.Post, error) {
		loads++
		return []types.Post{types.NewPost("s", "A post title", "https://x.test/a")}, nil
	}
	for i := 0; i < 3; i++ {
		_, err := c.Load(t.Context(), "k", load)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loads)

	now = now.Add(2 * time.Minute)
	_, err := c.Load(t.Context(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	_, err = c.Load(t.Context(), "bad", func(context.Context) ([]types.Post, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
	c.Invalidate("k")
	_, _ = c.Load(t.Context(), "k", load)
	assert.Equal(t, 3, loads)
}

func nextDataPage(posts []map[string]any) string {
	state, _ := json.Marshal(map[string]any{"props": map[string]any{"pageProps": map[string]any{"posts": posts}}})
	return `<html><head><script id="__NEXT_DATA__" type="application/json">` + string(state) + `</script></head><body></body></html>`
}

func TestNextDataAdapterSlicesState(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var posts []map[string]any
		for i := 1; i <= 12; i++ {
			posts = append(posts, map[string]any{
				"title":       fmt.Sprintf("State post %02d", i),
				"slug":        fmt.Sprintf("state-%d", i),
				"publishedAt": fmt.Sprintf("2024-01-%02dT00:00:00Z", i),
			})
		}
		fmt.Fprint(w, nextDataPage(posts))
	}))
	defer srv.Close()

	src := types.Source{ID: "next", Homepage: srv.URL + "/blog", Adapter: KindNextData, Options: map[string]any{
		"sort":   true,
		"fields": map[string]any{"url_template": srv.URL + "/blog/{slug}"},
	}}
	a, err := newNextData(testEnv(t), src)
	require.NoError(t, err)

	first, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 5})
	require.NoError(t, err)
	require.Len(t, first.Posts, 5)
	assert.Equal(t, "State post 12", first.Posts[0].Title, "sorted newest first")
	assert.Equal(t, parser.StrategyState, first.Strategy)

	pages, posts := drain(t, a, src, 5, 10)
	assert.Equal(t, 3, pages)
	assert.Len(t, posts, 12)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNextDataAdapterRecoversFromBadState(t *testing.T) {
	tests := []struct {
		name  string
		page  func(base string) string
		posts int
	}{
		{"malformed state falls back to markup", func(base string) string {
			return strings.Replace(listingPage(base, slugs("markup", 3), ""),
				"<body>", `<body><script id="__NEXT_DATA__">{not json</script>`, 1)
		}, 3},
		{"state without post array falls back to markup", func(base string) string {
			return strings.Replace(listingPage(base, slugs("markup", 2), ""),
				"<body>", `<body><script id="__NEXT_DATA__">{"props":{"pageProps":{}}}</script>`, 1)
		}, 2},
		{"no state and no posts is empty", func(string) string {
			return "<html><body>plain page</body></html>"
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.page("http://"+r.Host))
			}))
			defer srv.Close()

			src := types.Source{ID: "next", Homepage: srv.URL}
			a, err := newNextData(testEnv(t), src)
			require.NoError(t, err)
			res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 5})
			require.NoError(t, err)
			assert.Len(t, res.Posts, tt.posts)
			assert.False(t, res.HasMore)
		})
	}
}

func TestApolloAdapterRecoversWithoutState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := listingPage("http://"+r.Host, slugs("apollo-markup", 2), "")
		fmt.Fprint(w, strings.Replace(page, "<body>", `<body><script>window.__APOLLO_STATE__ = {broken;</script>`, 1))
	}))
	defer srv.Close()

	src := types.Source{ID: "apollo", Homepage: srv.URL, Adapter: KindApollo}
	a, err := newApollo(testEnv(t), src)
	require.NoError(t, err)
	res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 5})
	require.NoError(t, err)
	require.Len(t, res.Posts, 2)
	assert.Contains(t, res.Posts[0].URL, "/blog/apollo-markup-")
}

func TestApolloAdapterResolvesRefs(t *testing.T) {
	state := map[string]any{
		"Author:1": map[string]any{"__typename": "Author", "name": "Grace Hopper"},
		"BlogPost:1": map[string]any{
			"__typename": "BlogPost", "title": "Older apollo post", "slug": "older",
			"publishedAt": "2023-05-01", "author": map[string]any{"__ref": "Author:1"},
		},
		"BlogPost:2": map[string]any{
			"__typename": "BlogPost", "title": "Newer apollo post", "slug": "newer",
			"publishedAt": "2024-05-01", "author": map[string]any{"__ref": "Author:1"},
		},
		"ROOT_QUERY": map[string]any{"__typename": "Query"},
	}
	raw, _ := json.Marshal(state)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><script>window.__APOLLO_STATE__ = %s;</script></body></html>`, raw)
	}))
	defer srv.Close()

	src := types.Source{ID: "apollo", Homepage: srv.URL + "/blog/", Options: map[string]any{
		"typename": "BlogPost",
		"fields":   map[string]any{"url_template": srv.URL + "/blog/{slug}/"},
	}}
	a, err := newApollo(testEnv(t), src)
	require.NoError(t, err)

	res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10})
	require.NoError(t, err)
	require.Len(t, res.Posts, 2)
	assert.Equal(t, "Newer apollo post", res.Posts[0].Title)
	assert.Equal(t, "Grace Hopper", res.Posts[0].Author)
	assert.False(t, res.HasMore)
}

func TestAggregateAdapterMergesAndDedups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		switch {
		case r.URL.Path == "/research":
			fmt.Fprint(w, listingPage(base, []string{"shared", "home-only"}, ""))
		case r.URL.Query().Get("year") == "2024":
			fmt.Fprint(w, listingPage(base, []string{"shared", "y24"}, ""))
		case r.URL.Query().Get("year") == "2023":
			fmt.Fprint(w, listingPage(base, []string{"y23-a", "y23-b"}, ""))
		case r.URL.Query().Get("year") == "2022":
			fmt.Fprint(w, listingPage(base, []string{"y22"}, ""))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	env := testEnv(t)
	env.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	src := types.Source{ID: "agg", AllowScrape: true, Homepage: srv.URL + "/research", Options: map[string]any{
		"url_template": srv.URL + "/research/archive?year={year}",
	}}
	a, err := newAggregate(env, src)
	require.NoError(t, err)

	pages, posts := drain(t, a, src, 4, 10)
	assert.Equal(t, 2, pages)
	assert.Len(t, posts, 6, "shared post appears once")
}

func TestAggregateAdapterPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("year") == "2023" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, listingPage("http://"+r.Host, slugs(r.URL.Query().Get("year")+"x", 3), ""))
	}))
	defer srv.Close()

	env := testEnv(t)
	env.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	src := types.Source{ID: "agg", AllowScrape: true, Homepage: srv.URL + "/", Options: map[string]any{
		"url_template": srv.URL + "/archive?year={year}",
		"years":        2,
	}}
	a, err := newAggregate(env, src)
	require.NoError(t, err)

	res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10})
	require.NoError(t, err)
	assert.Len(t, res.Posts, 6, "homepage and 2024 survive the failed 2023 archive")
	assert.False(t, res.HasMore)
}

func TestSitemapAdapterEnrichesPage(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>%[1]s/sitemap-posts.xml</loc></sitemap>
<sitemap><loc>%[1]s/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`, srvURL)
		case "/sitemap-posts.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%[1]s/news/</loc></url>
<url><loc>%[1]s/news/old-launch</loc><lastmod>2023-01-01</lastmod></url>
<url><loc>%[1]s/news/new-model-release</loc><lastmod>2024-06-01</lastmod></url>
<url><loc>%[1]s/news/broken-page</loc><lastmod>2024-01-01</lastmod></url>
<url><loc>%[1]s/careers/engineer</loc><lastmod>2024-07-01</lastmod></url>
</urlset>`, srvURL)
		case "/news/new-model-release", "/news/old-launch":
			fmt.Fprint(w, `<html><head><meta property="og:title" content="Real Title From Page"><meta name="author" content="Ada"></head>`+
				`<body><article><p>The release notes describe the new model in detail.</p></article></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	src := types.Source{ID: "map", Homepage: srv.URL, Options: map[string]any{
		"include":       []any{"/news/"},
		"child_include": []any{"posts"},
	}}
	a, err := newSitemap(testEnv(t), src)
	require.NoError(t, err)

	res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 2})
	require.NoError(t, err)
	require.Len(t, res.Posts, 2)
	assert.True(t, res.HasMore)
	assert.Equal(t, srv.URL+"/news/new-model-release", res.Posts[0].URL)
	assert.Equal(t, "Real Title From Page", res.Posts[0].Title)
	assert.Contains(t, res.Posts[0].RawHTML, "release notes describe the new model")
	assert.Equal(t, "Broken page", res.Posts[1].Title, "failed detail fetch keeps the placeholder")
	assert.Empty(t, res.Posts[1].RawHTML)

	last, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 2, MaxPosts: 2})
	require.NoError(t, err)
	require.Len(t, last.Posts, 1)
	assert.False(t, last.HasMore)
}

func TestSitemapAdapterRecoversFromMalformedSitemap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprint(w, `<?xml version="1.0"?><urlset><url><loc>`)
		case "/blog":
			fmt.Fprint(w, listingPage("http://"+r.Host, slugs("listed", 3), ""))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := types.Source{ID: "map", Homepage: srv.URL, BlogListURL: srv.URL + "/blog", Options: map[string]any{
		"skip_enrich": true,
	}}
	a, err := newSitemap(testEnv(t), src)
	require.NoError(t, err)

	res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10})
	require.NoError(t, err)
	assert.Len(t, res.Posts, 3)
	assert.False(t, res.HasMore)
}

func TestTitleFromSlug(t *testing.T) {
	assert.Equal(t, "My first post", titleFromSlug("/blog/my-first-post/"))
	assert.Equal(t, "Release notes", titleFromSlug("/release_notes.html"))
	assert.Equal(t, "", titleFromSlug("/"))
}

func TestMultiCategoryAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		switch r.URL.Path {
		case "/blog":
			fmt.Fprint(w, listingPage(base, []string{"quantum-error-correction", "vision-models"}, ""))
		case "/pubs":
			fmt.Fprintf(w, `<html><body><article><a href="%s/publications/robust-quantum-paper">Robust quantum paper</a></article></body></html>`, base)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := types.Source{ID: "multi", AllowScrape: true, Homepage: srv.URL, Adapter: KindMultiCategory,
		Categories: []types.Category{
			{ID: "blog", Name: "blog", URL: srv.URL + "/blog"},
			{ID: "publication", Name: "publication", URL: srv.URL + "/pubs"},
		},
	}
	reg := NewRegistry(testEnv(t))
	require.NoError(t, reg.Bind(src))
	a, ok := reg.Lookup("multi")
	require.True(t, ok)

	all, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10})
	require.NoError(t, err)
	assert.Len(t, all.Posts, 3)
	assert.Equal(t, []string{"blog", "publication"}, all.Categories)
	assert.True(t, all.HasMore)

	pubs, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10, Category: "publication"})
	require.NoError(t, err)
	require.Len(t, pubs.Posts, 1)
	assert.Equal(t, "publication", pubs.Posts[0].Category)

	area, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10, ResearchArea: "Quantum"})
	require.NoError(t, err)
	assert.Len(t, area.Posts, 2)

	next, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 2, MaxPosts: 10})
	require.NoError(t, err)
	assert.Empty(t, next.Posts)
	assert.False(t, next.HasMore)
}

func TestMultiCategoryAdapterPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blog" {
			fmt.Fprint(w, listingPage("http://"+r.Host, slugs("kept", 2), ""))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := types.Source{ID: "multi", AllowScrape: true, Homepage: srv.URL, Adapter: KindMultiCategory,
		Categories: []types.Category{
			{ID: "blog", Name: "blog", URL: srv.URL + "/blog"},
			{ID: "science", Name: "science", URL: srv.URL + "/science"},
		},
	}
	reg := NewRegistry(testEnv(t))
	require.NoError(t, reg.Bind(src))
	a, ok := reg.Lookup("multi")
	require.True(t, ok)

	res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: 1, MaxPosts: 10})
	require.NoError(t, err)
	assert.Len(t, res.Posts, 2)
	assert.False(t, res.HasMore)
	assert.Equal(t, []string{"blog", "science"}, res.Categories)
}
