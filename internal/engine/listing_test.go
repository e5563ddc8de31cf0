package engine

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/blogscope/internal/cache"
	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/sources"
	"github.com/IshaanNene/blogscope/internal/types"
)

// listingServer serves a scraped blog listing: 20 posts on page 1, 15 on
// page 2 of which 5 repeat page 1, and an empty page 3.
func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	article := func(b *strings.Builder, base, slug string) {
		fmt.Fprintf(b, `<article><h2><a href="%s/blog/%s">Post titled %s</a></h2><time datetime="2024-03-01">March 1</time></article>`, base, slug, slug)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		var b strings.Builder
		b.WriteString("<html><body><main>")
		switch r.URL.Query().Get("page") {
		case "":
			for i := 1; i <= 20; i++ {
				article(&b, base, fmt.Sprintf("first-%d", i))
			}
			b.WriteString(`<nav><a rel="next" href="/blog?page=2">Older posts</a></nav>`)
		case "2":
			for i := 16; i <= 20; i++ {
				article(&b, base, fmt.Sprintf("first-%d", i))
			}
			for i := 1; i <= 10; i++ {
				article(&b, base, fmt.Sprintf("second-%d", i))
			}
		default:
			b.WriteString("<p>No more posts.</p>")
		}
		b.WriteString("</main></body></html>")
		fmt.Fprint(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapedListingMergesAcrossPages(t *testing.T) {
	srv := listingServer(t)

	fcfg := config.DefaultConfig().Fetcher
	fcfg.MaxRetries = 1
	fcfg.RequestTimeout = 5 * time.Second
	f, err := fetcher.NewHTTPFetcher(&fcfg, nil, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	src := types.Source{ID: "scraped", Name: "Scraped", Homepage: srv.URL, AllowScrape: true, BlogListURL: srv.URL + "/blog"}
	store := cache.NewMemoryStore()
	svc := New(config.EngineConfig{}, testCatalog(src), sources.NewHTMLAdapter(sources.NewEnv(f, testLogger)), store, testLogger)

	first, err := svc.FetchPosts(t.Context(), "scraped", types.FetchOptions{Page: 1})
	require.NoError(t, err)
	assert.Len(t, first.Posts, 20)
	assert.Equal(t, 20, first.Added)
	assert.True(t, first.HasMore)
	assert.Equal(t, srv.URL+"/blog?page=2", first.DetectedPattern)

	second, err := svc.FetchPosts(t.Context(), "scraped", types.FetchOptions{Page: 2})
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Len(t, second.Posts, 15)
	assert.Equal(t, 10, second.Added)
	assert.Equal(t, 30, second.Cached)
	assert.True(t, second.HasMore)

	third, err := svc.FetchPosts(t.Context(), "scraped", types.FetchOptions{Page: 3})
	require.NoError(t, err)
	assert.Empty(t, third.Posts)
	assert.False(t, third.HasMore)

	cached, err := store.Get(t.Context(), "scraped")
	require.NoError(t, err)
	assert.Len(t, cached, 30)
}
