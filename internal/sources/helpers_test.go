package sources

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testEnv(t *testing.T) *Env {
	t.Helper()
	cfg := config.DefaultConfig().Fetcher
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	f, err := fetcher.NewHTTPFetcher(&cfg, nil, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	env := NewEnv(f, testLogger)
	env.Enricher = NewEnricher(f, 5, 0, env.Metrics, testLogger)
	return env
}

// listingPage renders a listing with one <article> per slug and an optional
// pagination link.
func listingPage(base string, slugs []string, next string) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for _, s := range slugs {
		fmt.Fprintf(&b, `<article><h2><a href="%s/blog/%s">Post titled %s</a></h2><time datetime="2024-03-01">March 1</time></article>`, base, s, s)
	}
	if next != "" {
		fmt.Fprintf(&b, `<nav><a rel="next" href="%s">Next</a></nav>`, next)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func slugs(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return out
}

// drain pages through an adapter until hasMore is false, failing after
// limit pages.
func drain(t *testing.T, a Adapter, src types.Source, maxPosts, limit int) (pages int, posts []types.Post) {
	t.Helper()
	pattern := ""
	for page := 1; page <= limit; page++ {
		res, err := a.Fetch(t.Context(), src, types.FetchOptions{Page: page, MaxPosts: maxPosts, DetectedPattern: pattern})
		require.NoError(t, err, "page %d", page)
		posts = append(posts, res.Posts...)
		if res.DetectedPattern != "" {
			pattern = res.DetectedPattern
		}
		if !res.HasMore {
			return page, posts
		}
	}
	t.Fatalf("adapter did not terminate within %d pages", limit)
	return 0, nil
}
