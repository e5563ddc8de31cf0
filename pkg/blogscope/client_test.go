package blogscope

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/types"
)

func feedServer(t *testing.T, n int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Eng</title>`)
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&b, "<item><title>Post %d</title><link>https://eng.test/p/%d</link>"+
				"<description>Summary %d</description><pubDate>Mon, 0%d Jan 2024 10:00:00 GMT</pubDate></item>",
				i, i, i, i%9+1)
		}
		b.WriteString("</channel></rss>")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeCatalog(t *testing.T, feedURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	yaml := fmt.Sprintf("sources:\n  - id: eng\n    name: Eng Blog\n    homepage: https://eng.test\n    rss: %s\n", feedURL)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestClientServesFeedThenCache(t *testing.T) {
	srv, hits := feedServer(t, 12)

	client, err := New(
		WithCatalog(writeCatalog(t, srv.URL)),
		WithCache("file", t.TempDir()),
		WithRobotsRespect(false),
		WithDelay(0),
		WithMaxPostsPerPage(10),
		WithRefreshInterval(time.Hour),
	)
	require.NoError(t, err)
	defer client.Close()

	require.Len(t, client.Sources(), 1)

	first, err := client.Posts(t.Context(), "eng", types.FetchOptions{Page: 1})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Posts, 10)
	assert.True(t, first.HasMore)
	assert.Equal(t, "eng", first.Posts[0].SourceID)

	again, err := client.Posts(t.Context(), "eng", types.FetchOptions{Page: 1})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Len(t, again.Posts, 10)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientUnknownSource(t *testing.T) {
	client, err := New(WithCache("memory", ""))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Posts(t.Context(), "does-not-exist", types.FetchOptions{})
	assert.Error(t, err)
}

func TestOpenReturnsWiringErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("missing catalog", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Sources.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
		client, err := Open(cfg, logger)
		require.Error(t, err)
		assert.Nil(t, client)
	})
	t.Run("unopenable cache", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
		cfg := config.DefaultConfig()
		cfg.Cache.Backend = "file"
		cfg.Cache.Dir = filepath.Join(blocker, "cache")
		client, err := Open(cfg, logger)
		require.Error(t, err)
		assert.Nil(t, client)
	})
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(WithMaxPostsPerPage(0))
	assert.Error(t, err)
}
