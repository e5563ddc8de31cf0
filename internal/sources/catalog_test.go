package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/blogscope/internal/types"
)

func sourceWithID(id string) types.Source { return types.Source{ID: id, Name: id} }

func TestDefaultCatalogResolvesEverySource(t *testing.T) {
	cat := DefaultCatalog()
	require.GreaterOrEqual(t, len(cat.Sources), 20)

	d, err := NewDispatcher(NewRegistry(testEnv(t)), cat)
	require.NoError(t, err)
	for _, src := range cat.All() {
		_, strategy, err := d.Resolve(src)
		assert.NoError(t, err, src.ID)
		if src.Adapter != "" && src.Adapter != KindRSS && src.Adapter != KindHTML {
			assert.Equal(t, StrategyCustom, strategy, src.ID)
		}
	}

	src, ok := cat.Get("netflix")
	require.True(t, ok)
	assert.NotEmpty(t, src.RSS)
	_, ok = cat.Get("nope")
	assert.False(t, ok)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - id: example
    name: Example
    homepage: https://example.com
    blog_list_url: https://example.com/blog
    allow_scrape: true
    categories:
      - {id: blog, name: Blog, url: https://example.com/blog}
    options:
      container: div.card
`), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	src, ok := cat.Get("example")
	require.True(t, ok)
	assert.True(t, src.AllowScrape)
	assert.Equal(t, "https://example.com/blog", src.BlogListURL)
	assert.Len(t, src.Categories, 1)

	var o htmlOptions
	require.NoError(t, decodeOptions(src, &o))
	assert.Equal(t, "div.card", o.Container)
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	_, err := ParseCatalog([]byte("sources:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseCatalog([]byte("sources:\n  - name: missing id\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("sources:\n  - id: a\n    rss: ftp://example.com/feed\n"))
	assert.Error(t, err)
}

func TestCatalogAdd(t *testing.T) {
	cat := &Catalog{}
	cat.Add(sourceWithID("b"))
	cat.Add(sourceWithID("a"))
	cat.Add(sourceWithID("a"))
	require.Len(t, cat.All(), 2)
	assert.Equal(t, "a", cat.All()[0].ID)
}
