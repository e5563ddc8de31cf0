package sources

import (
	"context"
	"sync"
	"time"

	"github.com/IshaanNene/blogscope/internal/types"
)

// DatasetCache holds whole upstream datasets for the full-fetch-and-slice
// adapters, so paging through them costs one upstream fetch per TTL.
type DatasetCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*datasetEntry
}

type datasetEntry struct {
	mu      sync.Mutex
	posts   []types.Post
	loaded  time.Time
	present bool
}

// NewDatasetCache creates a cache whose entries expire after ttl.
func NewDatasetCache(ttl time.Duration) *DatasetCache {
	return &DatasetCache{ttl: ttl, now: time.Now, entries: make(map[string]*datasetEntry)}
}

// Load returns the dataset for key, calling load when it is missing or
// expired. Concurrent callers for one key share a single load.
func (c *DatasetCache) Load(ctx context.Context, key string, load func(context.Context) ([]types.Post, error)) ([]types.Post, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &datasetEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.present && c.now().Sub(e.loaded) < c.ttl {
		return e.posts, nil
	}
	posts, err := load(ctx)
	if err != nil {
		return nil, err
	}
	e.posts, e.loaded, e.present = posts, c.now(), true
	return posts, nil
}

// Invalidate drops the dataset for key.
func (c *DatasetCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// slicePage is the shared tail of every full-fetch adapter.
func slicePage(all []types.Post, opts types.FetchOptions, strategy string) *types.FetchResult {
	page, more := types.Slice(all, opts.Page, opts.MaxPosts)
	res := &types.FetchResult{Posts: page, HasMore: more, Strategy: strategy}
	return res
}
