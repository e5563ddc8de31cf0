package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/blogscope/internal/cache"
	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/sources"
	"github.com/IshaanNene/blogscope/internal/types"
)

func TestConcurrentMergesOnOneKeyLoseNothing(t *testing.T) {
	store := cache.NewMemoryStore()
	adapters := sources.AdapterFunc(func(_ context.Context, _ types.Source, opts types.FetchOptions) (*types.FetchResult, error) {
		time.Sleep(5 * time.Millisecond)
		return &types.FetchResult{Posts: makePosts(fmt.Sprint(opts.Page), 1, 4), HasMore: true}, nil
	})
	svc := New(config.EngineConfig{}, testCatalog(netflix), adapters, store, testLogger)

	var wg sync.WaitGroup
	for page := 2; page <= 11; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			_, err := svc.FetchPosts(context.Background(), "netflix", types.FetchOptions{Page: page})
			assert.NoError(t, err)
		}(page)
	}
	wg.Wait()

	cached, err := store.Get(context.Background(), "netflix")
	require.NoError(t, err)
	assert.Len(t, cached, 40)
}

func TestFreshnessLifecycle(t *testing.T) {
	var calls atomic.Int32
	adapters := sources.AdapterFunc(func(context.Context, types.Source, types.FetchOptions) (*types.FetchResult, error) {
		n := int(calls.Add(1))
		return &types.FetchResult{Posts: makePosts(fmt.Sprint(n), 1, 2)}, nil
	})
	store := cache.NewMemoryStore()
	svc := New(config.EngineConfig{RefreshInterval: time.Hour}, testCatalog(netflix), adapters, store, testLogger)

	ctx := context.Background()
	res, err := svc.FetchPosts(ctx, "netflix", types.FetchOptions{Page: 1})
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res, err = svc.FetchPosts(ctx, "netflix", types.FetchOptions{Page: 1})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 1, calls.Load())

	// Stale once the recorded fetch is older than the interval.
	require.NoError(t, store.SetLastFetchTime(ctx, "netflix", time.Now().Add(-2*time.Hour)))
	res, err = svc.FetchPosts(ctx, "netflix", types.FetchOptions{Page: 1})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 4, res.Cached)
}

func TestWarmerRunOnce(t *testing.T) {
	var calls atomic.Int32
	adapters := sources.AdapterFunc(func(_ context.Context, src types.Source, _ types.FetchOptions) (*types.FetchResult, error) {
		calls.Add(1)
		if src.ID == "broken" {
			return nil, &types.FetchError{SourceID: src.ID, URL: src.RSS, Err: types.ErrMaxRetries}
		}
		return &types.FetchResult{Posts: makePosts(src.ID, 1, 3)}, nil
	})
	catalog := testCatalog(
		netflix,
		types.Source{ID: "github", Homepage: "https://github.blog", RSS: "https://github.blog/feed/"},
		types.Source{ID: "broken", Homepage: "https://broken.test", RSS: "https://broken.test/feed"},
	)
	svc := New(config.EngineConfig{}, catalog, adapters, cache.NewMemoryStore(), testLogger)
	w := NewWarmer(svc, time.Hour, 2, 0)

	w.RunOnce(context.Background())
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 2, w.Refreshed.Load())
	assert.EqualValues(t, 1, w.Failed.Load())

	// Fresh sources come from the cache; only the broken one goes upstream.
	w.RunOnce(context.Background())
	assert.EqualValues(t, 4, calls.Load())
	assert.EqualValues(t, 2, w.Refreshed.Load())
}

func TestWarmerStartStopsWithContext(t *testing.T) {
	adapters := sources.AdapterFunc(func(context.Context, types.Source, types.FetchOptions) (*types.FetchResult, error) {
		return &types.FetchResult{}, nil
	})
	svc := New(config.EngineConfig{}, testCatalog(netflix), adapters, cache.NewMemoryStore(), testLogger)
	w := NewWarmer(svc, 10*time.Millisecond, 1, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("warmer did not stop")
	}
	assert.GreaterOrEqual(t, w.Rounds.Load(), int64(1))
}

func TestWarmerPause(t *testing.T) {
	var calls atomic.Int32
	adapters := sources.AdapterFunc(func(context.Context, types.Source, types.FetchOptions) (*types.FetchResult, error) {
		calls.Add(1)
		return &types.FetchResult{}, nil
	})
	svc := New(config.EngineConfig{}, testCatalog(netflix), adapters, cache.NewMemoryStore(), testLogger)
	w := NewWarmer(svc, 5*time.Millisecond, 1, 0)
	w.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	assert.Zero(t, calls.Load())
}
