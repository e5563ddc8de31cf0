package cache

import (
	"context"
	"sync"
	"time"

	"github.com/IshaanNene/blogscope/internal/types"
)

type entry struct {
	posts     []types.Post
	lastFetch *time.Time
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: time.Now}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Get(_ context.Context, key string) ([]types.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || len(e.posts) == 0 {
		return nil, nil
	}
	out := make([]types.Post, len(e.posts))
	copy(out, e.posts)
	return out, nil
}

func (s *MemoryStore) entry(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) Set(_ context.Context, key string, posts []types.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	e.posts = types.DedupPosts(posts)
	return nil
}

func (s *MemoryStore) Append(_ context.Context, key string, posts []types.Post) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	merged, added := types.MergePosts(e.posts, posts)
	e.posts = merged
	return len(added), nil
}

func (s *MemoryStore) LastFetchTime(_ context.Context, key string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok && e.lastFetch != nil {
		t := *e.lastFetch
		return &t, nil
	}
	return nil, nil
}

func (s *MemoryStore) SetLastFetchTime(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(key).lastFetch = &t
	return nil
}

func (s *MemoryStore) ShouldRefresh(ctx context.Context, key string, interval time.Duration) (bool, error) {
	last, _ := s.LastFetchTime(ctx, key)
	return shouldRefresh(last, interval, s.now()), nil
}

func (s *MemoryStore) Close() error { return nil }
