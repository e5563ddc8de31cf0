package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/IshaanNene/blogscope/internal/types"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// fileRecord is the on-disk layout of one cache key.
type fileRecord struct {
	Key       string       `json:"key"`
	LastFetch *time.Time   `json:"lastFetch,omitempty"`
	Posts     []types.Post `json:"posts"`
}

// FileStore writes one JSON document per cache key under a directory.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now, logger: logger.With("component", "file_cache")}, nil
}

func (s *FileStore) Name() string { return "file" }

// path maps a key to a readable file name; a hash suffix keeps keys that
// sanitize to the same name apart.
func (s *FileStore) path(key string) string {
	sum := sha1.Sum([]byte(key))
	name := unsafeKeyChars.ReplaceAllString(key, "_")
	if len(name) > 80 {
		name = name[:80]
	}
	return filepath.Join(s.dir, name+"-"+hex.EncodeToString(sum[:4])+".json")
}

func (s *FileStore) read(key string) (*fileRecord, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return &fileRecord{Key: key}, nil
	}
	if err != nil {
		return nil, storageErr(s.Name(), "read", key, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, storageErr(s.Name(), "decode", key, err)
	}
	return &rec, nil
}

// write replaces the record atomically via a temp file and rename.
func (s *FileStore) write(rec *fileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return storageErr(s.Name(), "encode", rec.Key, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return storageErr(s.Name(), "write", rec.Key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return storageErr(s.Name(), "write", rec.Key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return storageErr(s.Name(), "write", rec.Key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(rec.Key)); err != nil {
		return storageErr(s.Name(), "write", rec.Key, err)
	}
	s.logger.Debug("cache written", "key", rec.Key, "posts", len(rec.Posts))
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(key)
	if err != nil {
		return nil, err
	}
	return rec.Posts, nil
}

func (s *FileStore) Set(_ context.Context, key string, posts []types.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(key)
	if err != nil {
		return err
	}
	rec.Posts = types.DedupPosts(posts)
	return s.write(rec)
}

func (s *FileStore) Append(_ context.Context, key string, posts []types.Post) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(key)
	if err != nil {
		return 0, err
	}
	merged, added := types.MergePosts(rec.Posts, posts)
	if len(added) == 0 {
		return 0, nil
	}
	rec.Posts = merged
	return len(added), s.write(rec)
}

func (s *FileStore) LastFetchTime(_ context.Context, key string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(key)
	if err != nil {
		return nil, err
	}
	return rec.LastFetch, nil
}

func (s *FileStore) SetLastFetchTime(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(key)
	if err != nil {
		return err
	}
	t = t.UTC()
	rec.LastFetch = &t
	return s.write(rec)
}

func (s *FileStore) ShouldRefresh(ctx context.Context, key string, interval time.Duration) (bool, error) {
	last, err := s.LastFetchTime(ctx, key)
	if err != nil {
		return false, err
	}
	return shouldRefresh(last, interval, s.now()), nil
}

func (s *FileStore) Close() error { return nil }
