// Package cache stores the accumulated post set and last fetch time per
// cache key.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/types"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/IshaanNene/blogscope/internal/cache Store

// Store is the interface for all cache backends. Keys are the filter keys
// produced by FetchOptions.FilterKey.
type Store interface {
	// Get returns the cached posts for key in stored order, or nil.
	Get(ctx context.Context, key string) ([]types.Post, error)

	// Set replaces the cached posts for key.
	Set(ctx context.Context, key string, posts []types.Post) error

	// Append adds the posts whose canonical URL is not yet cached and
	// returns how many were added.
	Append(ctx context.Context, key string, posts []types.Post) (int, error)

	// LastFetchTime returns when key was last fetched from upstream.
	LastFetchTime(ctx context.Context, key string) (*time.Time, error)

	// SetLastFetchTime records an upstream fetch for key.
	SetLastFetchTime(ctx context.Context, key string, t time.Time) error

	// ShouldRefresh reports whether key was never fetched or is older
	// than interval.
	ShouldRefresh(ctx context.Context, key string, interval time.Duration) (bool, error)

	// Close releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// Open creates the backend selected by cfg.
func Open(cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Dir, logger)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN, logger)
	case "mongo", "mongodb":
		return NewMongoStore(cfg.MongoURI, cfg.MongoDB, logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// shouldRefresh is the staleness rule every backend shares.
func shouldRefresh(last *time.Time, interval time.Duration, now time.Time) bool {
	return last == nil || now.Sub(*last) > interval
}

func storageErr(backend, op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &types.StorageError{Backend: backend, Op: op + " " + key, Err: err}
}
