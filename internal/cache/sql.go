package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/IshaanNene/blogscope/internal/types"
)

// schema is valid for both SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cached_posts (
		cache_key TEXT NOT NULL,
		url       TEXT NOT NULL,
		position  BIGINT NOT NULL,
		data      TEXT NOT NULL,
		PRIMARY KEY (cache_key, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cached_posts_order ON cached_posts (cache_key, position)`,
	`CREATE TABLE IF NOT EXISTS fetch_state (
		cache_key  TEXT PRIMARY KEY,
		last_fetch BIGINT NOT NULL
	)`,
}

// SQLStore keeps the cache in a relational database through sqlx, with
// queries built by squirrel for the driver's placeholder style.
type SQLStore struct {
	db      *sqlx.DB
	sb      sq.StatementBuilderType
	backend string
	now     func() time.Time
	logger  *slog.Logger
}

// NewSQLiteStore opens or creates a SQLite cache database at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One writer avoids SQLITE_BUSY under concurrent merges.
	db.SetMaxOpenConns(1)
	return newSQLStore(db, sq.Question, "sqlite", logger)
}

// NewPostgresStore connects to PostgreSQL at dsn.
func NewPostgresStore(dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return newSQLStore(db, sq.Dollar, "postgres", logger)
}

func newSQLStore(db *sqlx.DB, ph sq.PlaceholderFormat, backend string, logger *slog.Logger) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		sb:      sq.StatementBuilder.PlaceholderFormat(ph),
		backend: backend,
		now:     time.Now,
		logger:  logger.With("component", backend+"_cache"),
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return s, nil
}

func (s *SQLStore) Name() string { return s.backend }

func (s *SQLStore) Get(ctx context.Context, key string) ([]types.Post, error) {
	q, args, err := s.sb.Select("data").From("cached_posts").
		Where(sq.Eq{"cache_key": key}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, storageErr(s.backend, "get", key, err)
	}
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storageErr(s.backend, "get", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	posts := make([]types.Post, 0, len(rows))
	for _, data := range rows {
		var p types.Post
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, storageErr(s.backend, "decode", key, err)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, posts []types.Post) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(s.backend, "set", key, err)
	}
	defer tx.Rollback()

	q, args, err := s.sb.Delete("cached_posts").Where(sq.Eq{"cache_key": key}).ToSql()
	if err != nil {
		return storageErr(s.backend, "set", key, err)
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return storageErr(s.backend, "set", key, err)
	}
	if _, err := s.insert(ctx, tx, key, 0, posts); err != nil {
		return err
	}
	return storageErr(s.backend, "set", key, tx.Commit())
}

func (s *SQLStore) Append(ctx context.Context, key string, posts []types.Post) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storageErr(s.backend, "append", key, err)
	}
	defer tx.Rollback()

	q, args, err := s.sb.Select("COALESCE(MAX(position), -1)").From("cached_posts").
		Where(sq.Eq{"cache_key": key}).ToSql()
	if err != nil {
		return 0, storageErr(s.backend, "append", key, err)
	}
	var last int64
	if err := tx.GetContext(ctx, &last, q, args...); err != nil {
		return 0, storageErr(s.backend, "append", key, err)
	}
	added, err := s.insert(ctx, tx, key, last+1, posts)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr(s.backend, "append", key, err)
	}
	return added, nil
}

// insert adds posts from position start on, skipping URLs already stored,
// and returns the number inserted.
func (s *SQLStore) insert(ctx context.Context, tx *sqlx.Tx, key string, start int64, posts []types.Post) (int, error) {
	added := 0
	pos := start
	for _, p := range types.DedupPosts(posts) {
		data, err := json.Marshal(p)
		if err != nil {
			return added, storageErr(s.backend, "encode", key, err)
		}
		q, args, err := s.sb.Insert("cached_posts").
			Columns("cache_key", "url", "position", "data").
			Values(key, types.CanonicalURL(p.URL), pos, string(data)).
			Suffix("ON CONFLICT (cache_key, url) DO NOTHING").
			ToSql()
		if err != nil {
			return added, storageErr(s.backend, "insert", key, err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return added, storageErr(s.backend, "insert", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			pos++
		}
	}
	return added, nil
}

func (s *SQLStore) LastFetchTime(ctx context.Context, key string) (*time.Time, error) {
	q, args, err := s.sb.Select("last_fetch").From("fetch_state").Where(sq.Eq{"cache_key": key}).ToSql()
	if err != nil {
		return nil, storageErr(s.backend, "last_fetch", key, err)
	}
	var nanos int64
	err = s.db.GetContext(ctx, &nanos, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(s.backend, "last_fetch", key, err)
	}
	t := time.Unix(0, nanos).UTC()
	return &t, nil
}

func (s *SQLStore) SetLastFetchTime(ctx context.Context, key string, t time.Time) error {
	q, args, err := s.sb.Insert("fetch_state").
		Columns("cache_key", "last_fetch").
		Values(key, t.UnixNano()).
		Suffix("ON CONFLICT (cache_key) DO UPDATE SET last_fetch = excluded.last_fetch").
		ToSql()
	if err != nil {
		return storageErr(s.backend, "set_last_fetch", key, err)
	}
	_, err = s.db.ExecContext(ctx, q, args...)
	return storageErr(s.backend, "set_last_fetch", key, err)
}

func (s *SQLStore) ShouldRefresh(ctx context.Context, key string, interval time.Duration) (bool, error) {
	last, err := s.LastFetchTime(ctx, key)
	if err != nil {
		return false, err
	}
	return shouldRefresh(last, interval, s.now()), nil
}

func (s *SQLStore) Close() error {
	s.logger.Debug("closing cache database")
	return s.db.Close()
}
