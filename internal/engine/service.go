// Package engine orchestrates source fetches: it resolves the adapter,
// normalizes its output, merges it into the per-key cache and decides when
// the cache can answer instead of upstream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/blogscope/internal/cache"
	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/observability"
	"github.com/IshaanNene/blogscope/internal/pagination"
	"github.com/IshaanNene/blogscope/internal/pipeline"
	"github.com/IshaanNene/blogscope/internal/types"
)

// StrategyCache marks results answered from the cache.
const StrategyCache = "cache"

// ErrNoSummarizer is returned by Summarize when no summarizer is configured.
var ErrNoSummarizer = errors.New("no summarizer configured")

// Adapters runs the fetch strategy of a source. *sources.Dispatcher
// implements it.
type Adapters interface {
	Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*types.FetchResult, error)
}

// Catalog looks up configured sources. *sources.Catalog implements it.
type Catalog interface {
	Get(id string) (types.Source, bool)
	All() []types.Source
}

// Notifier receives the posts a fetch added to the cache.
type Notifier interface {
	NewPosts(ctx context.Context, sourceID string, posts []types.Post) error
}

// Summarizer turns a post into a short summary. The engine never calls it
// on its own.
type Summarizer interface {
	Summarize(ctx context.Context, in types.SummaryInput) (string, error)
}

// Result is the answer to one FetchPosts call.
type Result struct {
	types.FetchResult
	// FromCache is set when upstream was not contacted.
	FromCache bool `json:"fromCache"`
	// Stale is set when a failed fetch was answered from an expired cache.
	Stale bool `json:"stale"`
	// Added counts posts this call added to the cache.
	Added int `json:"added"`
	// Cached is the size of the cached set after the call.
	Cached int `json:"cached"`
}

// listingState is what the service remembers about a key between calls.
type listingState struct {
	hasMore    bool
	signatures map[int]string
}

// Service is the fetch orchestrator.
type Service struct {
	cfg        config.EngineConfig
	catalog    Catalog
	adapters   Adapters
	store      cache.Store
	pipeline   *pipeline.Pipeline
	memo       *pagination.Memo
	notifier   Notifier
	summarizer Summarizer
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time

	locks    keyLocks
	mu       sync.Mutex
	listings map[string]*listingState
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes newly cached posts to n.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithSummarizer sets the summarizer used by Summarize.
func WithSummarizer(sum Summarizer) Option { return func(s *Service) { s.summarizer = sum } }

// WithMetrics records counters into m.
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithPipeline replaces the default normalization pipeline.
func WithPipeline(p *pipeline.Pipeline) Option { return func(s *Service) { s.pipeline = p } }

// New creates a Service.
func New(cfg config.EngineConfig, catalog Catalog, adapters Adapters, store cache.Store, logger *slog.Logger, opts ...Option) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}
	if cfg.MaxPostsPerPage <= 0 {
		cfg.MaxPostsPerPage = 20
	}
	s := &Service{
		cfg:      cfg,
		catalog:  catalog,
		adapters: adapters,
		store:    store,
		memo:     pagination.NewMemo(),
		logger:   logger.With("component", "engine"),
		now:      time.Now,
		locks:    keyLocks{locks: make(map[string]*sync.Mutex)},
		listings: make(map[string]*listingState),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(logger)
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.Default(logger, s.now)
	}
	return s
}

// Sources returns the configured sources.
func (s *Service) Sources() []types.Source {
	return s.catalog.All()
}

// Source returns one configured source.
func (s *Service) Source(id string) (types.Source, bool) {
	return s.catalog.Get(id)
}

// FetchPosts returns one page of posts for the source with the given ID.
func (s *Service) FetchPosts(ctx context.Context, sourceID string, opts types.FetchOptions) (*Result, error) {
	src, ok := s.catalog.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, sourceID)
	}
	return s.Fetch(ctx, src, opts)
}

// Fetch returns one page of posts for src.
//
// Page 1 is answered from the cache while it is fresh. Any other request
// goes upstream, and what comes back is merged into the cached set without
// dropping anything already there.
func (s *Service) Fetch(ctx context.Context, src types.Source, opts types.FetchOptions) (*Result, error) {
	opts = opts.Normalize(s.cfg.MaxPostsPerPage)
	key := opts.FilterKey(src.ID)
	log := s.logger.With("source", src.ID, "key", key, "page", opts.Page)

	unlock := s.locks.lock(key)
	defer unlock()

	if opts.Page == 1 && !opts.ForceRefresh {
		refresh, err := s.store.ShouldRefresh(ctx, key, s.cfg.RefreshInterval)
		if err != nil {
			log.Warn("cache freshness check failed", "error", err)
			refresh = true
		}
		if !refresh {
			res, err := s.fromCache(ctx, key, opts, false)
			if err == nil {
				s.metrics.CacheHits.Add(1)
				log.Debug("served from cache", "posts", len(res.Posts), "cached", res.Cached)
				return res, nil
			}
			log.Warn("reading fresh cache failed", "error", err)
		}
	}

	s.metrics.CacheMisses.Add(1)
	return s.refresh(ctx, log, src, key, opts)
}

func (s *Service) refresh(ctx context.Context, log *slog.Logger, src types.Source, key string, opts types.FetchOptions) (*Result, error) {
	if st, ok := s.memo.Get(key); ok && opts.DetectedPattern == "" {
		opts.DetectedPattern = st.CurrentPatternURL
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
	}
	defer cancel()

	start := s.now()
	res, err := s.adapters.Fetch(callCtx, src, opts)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		s.metrics.Timeouts.Add(1)
		log.Warn("adapter call timed out, discarding partial result", "timeout", s.cfg.CallTimeout)
		return nil, fmt.Errorf("fetching %s page %d: %w", src.ID, opts.Page, types.ErrTimeout)
	}
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) {
			if stale, serr := s.fromCache(ctx, key, opts, true); serr == nil && len(stale.Posts) > 0 {
				s.metrics.StaleServes.Add(1)
				log.Warn("serving stale cache after fetch failure", "error", err, "cached", stale.Cached)
				return stale, nil
			}
		}
		log.Error("fetch failed", "error", err)
		return nil, err
	}
	if res == nil {
		res = &types.FetchResult{}
	}

	posts, dropped := s.pipeline.ProcessAll(src.ID, res.Posts)
	if dropped > 0 {
		s.metrics.PostsDropped.Add(int64(dropped))
	}

	hasMore := res.HasMore
	if opts.Page > 1 && s.repeatsPreviousPage(key, opts.Page, posts) {
		log.Info("listing repeated the previous page, treating as end")
		posts, hasMore = nil, false
	}
	if opts.Page > 1 && len(posts) == 0 {
		hasMore = false
	}

	state := s.memo.Record(key, res.DetectedPattern, opts.Page)
	added, total := s.merge(ctx, log, key, opts, posts)

	if opts.Page == 1 {
		if err := s.store.SetLastFetchTime(ctx, key, s.now()); err != nil {
			log.Warn("recording fetch time failed", "error", err)
		}
		s.resetListing(key, hasMore, posts)
	}

	if len(added) > 0 && s.notifier != nil {
		if err := s.notifier.NewPosts(ctx, src.ID, added); err != nil {
			log.Warn("notifying new posts failed", "error", err, "count", len(added))
		}
	}

	log.Info("fetched",
		"strategy", res.Strategy,
		"posts", len(posts),
		"added", len(added),
		"cached", total,
		"has_more", hasMore,
		"duration", s.now().Sub(start),
	)

	return &Result{
		FetchResult: types.FetchResult{
			Posts:           posts,
			HasMore:         hasMore,
			NextPageURL:     res.NextPageURL,
			DetectedPattern: state.CurrentPatternURL,
			Categories:      res.Categories,
			Strategy:        res.Strategy,
		},
		Added:  len(added),
		Cached: total,
	}, nil
}

// merge folds posts into the cached set for key and returns the posts that
// were not cached before along with the new cache size.
func (s *Service) merge(ctx context.Context, log *slog.Logger, key string, opts types.FetchOptions, posts []types.Post) ([]types.Post, int) {
	existing, err := s.store.Get(ctx, key)
	if err != nil {
		log.Warn("reading cache before merge failed", "error", err)
		return nil, 0
	}
	overwrite := opts.ForceOverwrite && opts.Page == 1

	if len(posts) == 0 {
		if overwrite && len(existing) > 0 {
			if err := s.store.Set(ctx, key, nil); err != nil {
				log.Warn("clearing cache failed", "error", err)
				return nil, len(existing)
			}
			log.Info("cache cleared by forced overwrite", "previous", len(existing))
			return nil, 0
		}
		if len(existing) > 0 {
			log.Info("refetch returned no posts, keeping cache", "cached", len(existing))
		}
		return nil, len(existing)
	}

	_, added := types.MergePosts(existing, posts)
	total := len(existing) + len(added)
	if overwrite {
		err = s.store.Set(ctx, key, posts)
		total = len(posts)
	} else {
		var n int
		n, err = s.store.Append(ctx, key, posts)
		if err == nil && n != len(added) {
			log.Debug("store added a different count than expected", "expected", len(added), "added", n)
			total = len(existing) + n
		}
	}
	if err != nil {
		log.Warn("cache write failed", "error", err)
		return nil, len(existing)
	}

	s.metrics.Merges.Add(1)
	s.metrics.PostsNew.Add(int64(len(added)))
	return added, total
}

// fromCache slices the requested page out of the cached set.
func (s *Service) fromCache(ctx context.Context, key string, opts types.FetchOptions, stale bool) (*Result, error) {
	cached, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	page, overflow := types.Slice(cached, opts.Page, opts.MaxPosts)

	hasMore := overflow
	if opts.Page == 1 {
		s.mu.Lock()
		if st, ok := s.listings[key]; ok && st.hasMore {
			hasMore = true
		}
		s.mu.Unlock()
	}

	st, _ := s.memo.Get(key)
	return &Result{
		FetchResult: types.FetchResult{
			Posts:           page,
			HasMore:         hasMore,
			DetectedPattern: st.CurrentPatternURL,
			Strategy:        StrategyCache,
		},
		FromCache: true,
		Stale:     stale,
		Cached:    len(cached),
	}, nil
}

// resetListing starts a new traversal of key from a freshly fetched page 1.
func (s *Service) resetListing(key string, hasMore bool, posts []types.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[key] = &listingState{
		hasMore:    hasMore,
		signatures: map[int]string{1: pageSignature(posts)},
	}
}

// repeatsPreviousPage records the signature of page and reports whether it
// equals the one recorded for page-1. Listings that ignore the page
// parameter serve the same posts forever.
func (s *Service) repeatsPreviousPage(key string, page int, posts []types.Post) bool {
	sig := pageSignature(posts)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.listings[key]
	if !ok {
		st = &listingState{signatures: make(map[int]string)}
		s.listings[key] = st
	}
	st.signatures[page] = sig
	prev, ok := st.signatures[page-1]
	return ok && sig != "" && prev == sig
}

func pageSignature(posts []types.Post) string {
	if len(posts) == 0 {
		return ""
	}
	return fmt.Sprintf("%d|%s|%s", len(posts), types.CanonicalURL(posts[0].URL), types.CanonicalURL(posts[len(posts)-1].URL))
}

// Summarize asks the configured summarizer for a summary of post.
func (s *Service) Summarize(ctx context.Context, post types.Post) (string, error) {
	if s.summarizer == nil {
		return "", ErrNoSummarizer
	}
	return s.summarizer.Summarize(ctx, post.SummaryInput())
}

// Metrics returns the counters the service records into.
func (s *Service) Metrics() *observability.Metrics {
	return s.metrics
}

// keyLocks hands out one mutex per cache key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
