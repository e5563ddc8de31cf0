package engine

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Warmer keeps page 1 of every source warm by periodically running
// FetchPosts across a bounded worker pool.
type Warmer struct {
	service  *Service
	interval time.Duration
	workers  int
	delay    time.Duration
	logger   *slog.Logger

	paused     atomic.Bool
	throttle   map[string]*hostThrottle
	throttleMu sync.Mutex

	Refreshed atomic.Int64
	Failed    atomic.Int64
	Rounds    atomic.Int64
}

// hostThrottle spaces warm fetches against the same host.
type hostThrottle struct {
	lastFetch time.Time
	mu        sync.Mutex
}

// NewWarmer creates a Warmer. A non-positive interval disables periodic
// rounds; RunOnce still works.
func NewWarmer(s *Service, interval time.Duration, workers int, politeness time.Duration) *Warmer {
	if workers < 1 {
		workers = 1
	}
	return &Warmer{
		service:  s,
		interval: interval,
		workers:  workers,
		delay:    politeness,
		logger:   s.logger.With("component", "warmer"),
		throttle: make(map[string]*hostThrottle),
	}
}

// Start runs a round immediately and then one per interval until ctx is
// done. It blocks.
func (w *Warmer) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("warmer disabled")
		return
	}
	w.logger.Info("starting warmer", "interval", w.interval, "workers", w.workers)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if !w.paused.Load() {
			w.RunOnce(ctx)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("warmer stopped")
			return
		case <-ticker.C:
		}
	}
}

// Pause skips rounds until Resume.
func (w *Warmer) Pause() { w.paused.Store(true) }

// Resume re-enables rounds.
func (w *Warmer) Resume() { w.paused.Store(false) }

// RunOnce fetches page 1 of every catalog source and waits for all workers.
// Sources with a fresh cache are answered by the cache.
func (w *Warmer) RunOnce(ctx context.Context) {
	w.Rounds.Add(1)
	jobs := make(chan types.Source)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go w.worker(ctx, i, jobs, &wg)
	}

	sources := w.service.Sources()
feed:
	for _, src := range sources {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- src:
		}
	}
	close(jobs)
	wg.Wait()

	w.logger.Info("warm round complete",
		"sources", len(sources),
		"refreshed", w.Refreshed.Load(),
		"failed", w.Failed.Load(),
	)
}

func (w *Warmer) worker(ctx context.Context, id int, jobs <-chan types.Source, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := w.logger.With("worker_id", id)

	for src := range jobs {
		if ctx.Err() != nil {
			continue
		}
		w.applyThrottle(ctx, hostOf(src))

		res, err := w.service.Fetch(ctx, src, types.FetchOptions{Page: 1})
		if err != nil {
			w.Failed.Add(1)
			logger.Warn("warm fetch failed", "source", src.ID, "error", err)
			continue
		}
		if !res.FromCache {
			w.Refreshed.Add(1)
		}
		logger.Debug("warmed", "source", src.ID, "from_cache", res.FromCache, "added", res.Added)
	}
}

// applyThrottle enforces the politeness delay between fetches to one host.
func (w *Warmer) applyThrottle(ctx context.Context, host string) {
	if w.delay <= 0 || host == "" {
		return
	}

	w.throttleMu.Lock()
	t, ok := w.throttle[host]
	if !ok {
		t = &hostThrottle{}
		w.throttle[host] = t
	}
	w.throttleMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if wait := w.delay - time.Since(t.lastFetch); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	t.lastFetch = time.Now()
}

func hostOf(src types.Source) string {
	for _, raw := range []string{src.BlogListURL, src.RSS, src.Homepage} {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return ""
}
