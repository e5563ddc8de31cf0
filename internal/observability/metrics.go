package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics tracks operational counters for fetching, extraction and caching.
type Metrics struct {
	FetchesTotal   atomic.Int64
	FetchAttempts  atomic.Int64
	FetchRetries   atomic.Int64
	FetchFailures  atomic.Int64
	TLSFallbacks   atomic.Int64
	BytesFetched   atomic.Int64
	DetailFetches  atomic.Int64
	DetailFailures atomic.Int64

	PostsExtracted atomic.Int64
	PostsDropped   atomic.Int64
	PostsNew       atomic.Int64

	CacheHits   atomic.Int64
	CacheMisses atomic.Int64
	StaleServes atomic.Int64
	Merges      atomic.Int64
	Timeouts    atomic.Int64

	mu         sync.Mutex
	bySource   map[string]int64
	byStrategy map[string]int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		bySource:   make(map[string]int64),
		byStrategy: make(map[string]int64),
		logger:     logger.With("component", "metrics"),
	}
}

// ObserveExtraction records posts extracted for a source by a strategy.
func (m *Metrics) ObserveExtraction(sourceID, strategy string, n int) {
	if m == nil {
		return
	}
	m.PostsExtracted.Add(int64(n))
	m.mu.Lock()
	m.bySource[sourceID] += int64(n)
	if strategy != "" {
		m.byStrategy[strategy]++
	}
	m.mu.Unlock()
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"blogscope_fetches_total", "Upstream fetches issued", m.FetchesTotal.Load()},
		{"blogscope_fetch_attempts_total", "Upstream fetch attempts including retries", m.FetchAttempts.Load()},
		{"blogscope_fetch_retries_total", "Upstream fetch retries", m.FetchRetries.Load()},
		{"blogscope_fetch_failures_total", "Fetches that failed after all attempts", m.FetchFailures.Load()},
		{"blogscope_tls_fallbacks_total", "Reduced-header retries after TLS failures", m.TLSFallbacks.Load()},
		{"blogscope_bytes_fetched_total", "Decoded bytes fetched", m.BytesFetched.Load()},
		{"blogscope_detail_fetches_total", "Post detail pages fetched", m.DetailFetches.Load()},
		{"blogscope_detail_failures_total", "Post detail pages that failed", m.DetailFailures.Load()},
		{"blogscope_posts_extracted_total", "Posts extracted by adapters", m.PostsExtracted.Load()},
		{"blogscope_posts_dropped_total", "Posts dropped by the pipeline", m.PostsDropped.Load()},
		{"blogscope_posts_new_total", "Posts added to the cache", m.PostsNew.Load()},
		{"blogscope_cache_hits_total", "Requests served from a fresh cache", m.CacheHits.Load()},
		{"blogscope_cache_misses_total", "Requests that needed an upstream fetch", m.CacheMisses.Load()},
		{"blogscope_stale_serves_total", "Requests served from stale cache after a fetch failure", m.StaleServes.Load()},
		{"blogscope_merges_total", "Cache merges", m.Merges.Load()},
		{"blogscope_timeouts_total", "Adapter calls that timed out", m.Timeouts.Load()},
	}

	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	writeLabeled(w, "blogscope_source_posts_total", "Posts extracted per source", "source", m.bySource)
	writeLabeled(w, "blogscope_strategy_hits_total", "Extractions won per strategy", "strategy", m.byStrategy)
}

func writeLabeled(w http.ResponseWriter, name, help, label string, values map[string]int64) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

// Snapshot returns the scalar counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"fetches_total":   m.FetchesTotal.Load(),
		"fetch_attempts":  m.FetchAttempts.Load(),
		"fetch_retries":   m.FetchRetries.Load(),
		"fetch_failures":  m.FetchFailures.Load(),
		"posts_extracted": m.PostsExtracted.Load(),
		"posts_new":       m.PostsNew.Load(),
		"cache_hits":      m.CacheHits.Load(),
		"cache_misses":    m.CacheMisses.Load(),
		"stale_serves":    m.StaleServes.Load(),
		"timeouts":        m.Timeouts.Load(),
	}
}
