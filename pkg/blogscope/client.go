// Package blogscope exposes the post engine as an embeddable library.
//
// Example usage:
//
//	client, err := blogscope.New(
//	    blogscope.WithCache("file", "./cache"),
//	    blogscope.WithRefreshInterval(time.Hour),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	res, err := client.Posts(ctx, "netflix", types.FetchOptions{Page: 1})
package blogscope

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/blogscope/internal/cache"
	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/engine"
	"github.com/IshaanNene/blogscope/internal/fetcher"
	"github.com/IshaanNene/blogscope/internal/logging"
	"github.com/IshaanNene/blogscope/internal/notify"
	"github.com/IshaanNene/blogscope/internal/observability"
	"github.com/IshaanNene/blogscope/internal/sources"
	"github.com/IshaanNene/blogscope/internal/types"
)

// Client owns a fully wired engine: fetcher, adapters, cache and notifier.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	service *engine.Service
	closers []func() error
}

// Option configures a Client built with New.
type Option func(*config.Config)

// WithCache selects the cache backend. dir is used by the file backend and
// as the sqlite path for the sqlite backend.
func WithCache(backend, dir string) Option {
	return func(c *config.Config) {
		c.Cache.Backend = backend
		switch backend {
		case "sqlite":
			c.Cache.SQLitePath = dir
		default:
			c.Cache.Dir = dir
		}
	}
}

// WithRefreshInterval sets how long a cached first page stays fresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *config.Config) { c.Engine.RefreshInterval = d }
}

// WithCallTimeout bounds a single upstream fetch.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config.Config) { c.Engine.CallTimeout = d }
}

// WithMaxPostsPerPage sets the default page size.
func WithMaxPostsPerPage(n int) Option {
	return func(c *config.Config) { c.Engine.MaxPostsPerPage = n }
}

// WithCatalog loads sources from a YAML catalog instead of the built-in one.
func WithCatalog(path string) Option {
	return func(c *config.Config) { c.Sources.CatalogPath = path }
}

// WithDelay sets the politeness delay between detail fetches.
func WithDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Engine.PolitenessDelay = d }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Fetcher.UserAgents = []string{ua} }
}

// WithRobotsRespect enables/disables robots.txt compliance.
func WithRobotsRespect(respect bool) Option {
	return func(c *config.Config) { c.Engine.RespectRobotsTxt = respect }
}

// WithBrowser enables headless rendering for sources that need it.
func WithBrowser(enabled bool) Option {
	return func(c *config.Config) { c.Fetcher.Browser.Enabled = enabled }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// New builds a Client from the default configuration and opts.
func New(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return Open(cfg, logging.New(cfg.Logging))
}

// Open wires a Client from an already loaded configuration.
func Open(cfg *config.Config, logger *slog.Logger) (_ *Client, err error) {
	c := &Client{cfg: cfg, logger: logger, metrics: observability.NewMetrics(logger)}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	httpFetcher, err := fetcher.NewHTTPFetcher(&cfg.Fetcher, c.metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	router := &fetcher.Router{HTTP: httpFetcher}
	c.closers = append(c.closers, router.Close)

	if cfg.Fetcher.Browser.Enabled {
		bf, err := fetcher.NewBrowserFetcher(&cfg.Fetcher, logger)
		if err != nil {
			logger.Warn("browser rendering unavailable, rendered sources use plain HTTP", "error", err)
		} else {
			router.Browser = bf
		}
	}

	catalog := sources.DefaultCatalog()
	if cfg.Sources.CatalogPath != "" {
		if catalog, err = sources.LoadCatalog(cfg.Sources.CatalogPath); err != nil {
			return nil, err
		}
	}

	env := sources.NewEnv(router, logger)
	env.Metrics = c.metrics
	env.Enricher = sources.NewEnricher(router, cfg.Engine.DetailConcurrency, cfg.Engine.PolitenessDelay, c.metrics, logger)
	env.Datasets = sources.NewDatasetCache(cfg.Engine.DatasetTTL)
	if router.Browser != nil {
		env.Renderer = router
	}
	if cfg.Engine.RespectRobotsTxt {
		env.Robots = fetcher.NewRobotsManager(true, httpFetcher, logger)
	}

	dispatcher, err := sources.NewDispatcher(sources.NewRegistry(env), catalog)
	if err != nil {
		return nil, fmt.Errorf("bind adapters: %w", err)
	}

	store, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, store.Close)

	opts := []engine.Option{engine.WithMetrics(c.metrics)}
	if cfg.Notify.Enabled {
		pub, err := notify.NewRabbitMQ(cfg.Notify, logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pub.Close)
		opts = append(opts, engine.WithNotifier(pub))
	}

	c.service = engine.New(cfg.Engine, catalog, dispatcher, store, logger, opts...)
	logger.Debug("client ready", "sources", len(catalog.Sources), "cache", store.Name())
	return c, nil
}

// Sources lists the configured sources.
func (c *Client) Sources() []types.Source {
	return c.service.Sources()
}

// Posts returns one normalized page of posts for sourceID.
func (c *Client) Posts(ctx context.Context, sourceID string, opts types.FetchOptions) (*engine.Result, error) {
	return c.service.FetchPosts(ctx, sourceID, opts)
}

// Service returns the underlying engine.
func (c *Client) Service() *engine.Service { return c.service }

// Metrics returns the client's metrics registry.
func (c *Client) Metrics() *observability.Metrics { return c.metrics }

// Close releases everything Open acquired, last first.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("close failed", "error", err)
		}
	}
	c.closers = nil
}
