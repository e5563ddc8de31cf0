package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment on top of defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("BLOGSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("blogscope")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".blogscope"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every default so env overrides work for unset keys.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.refresh_interval", cfg.Engine.RefreshInterval)
	v.SetDefault("engine.call_timeout", cfg.Engine.CallTimeout)
	v.SetDefault("engine.max_posts_per_page", cfg.Engine.MaxPostsPerPage)
	v.SetDefault("engine.detail_concurrency", cfg.Engine.DetailConcurrency)
	v.SetDefault("engine.politeness_delay", cfg.Engine.PolitenessDelay)
	v.SetDefault("engine.respect_robots_txt", cfg.Engine.RespectRobotsTxt)
	v.SetDefault("engine.dataset_ttl", cfg.Engine.DatasetTTL)
	v.SetDefault("engine.warm_interval", cfg.Engine.WarmInterval)
	v.SetDefault("engine.warm_workers", cfg.Engine.WarmWorkers)

	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.max_retry_delay", cfg.Fetcher.MaxRetryDelay)
	v.SetDefault("fetcher.tls_fallback", cfg.Fetcher.TLSFallback)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.browser.enabled", cfg.Fetcher.Browser.Enabled)
	v.SetDefault("fetcher.browser.headless", cfg.Fetcher.Browser.Headless)
	v.SetDefault("fetcher.browser.pool_size", cfg.Fetcher.Browser.PoolSize)
	v.SetDefault("fetcher.browser.wait_idle", cfg.Fetcher.Browser.WaitIdle)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.sqlite_path", cfg.Cache.SQLitePath)
	v.SetDefault("cache.postgres_dsn", cfg.Cache.PostgresDSN)
	v.SetDefault("cache.mongo_uri", cfg.Cache.MongoURI)
	v.SetDefault("cache.mongo_db", cfg.Cache.MongoDB)

	v.SetDefault("sources.catalog_path", cfg.Sources.CatalogPath)

	v.SetDefault("notify.enabled", cfg.Notify.Enabled)
	v.SetDefault("notify.rabbitmq_url", cfg.Notify.RabbitMQURL)
	v.SetDefault("notify.exchange", cfg.Notify.Exchange)
	v.SetDefault("notify.queue", cfg.Notify.Queue)
	v.SetDefault("notify.routing_key", cfg.Notify.RoutingKey)

	v.SetDefault("api.port", cfg.API.Port)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
