package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.RefreshInterval <= 0 {
		return fmt.Errorf("engine.refresh_interval must be > 0")
	}
	if cfg.Engine.CallTimeout < 0 {
		return fmt.Errorf("engine.call_timeout must be >= 0")
	}
	if cfg.Engine.MaxPostsPerPage < 1 {
		return fmt.Errorf("engine.max_posts_per_page must be >= 1, got %d", cfg.Engine.MaxPostsPerPage)
	}
	if cfg.Engine.DetailConcurrency < 1 || cfg.Engine.DetailConcurrency > 50 {
		return fmt.Errorf("engine.detail_concurrency must be 1-50, got %d", cfg.Engine.DetailConcurrency)
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return fmt.Errorf("engine.politeness_delay must be >= 0")
	}
	if cfg.Engine.WarmInterval > 0 && cfg.Engine.WarmWorkers < 1 {
		return fmt.Errorf("engine.warm_workers must be >= 1 when warming is enabled")
	}

	if cfg.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("fetcher.max_retries must be >= 1, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryDelay < 0 || cfg.Fetcher.MaxRetryDelay < cfg.Fetcher.RetryDelay {
		return fmt.Errorf("fetcher.retry_delay must be >= 0 and <= fetcher.max_retry_delay")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.Browser.Enabled && cfg.Fetcher.Browser.PoolSize < 1 {
		return fmt.Errorf("fetcher.browser.pool_size must be >= 1")
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "file":
		if cfg.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required for the file backend")
		}
	case "sqlite":
		if cfg.Cache.SQLitePath == "" {
			return fmt.Errorf("cache.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if cfg.Cache.PostgresDSN == "" {
			return fmt.Errorf("cache.postgres_dsn is required for the postgres backend")
		}
	case "mongo":
		if cfg.Cache.MongoURI == "" {
			return fmt.Errorf("cache.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported (valid: memory, file, sqlite, postgres, mongo)", cfg.Cache.Backend)
	}

	if cfg.Notify.Enabled {
		if err := ValidateURL(cfg.Notify.RabbitMQURL, "amqp", "amqps"); err != nil {
			return fmt.Errorf("notify.rabbitmq_url: %w", err)
		}
		if cfg.Notify.Exchange == "" || cfg.Notify.Queue == "" {
			return fmt.Errorf("notify.exchange and notify.queue are required when notify is enabled")
		}
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks that rawURL parses, has a host and uses one of the schemes.
// With no schemes given, http and https are accepted.
func ValidateURL(rawURL string, schemes ...string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	ok := false
	for _, s := range schemes {
		if u.Scheme == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("URL scheme must be one of %v, got %q", schemes, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
