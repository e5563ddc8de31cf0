package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for blogscope.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Cache   CacheConfig   `mapstructure:"cache"   yaml:"cache"`
	Sources SourcesConfig `mapstructure:"sources" yaml:"sources"`
	Notify  NotifyConfig  `mapstructure:"notify"  yaml:"notify"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig controls orchestration: refresh policy, timeouts and politeness.
type EngineConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"    yaml:"refresh_interval"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"        yaml:"call_timeout"`
	MaxPostsPerPage   int           `mapstructure:"max_posts_per_page"  yaml:"max_posts_per_page"`
	DetailConcurrency int           `mapstructure:"detail_concurrency"  yaml:"detail_concurrency"`
	PolitenessDelay   time.Duration `mapstructure:"politeness_delay"    yaml:"politeness_delay"`
	RespectRobotsTxt  bool          `mapstructure:"respect_robots_txt"  yaml:"respect_robots_txt"`
	DatasetTTL        time.Duration `mapstructure:"dataset_ttl"         yaml:"dataset_ttl"`
	WarmInterval      time.Duration `mapstructure:"warm_interval"       yaml:"warm_interval"`
	WarmWorkers       int           `mapstructure:"warm_workers"        yaml:"warm_workers"`
}

// FetcherConfig controls the fetch primitive.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay"   yaml:"max_retry_delay"`
	TLSFallback     bool          `mapstructure:"tls_fallback"      yaml:"tls_fallback"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	Browser         BrowserConfig `mapstructure:"browser"           yaml:"browser"`
}

// BrowserConfig controls headless rendering for sources that need it.
type BrowserConfig struct {
	Enabled  bool          `mapstructure:"enabled"   yaml:"enabled"`
	Headless bool          `mapstructure:"headless"  yaml:"headless"`
	PoolSize int           `mapstructure:"pool_size" yaml:"pool_size"`
	WaitIdle time.Duration `mapstructure:"wait_idle" yaml:"wait_idle"`
}

// CacheConfig selects and configures the post cache backend.
type CacheConfig struct {
	Backend     string `mapstructure:"backend"      yaml:"backend"` // memory, file, sqlite, postgres, mongo
	Dir         string `mapstructure:"dir"          yaml:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path"  yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	MongoURI    string `mapstructure:"mongo_uri"    yaml:"mongo_uri"`
	MongoDB     string `mapstructure:"mongo_db"     yaml:"mongo_db"`
}

// SourcesConfig points at the source catalog.
type SourcesConfig struct {
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path"`
}

// NotifyConfig controls new-post notifications.
type NotifyConfig struct {
	Enabled     bool   `mapstructure:"enabled"      yaml:"enabled"`
	RabbitMQURL string `mapstructure:"rabbitmq_url" yaml:"rabbitmq_url"`
	Exchange    string `mapstructure:"exchange"     yaml:"exchange"`
	Queue       string `mapstructure:"queue"        yaml:"queue"`
	RoutingKey  string `mapstructure:"routing_key"  yaml:"routing_key"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			RefreshInterval:   6 * time.Hour,
			CallTimeout:       90 * time.Second,
			MaxPostsPerPage:   20,
			DetailConcurrency: 5,
			PolitenessDelay:   300 * time.Millisecond,
			RespectRobotsTxt:  true,
			DatasetTTL:        30 * time.Minute,
			WarmInterval:      0,
			WarmWorkers:       4,
		},
		Fetcher: FetcherConfig{
			RequestTimeout:  20 * time.Second,
			MaxRetries:      3,
			RetryDelay:      time.Second,
			MaxRetryDelay:   10 * time.Second,
			TLSFallback:     true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			},
			Browser: BrowserConfig{
				Enabled:  false,
				Headless: true,
				PoolSize: 2,
				WaitIdle: 2 * time.Second,
			},
		},
		Cache: CacheConfig{
			Backend:    "memory",
			Dir:        "./data/cache",
			SQLitePath: "./data/blogscope.db",
			MongoDB:    "blogscope",
		},
		Notify: NotifyConfig{
			Exchange:   "blogscope",
			Queue:      "blogscope.new_posts",
			RoutingKey: "post.new",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
