package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.Fetcher.MaxRetries = 0 }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Cache.Backend = "postgres" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true }},
		{"zero refresh", func(c *Config) { c.Engine.RefreshInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blogscope.yaml")
	data := []byte("engine:\n  refresh_interval: 2h\ncache:\n  backend: file\n  dir: /tmp/bs\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BLOGSCOPE_FETCHER_MAX_RETRIES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.RefreshInterval != 2*time.Hour {
		t.Errorf("refresh_interval = %v, want 2h", cfg.Engine.RefreshInterval)
	}
	if cfg.Cache.Backend != "file" || cfg.Cache.Dir != "/tmp/bs" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Fetcher.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5 from env", cfg.Fetcher.MaxRetries)
	}
	if cfg.Engine.DetailConcurrency != 5 {
		t.Errorf("detail_concurrency default lost: %d", cfg.Engine.DetailConcurrency)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
