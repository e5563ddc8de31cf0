package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blogscope",
		Short: "blogscope — engineering blog aggregator",
		Long: `blogscope fetches posts from engineering and research blogs, normalizes them
into one post record, walks each blog's own pagination and caches what it finds.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine.
			_ = godotenv.Load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logging.New(cfg.Logging), nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blogscope %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Engine:\n")
			fmt.Fprintf(out, "  Refresh Interval:   %s\n", cfg.Engine.RefreshInterval)
			fmt.Fprintf(out, "  Call Timeout:       %s\n", cfg.Engine.CallTimeout)
			fmt.Fprintf(out, "  Max Posts Per Page: %d\n", cfg.Engine.MaxPostsPerPage)
			fmt.Fprintf(out, "  Detail Concurrency: %d\n", cfg.Engine.DetailConcurrency)
			fmt.Fprintf(out, "  Politeness Delay:   %s\n", cfg.Engine.PolitenessDelay)
			fmt.Fprintf(out, "  Respect robots.txt: %v\n", cfg.Engine.RespectRobotsTxt)
			fmt.Fprintf(out, "  Warm Interval:      %s (%d workers)\n", cfg.Engine.WarmInterval, cfg.Engine.WarmWorkers)
			fmt.Fprintf(out, "\nFetcher:\n")
			fmt.Fprintf(out, "  Request Timeout:    %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Fprintf(out, "  Max Retries:        %d\n", cfg.Fetcher.MaxRetries)
			fmt.Fprintf(out, "  Retry Delay:        %s (max %s)\n", cfg.Fetcher.RetryDelay, cfg.Fetcher.MaxRetryDelay)
			fmt.Fprintf(out, "  User Agents:        %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Fprintf(out, "  Browser Rendering:  %v\n", cfg.Fetcher.Browser.Enabled)
			fmt.Fprintf(out, "\nCache:\n")
			fmt.Fprintf(out, "  Backend:            %s\n", cfg.Cache.Backend)
			fmt.Fprintf(out, "\nSources:\n")
			catalog := cfg.Sources.CatalogPath
			if catalog == "" {
				catalog = "(built-in)"
			}
			fmt.Fprintf(out, "  Catalog:            %s\n", catalog)
			fmt.Fprintf(out, "\nNotify:\n")
			fmt.Fprintf(out, "  Enabled:            %v\n", cfg.Notify.Enabled)
			fmt.Fprintf(out, "\nAPI:\n")
			fmt.Fprintf(out, "  Port:               %d\n", cfg.API.Port)
			fmt.Fprintf(out, "  Metrics:            %v (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Path)
			return nil
		},
	}
}
