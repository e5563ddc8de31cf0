package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/blogscope/internal/api"
	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/engine"
	"github.com/IshaanNene/blogscope/pkg/blogscope"
)

var servePort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the posts API",
		Long: `Serve the HTTP API and, when engine.warm_interval is set, keep page 1 of
every source warm in the background.`,
		RunE: runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (0 = config default)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}

	a, err := blogscope.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	warmer := engine.NewWarmer(a.Service(), cfg.Engine.WarmInterval, cfg.Engine.WarmWorkers, cfg.Engine.PolitenessDelay)
	go warmer.Start(ctx)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	srv := api.NewServer(cfg.API.Port, a.Service(), a.Metrics(), metricsPath, config.Version, logger)
	return srv.ListenAndServe(ctx)
}
