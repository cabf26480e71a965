package main

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/container"
	"github.com/healthchain/marketplace/cmd/marketplace/repository"
	"github.com/healthchain/marketplace/cmd/marketplace/routes"
	"github.com/healthchain/marketplace/common/bootstrap"
	"github.com/healthchain/marketplace/common/config"
	"github.com/healthchain/marketplace/common/server"
	"github.com/oklog/run"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// NewCmdServe starts the API server and, when enabled, the metrics server
func NewCmdServe(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the marketplace API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := bootstrap.Setup(ctx, serviceName,
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithDBInitHook(repository.EnsureSchema),
	)
	if err != nil {
		return fmt.Errorf("failed to bootstrap marketplace: %w", err)
	}
	defer components.Shutdown(context.Background())

	c, err := container.NewContainer(ctx, components)
	if err != nil {
		return fmt.Errorf("failed to initialize service container: %w", err)
	}

	log := components.Logger
	var g run.Group
	{
		api := server.New("api server",
			fmt.Sprintf(":%d", cfg.Service.Port),
			routes.NewEcho(c),
			log,
			server.WithTimeouts(5*time.Minute, 5*time.Minute),
		)
		g.Add(api.Run, func(error) {
			api.Shutdown(shutdownTimeout)
		})
	}
	if t := components.Telemetry; t != nil {
		metrics := server.New("metrics server", t.Addr(), t.Handler(), log)
		g.Add(metrics.Run, func(error) {
			metrics.Shutdown(5 * time.Second)
		})
	}
	{
		execute, interrupt := run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM)
		g.Add(func() error {
			err := execute()
			log.Warn("shutting down", "reason", err)
			return nil
		}, interrupt)
	}

	log.Info("marketplace ready",
		"port", cfg.Service.Port,
		"store", cfg.Store.Driver,
		"ledger", cfg.Ledger.Driver,
		"index", c.IndexRepo != nil,
	)
	return g.Run()
}
