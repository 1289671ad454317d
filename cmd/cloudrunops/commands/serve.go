package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/metrics"
)

// shutdownTimeout bounds stopping the metrics server.
const shutdownTimeout = 5 * time.Second

func NewServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep account credentials current",
		Long: `Poll the account source every pollInterval, authenticate new and changed
accounts and expose Prometheus metrics when enabled.

Send SIGHUP to reload immediately. SIGINT or SIGTERM stops polling after
the current cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			serverConfig := metrics.DefaultServerConfig()
			serverConfig.Enabled = p.def.Metrics.Enabled
			serverConfig.Port = p.def.Metrics.Port
			serverConfig.Path = p.def.Metrics.Path
			server := metrics.NewServer(serverConfig, cfg.Logger)
			if err := server.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = server.Stop(shutdownCtx)
			}()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			p.poller.Start(ctx)
			defer p.poller.Stop()

			for {
				select {
				case <-ctx.Done():
					cfg.Logger.Info("shutting down")
					return nil
				case <-hup:
					cfg.Logger.Info("reloading accounts")
					_ = p.poller.Synchronize(ctx)
				}
			}
		},
	}

	return cmd
}
