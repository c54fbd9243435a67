package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iconforge/iconforge/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the icon generation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := server.Options{
				Listen:         a.cfg.Listen,
				AllowedOrigins: a.cfg.CORS.AllowedOrigins,
				MetricsPath:    a.cfg.Metrics.Path,
				Metrics:        a.metrics,
				Logger:         a.logger,
			}
			if a.cfg.MockMode {
				a.logger.Warn("mock mode enabled, upstream services will not be called")
			}

			srv := server.New(a.orch, opts)
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.Info("iconforge stopped", zap.String("addr", a.cfg.Listen))
			return nil
		},
	}
}
