package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"querybot/internal/api"
	"querybot/internal/common/config"
	"querybot/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, 15)
	if err != nil {
		return err
	}
	defer a.Close()

	a.zap.Info("Starting querybot",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.Int("reports", a.registry.Len()),
	)

	if err := a.indexer.EnsureIndexed(ctx); err != nil {
		a.zap.Warn("Initial schema indexing failed, table selection will fall back to all tables", zap.Error(err))
	}

	sched, err := scheduler.New(scheduler.Config{
		SchemaRefresh: cfg.Scheduler.SchemaRefresh,
		SessionPrune:  cfg.Scheduler.SessionPrune,
		IdleTimeout:   cfg.Session.Idle(),
	}, a.indexer, a.sessions, a.log)
	if err != nil {
		return err
	}
	sched.Start()

	checks := map[string]api.Pinger{"database": a.sql}
	if a.redis != nil {
		checks["redis"] = a.redis
	}
	if a.es != nil {
		checks["elasticsearch"] = a.es
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.NewServer(a.bot, checks, config.GetDuration(cfg.Server.RequestTimeout), a.log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.zap.Info("HTTP server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.zap.Info("Shutdown signal received, stopping server...")
	case err := <-errCh:
		if err != nil {
			a.zap.Error("HTTP server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.zap.Error("Error shutting down HTTP server", zap.Error(err))
	}
	a.zap.Info("querybot stopped gracefully")
	return nil
}
