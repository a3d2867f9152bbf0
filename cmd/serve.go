package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/api"
	"gophora/discovery-service/internal/db"
	"gophora/discovery-service/internal/observability"
	"gophora/discovery-service/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, gRPC health server and background scheduler",
	RunE: func(_ *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return serve(logger)
	},
}

func serve(logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := wire(ctx, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	cfg := c.cfg

	observability.InitMetrics()

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched, err := scheduler.New(logger, scheduler.DefaultTasks(logger, cfg, c.pipeline, c.store))
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// ── gRPC health ──────────────────────────────────────────────────────────
	hs := db.NewHealthServer(logger, c.checks)
	hs.Refresh(ctx)
	go func() {
		logger.Info("gRPC health server listening", zap.Int("port", cfg.GRPCPort))
		if err := hs.Serve(cfg.GRPCPort); err != nil {
			logger.Error("gRPC health server error", zap.Error(err))
		}
	}()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hs.Refresh(ctx)
			}
		}
	}()

	// ── HTTP API ─────────────────────────────────────────────────────────────
	srv := api.NewServer(logger, api.Deps{
		Store:       c.store,
		Profiles:    c.profiles,
		Recommender: c.matcher,
		Ingester:    c.pipeline,
		Scheduler:   sched,
		Health:      hs.Refresh,
		Version:     version,
	})
	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(api.RouterConfig{
			CORSAllowOrigins: cfg.CORSAllowOrigins,
			RateLimitPerMin:  cfg.RateLimitPerMin,
		}),
		ReadTimeout: 15 * time.Second,
		// POST /ingest?wait=true holds the connection for a full pass.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("discovery-service listening", zap.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down discovery-service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	hs.Stop()
	cancel()
	logger.Info("discovery-service stopped")
	return nil
}
