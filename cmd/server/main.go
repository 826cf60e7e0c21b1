// Package main provides the entry point for the slide notes API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/slidenotes-api/internal/bootstrap"
	"github.com/maauso/slidenotes-api/internal/config"
	"github.com/maauso/slidenotes-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, level := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting slide notes API",
		slog.Int("port", cfg.Port),
		slog.String("converter_url", cfg.ConverterURL),
		slog.String("uploads_dir", cfg.UploadsDir),
		slog.Duration("idle_threshold", cfg.IdleThreshold),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Int("max_concurrent_slides", cfg.MaxConcurrentSlides),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger, level)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	router := server.NewRouter(deps.Handlers, logger, server.DefaultConfig())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// A batch waits for the converter, then for every slide download.
		WriteTimeout: cfg.ConvertTimeout + 5*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	deps.Scheduler.Start()
	logger.Info("sweep scheduled", slog.String("schedule", cfg.CleanupSchedule))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		<-deps.Scheduler.Stop().Done()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	cronDone := deps.Scheduler.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		logger.Warn("sweep still running at shutdown")
	}

	logger.Info("server stopped gracefully")
	return nil
}
