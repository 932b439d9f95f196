// Package main provides the entry point for the SmartDub API server.
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

	"github.com/maauso/smartdub-api/internal/bootstrap"
	"github.com/maauso/smartdub-api/internal/config"
	"github.com/maauso/smartdub-api/internal/metrics"
	"github.com/maauso/smartdub-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting SmartDub API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("output_dir", cfg.OutputDir),
		slog.Bool("postgres_enabled", cfg.PostgresEnabled()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.String("translation_provider", cfg.TranslationProvider),
	)
	logger.Debug("configuration loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	// Jobs left processing by a previous process can never finish.
	if n, err := deps.Orchestrator.Recover(ctx); err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	} else if n > 0 {
		logger.Warn("marked interrupted jobs as failed", slog.Int("count", n))
	}

	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorker()
	go deps.Orchestrator.Run(workerCtx)

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Jobs, deps.Accounts, deps.Store, deps.Orchestrator, logger,
		server.WithAdminToken(cfg.AdminToken),
		server.WithMediaDir(deps.OutputDir),
		server.WithMaxUploadBytes(cfg.MaxUploadMB<<20),
	)
	router := server.NewRouter(handlers, logger, server.Config{
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute, // uploads can be large
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		cancelWorker()
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Let the running job finish; past the deadline it is abandoned and
	// recovered as interrupted on the next start.
	if err := deps.Orchestrator.Shutdown(shutdownCtx); err != nil {
		cancelWorker()
		logger.Warn("worker did not stop in time", slog.String("error", err.Error()))
	}

	logger.Info("server stopped gracefully")
	return nil
}
