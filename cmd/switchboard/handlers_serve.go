package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/switchboard/internal/config"
	"github.com/haasonsaas/switchboard/internal/observability"
)

// runServe loads configuration, wires the pipeline and serves webhooks until
// SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := cfg.Logging
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)

	logger.Info("starting switchboard",
		"version", version,
		"commit", commit,
		"config", configPath,
		"capture_mode", cfg.Twilio.Capture.Mode,
		"reply_provider", cfg.Reply.Provider,
		"tts_provider", cfg.TTS.Provider,
		"publish_backend", cfg.Publish.Backend,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	if a.sweeper != nil {
		a.sweeper.Start()
	}
	a.janitor.Start()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newMux(a),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("switchboard started", "addr", server.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown failed", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}

	logger.Info("switchboard stopped")
	return nil
}
