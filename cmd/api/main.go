// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/logging"
	"bookswap/internal/server"
	"bookswap/internal/store"
	"bookswap/internal/telemetry"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := os.Getenv("BOOKSWAP_CONFIG")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if err := run(configPath); err != nil {
		slog.Error("API server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	logger.Info("Starting BookSwap API",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("store", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", slog.Any("error", err))
		}
	}()

	db, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	srv := server.New(cfg.Server, server.NewServices(cfg, db), logger)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("BookSwap API shutdown complete")
	return nil
}
