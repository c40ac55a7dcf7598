// cmd/chaos/main.go
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bookswap/internal/chaos"
	"bookswap/internal/client"
	"bookswap/internal/config"
	"bookswap/internal/logging"
)

func main() {
	logger := logging.New(os.Stderr, config.LogConfig{Level: slog.LevelInfo, Format: getEnv("LOG_FORMAT", "text")})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(getEnv("BOOKSWAP_URL", "http://localhost:5000/api"))
	engine := chaos.NewEngine(chaos.Config{
		SampleInterval: getDuration(logger, "CHAOS_SAMPLE_INTERVAL", time.Second),
		Pause:          getDuration(logger, "CHAOS_PAUSE", 5*time.Second),
	}, logger)
	engine.RegisterExperiments(api,
		getInt(logger, "CHAOS_CONCURRENCY", 25),
		getDuration(logger, "CHAOS_DURATION", 10*time.Second))

	results := engine.RunGameDay(ctx, chaos.GameDay{
		Name:      "BookSwap swap invariants",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		logger.Error("Failed to write results", slog.Any("error", err))
	}

	if len(results) < len(engine.Experiments()) {
		os.Exit(1)
	}
	for _, r := range results {
		if !r.HypothesisHeld {
			os.Exit(1)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(logger *slog.Logger, key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		logger.Warn("Ignoring invalid setting", slog.String("key", key), slog.String("value", raw))
		return defaultValue
	}
	return v
}

func getDuration(logger *slog.Logger, key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Ignoring invalid setting", slog.String("key", key), slog.String("value", raw))
		return defaultValue
	}
	return v
}
