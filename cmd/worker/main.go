package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ratewatch/ratewatch/internal/app"
	"github.com/ratewatch/ratewatch/internal/config"
	"github.com/ratewatch/ratewatch/pkg/logger"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger.
	log := logger.New("ratewatch-worker", cfg.LogLevel)
	log.Info("starting ratewatch worker",
		slog.String("environment", cfg.Environment),
		slog.String("consumer_group", cfg.KafkaConsumerGroup),
	)

	// Create the worker with all dependencies wired.
	worker, err := app.NewWorker(cfg, log)
	if err != nil {
		log.Error("failed to initialize worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the worker. This blocks until shutdown.
	if err := worker.Run(ctx); err != nil {
		log.Error("worker error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("ratewatch worker stopped")
}
