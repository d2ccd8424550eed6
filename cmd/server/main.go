package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/Freeeeeet/concierge/internal/app"
	"github.com/Freeeeeet/concierge/internal/config"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting concierge",
		zap.String("environment", cfg.Environment),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("worker_concurrency", cfg.WorkerConcurrency))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("Stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Stopped")
}
