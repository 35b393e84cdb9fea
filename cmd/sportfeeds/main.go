package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sportfeeds/internal/app"
	"sportfeeds/internal/config"
	"sportfeeds/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("configuration load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
