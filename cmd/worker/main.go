package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/union-registry/internal/config"
	"github.com/iliyamo/union-registry/internal/queue"
	"github.com/iliyamo/union-registry/internal/utils"
)

// The worker only needs the broker and the notice directory, so it reads
// those directly instead of going through config.Load.
func main() {
	_ = godotenv.Load()

	logger := utils.NewLogger(envOr("APP_ENV", "dev"), envOr("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(config.RabbitURL(), envOr("NOTICE_LOG_DIR", "logs"), logger)
	logger.WithField("dir", c.Dir).Info("notification worker started")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("notification worker failed")
	}
	logger.Info("notification worker stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
