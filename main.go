package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/app"
)

func main() {
	// Optional .env, real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg.LoggingConfig)
	logger.Info().Msg("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Trading bot exited with an error")
		os.Exit(1)
	}

	logger.Info().Msg("Trading bot stopped")
}
