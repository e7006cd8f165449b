// Package app wires the trading bot's components together for the server
// entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/api"
	"metaapi-trading-bot/internal/auth"
	"metaapi-trading-bot/internal/bot"
	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/cache"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/logging"
	"metaapi-trading-bot/internal/market"
	"metaapi-trading-bot/internal/vault"
)

// NewLogger builds the process logger from the logging section
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	logger := logging.New(&logging.Config{
		Level:       cfg.Level,
		Output:      cfg.Output,
		JSONFormat:  cfg.JSONFormat,
		IncludeFile: cfg.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	return logger
}

// OpenStore connects to Postgres and runs migrations, or returns the in-memory
// store when the database is disabled. The returned func releases the store.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (database.Store, func(), error) {
	if !cfg.Enabled {
		logger.Warn().Msg("Database disabled, trades are kept in memory only")
		return database.NewMemoryStore(), func() {}, nil
	}

	db, err := database.NewDB(ctx, database.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return database.NewRepository(db), db.Close, nil
}

// LoadCredentials overlays the MetaAPI token and account ids stored in Vault.
// Missing credentials leave the environment values in place.
func LoadCredentials(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*vault.Client, error) {
	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return nil, err
	}
	if !client.IsEnabled() {
		return client, nil
	}
	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	if err := client.ApplyTo(ctx, &cfg.MetaAPIConfig); err != nil {
		if errors.Is(err, vault.ErrCredentialsNotFound) {
			logger.Warn().Msg("No MetaAPI credentials in Vault, using configured values")
			return client, nil
		}
		return nil, fmt.Errorf("load credentials from vault: %w", err)
	}
	logger.Info().Int("accounts", len(cfg.MetaAPIConfig.Accounts)).Msg("MetaAPI credentials loaded from Vault")
	return client, nil
}

// NewBrokerRouter registers one MetaAPI client per configured account.
// Accounts without an id are skipped so the bot can start with a subset.
func NewBrokerRouter(cfg config.MetaAPIConfig, logger zerolog.Logger) (*broker.Router, error) {
	router := broker.NewRouter(logger)
	for _, acc := range cfg.Accounts {
		region := acc.Region
		if region == "" {
			region = cfg.Region
		}
		client, err := broker.NewMetaAPIClient(broker.ClientConfig{
			Platform:       acc.Name,
			AccountID:      acc.AccountID,
			Token:          cfg.Token,
			Region:         region,
			BaseURL:        cfg.BaseURL,
			Timeout:        time.Duration(cfg.RequestTimeout) * time.Second,
			RequestsPerSec: cfg.RequestsPerSec,
		}, logger)
		if err != nil {
			if errors.Is(err, broker.ErrNoCredentials) {
				logger.Warn().Str("platform", acc.Name).Msg("Platform has no MetaAPI credentials, skipping")
				continue
			}
			return nil, err
		}
		router.Register(acc.Name, market.Broker(acc.Broker), client)
	}
	return router, nil
}

// Serve runs the bot and its HTTP API until ctx is cancelled
func Serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if _, err := LoadCredentials(ctx, cfg, logger); err != nil {
		return err
	}

	store, closeStore, err := OpenStore(ctx, cfg.DatabaseConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if _, err := database.EnsureDefaultSettings(ctx, store); err != nil {
		return fmt.Errorf("bootstrap settings: %w", err)
	}

	cs := cache.NewCacheService(ctx, cfg.RedisConfig, logger)
	defer cs.Close()

	router, err := NewBrokerRouter(cfg.MetaAPIConfig, logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	rt, err := bot.Build(cfg, store, router, cs, nil, bus, logger)
	if err != nil {
		return err
	}
	manager := bot.NewManager(rt, logger)

	authSvc, err := auth.NewService(cfg.AuthConfig, logger)
	if err != nil {
		return err
	}

	server, err := api.NewServer(cfg.ServerConfig, api.Deps{
		Store:    store,
		Bot:      manager,
		Accounts: router,
		Usage:    rt.Allocator,
		Hours:    rt.Calendar,
		Auth:     authSvc,
		Bus:      bus,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.BotConfig.AutoStart {
		if err := manager.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("Auto start failed, start the bot through the API")
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start(ctx) }()

	select {
	case err := <-serveErr:
		stopBot(manager, logger)
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	stopBot(manager, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	return nil
}

func stopBot(m *bot.Manager, logger zerolog.Logger) {
	if err := m.Stop(); err != nil && !errors.Is(err, bot.ErrNotRunning) {
		logger.Error().Err(err).Msg("Failed to stop bot")
	}
}
