package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := Connect(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	db.logger.Info().Str("database", cfg.Database).Str("host", cfg.Host).Msg("Connected to PostgreSQL")
	return db, nil
}

// Connect opens a pool from a DSN or postgres:// URL and pings it
func Connect(ctx context.Context, dsn string, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// The loop is sequential, a small pool is plenty
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger = logger.With().Str("component", "Database").Logger()
	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id UUID PRIMARY KEY,
		commodity VARCHAR(40) NOT NULL,
		platform VARCHAR(40) NOT NULL,
		ticket VARCHAR(64) NOT NULL,
		symbol VARCHAR(40) NOT NULL,
		strategy VARCHAR(10) NOT NULL DEFAULT 'swing',
		direction VARCHAR(4) NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION,
		take_profit DOUBLE PRECISION,
		status VARCHAR(10) NOT NULL DEFAULT 'OPEN',
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		close_reason VARCHAR(20),
		closed_by VARCHAR(20),
		exit_price DOUBLE PRECISION,
		profit_loss DOUBLE PRECISION,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		analysis JSONB,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_platform_ticket ON trades(platform, ticket)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_status_strategy ON trades(status, strategy)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at)`,

	`CREATE TABLE IF NOT EXISTS trade_settings (
		ticket VARCHAR(64) PRIMARY KEY,
		platform VARCHAR(40) NOT NULL,
		stop_loss DOUBLE PRECISION,
		take_profit DOUBLE PRECISION,
		strategy VARCHAR(10) NOT NULL DEFAULT 'swing',
		source VARCHAR(10) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		id VARCHAR(40) PRIMARY KEY,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS market_data_history (
		id BIGSERIAL PRIMARY KEY,
		commodity VARCHAR(40) NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		indicators JSONB,
		signal VARCHAR(10),
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_market_history_commodity_ts ON market_data_history(commodity, timestamp DESC)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Int("statements", len(migrations)).Msg("Running database migrations")

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("Database migrations completed")
	return nil
}
