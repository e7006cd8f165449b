package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateTrade = errors.New("trade already recorded for platform and ticket")
	ErrAlreadyClosed  = errors.New("trade already closed")
)

// Store is the persistence surface used by the trading loop and the API.
// Repository implements it on PostgreSQL and MemoryStore in process.
type Store interface {
	HealthCheck(ctx context.Context) error

	CreateTrade(ctx context.Context, trade *TradeRecord) error
	GetTrade(ctx context.Context, platform, ticket string) (*TradeRecord, error)
	CloseTrade(ctx context.Context, req CloseRequest) (*TradeRecord, error)
	ListTrades(ctx context.Context, filter TradeFilter) ([]*TradeRecord, error)
	CountOpenByStrategy(ctx context.Context, strategy string) (int, error)
	Stats(ctx context.Context) (*TradeStats, error)
	Cleanup(ctx context.Context) (*CleanupResult, error)

	GetTradeSettings(ctx context.Context, ticket string) (*TradeSettings, error)
	UpsertTradeSettings(ctx context.Context, ts *TradeSettings) error
	CreateTradeSettingsIfAbsent(ctx context.Context, ts *TradeSettings) (bool, error)

	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error

	InsertMarketSnapshot(ctx context.Context, snap *MarketSnapshot) error
	MarketHistory(ctx context.Context, commodity string, limit int) ([]*MarketSnapshot, error)
}

// EnsureDefaultSettings returns the stored settings, creating the defaults on first run
func EnsureDefaultSettings(ctx context.Context, store Store) (*Settings, error) {
	s, err := store.GetSettings(ctx)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s = DefaultSettings()
	if err := store.SaveSettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ResetSettings overwrites the stored settings with the defaults
func ResetSettings(ctx context.Context, store Store) (*Settings, error) {
	s := DefaultSettings()
	if err := store.SaveSettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
