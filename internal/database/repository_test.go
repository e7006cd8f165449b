package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/internal/logging"
)

// newTestRepository connects to DATABASE_URL, migrates and empties the tables
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping PostgreSQL repository tests")
	}

	ctx := context.Background()
	db, err := Connect(ctx, url, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.RunMigrations(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE trades, trade_settings, settings, market_data_history`)
	require.NoError(t, err)

	return NewRepository(db)
}

func TestRepositoryTradeLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTrade(ctx, openTrade("A", "1", "swing")))
	assert.ErrorIs(t, repo.CreateTrade(ctx, openTrade("A", "1", "day")), ErrDuplicateTrade)
	require.NoError(t, repo.CreateTrade(ctx, openTrade("B", "1", "day")))

	n, err := repo.CountOpenByStrategy(ctx, "swing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	closed, err := repo.CloseTrade(ctx, CloseRequest{
		Platform: "A", Ticket: "1", ExitPrice: 104.5, ProfitLoss: 4.5,
		Reason: ReasonTakeProfit, ClosedBy: ClosedByBot,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, "swing", closed.Strategy)
	require.NotNil(t, closed.ProfitLoss)
	assert.Equal(t, 4.5, *closed.ProfitLoss)

	_, err = repo.CloseTrade(ctx, CloseRequest{Platform: "A", Ticket: "1", Reason: ReasonStopLoss})
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	got, err := repo.GetTrade(ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, ReasonTakeProfit, got.CloseReason)

	open, err := repo.ListTrades(ctx, TradeFilter{Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "B", open[0].Platform)

	_, err = repo.GetTrade(ctx, "C", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryClosesUntrackedTrade(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec, err := repo.CloseTrade(ctx, CloseRequest{
		Platform: "B", Ticket: "77", Symbol: "WTI_F6", Direction: "SELL",
		EntryPrice: 80, Quantity: 0.01, ExitPrice: 81, ProfitLoss: -1,
		Reason: ReasonStopLoss, ClosedBy: ClosedByBot,
	})
	require.NoError(t, err)
	assert.Equal(t, "WTI_CRUDE", rec.Commodity)

	stored, err := repo.GetTrade(ctx, "B", "77")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, stored.Status)
	assert.Equal(t, "swing", stored.Strategy)

	_, err = repo.CloseTrade(ctx, CloseRequest{Platform: "B", Ticket: "77"})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestRepositoryTradeSettings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	sl, other := 98.0, 50.0
	created, err := repo.CreateTradeSettingsIfAbsent(ctx, &TradeSettings{Ticket: "1", Platform: "A", StopLoss: &sl, Strategy: "swing", Source: SourceAuto})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateTradeSettingsIfAbsent(ctx, &TradeSettings{Ticket: "1", Platform: "A", StopLoss: &other, Strategy: "swing", Source: SourceAuto})
	require.NoError(t, err)
	assert.False(t, created)

	ts, err := repo.GetTradeSettings(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 98.0, *ts.StopLoss)
	assert.Nil(t, ts.TakeProfit)

	require.NoError(t, repo.UpsertTradeSettings(ctx, &TradeSettings{Ticket: "1", Platform: "A", StopLoss: &other, Strategy: "day", Source: SourceUser}))
	ts, err = repo.GetTradeSettings(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, *ts.StopLoss)
	assert.Equal(t, SourceUser, ts.Source)
	assert.Equal(t, "day", ts.Strategy)

	_, err = repo.GetTradeSettings(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositorySettingsUpsert(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetSettings(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := EnsureDefaultSettings(ctx, repo)
	require.NoError(t, err)
	assert.False(t, s.AutoTrading)

	s.AutoTrading = true
	s.EnabledCommodities = []string{"GOLD", "SILVER"}
	s.Day.Enabled = true
	require.NoError(t, repo.SaveSettings(ctx, s))

	stored, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, stored.AutoTrading)
	assert.Equal(t, []string{"GOLD", "SILVER"}, stored.EnabledCommodities)
	assert.True(t, stored.Day.Enabled)
	require.NoError(t, stored.Validate())

	reset, err := ResetSettings(ctx, repo)
	require.NoError(t, err)
	stored, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, reset.AutoTrading, stored.AutoTrading)
	assert.Len(t, stored.EnabledCommodities, 15)
}

func TestRepositoryCleanupStaysWithinPlatform(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTrade(ctx, openTrade("A", "1", "swing")))
	_, err := repo.CloseTrade(ctx, CloseRequest{Platform: "A", Ticket: "1", Reason: ReasonTakeProfit})
	require.NoError(t, err)
	require.NoError(t, repo.CreateTrade(ctx, openTrade("B", "1", "swing")))
	require.NoError(t, repo.CreateTrade(ctx, openTrade("A", "TRADE_RETCODE_INVALID", "swing")))

	res, err := repo.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ErrorRecords)
	assert.Zero(t, res.DuplicateRecords)

	live, err := repo.GetTrade(ctx, "B", "1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, live.Status)
}

func TestRepositoryMarketHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertMarketSnapshot(ctx, &MarketSnapshot{
			Commodity:  "GOLD",
			Price:      float64(2300 + i),
			Indicators: map[string]float64{"atr": 12},
			Signal:     "BUY",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := repo.MarketHistory(ctx, "GOLD", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2302.0, history[0].Price)
	assert.Equal(t, 12.0, history[0].ATR())
}
