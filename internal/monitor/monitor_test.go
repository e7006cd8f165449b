package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/broker/brokertest"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/logging"
	"metaapi-trading-bot/internal/strategy"
)

var now = time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)

type lossLog struct{ pnl []float64 }

func (l *lossLog) RecordTrade(p float64) { l.pnl = append(l.pnl, p) }

type fixture struct {
	ctx      context.Context
	gw       *brokertest.Gateway
	store    *database.MemoryStore
	losses   *lossLog
	mon      *Monitor
	settings *database.Settings
}

func newFixture(platforms ...string) *fixture {
	f := &fixture{
		ctx:    context.Background(),
		gw:     brokertest.NewGateway(),
		store:  database.NewMemoryStore(),
		losses: &lossLog{},
	}
	f.mon = New(f.gw, f.store, f.losses, nil, logging.Nop())
	f.mon.now = func() time.Time { return now }
	f.settings = database.DefaultSettings()
	f.settings.ActivePlatforms = platforms
	return f
}

func position(platform, ticket string, dir broker.Direction, entry, current float64) broker.Position {
	return broker.Position{
		Ticket: ticket, Platform: platform, Symbol: "XAUUSD", Direction: dir,
		EntryPrice: entry, CurrentPrice: current, Volume: 0.01,
		OpenedAt: now.Add(-time.Hour),
	}
}

func (f *fixture) track(platform, ticket, strat string, entry float64, opened time.Time) {
	err := f.store.CreateTrade(f.ctx, &database.TradeRecord{
		Commodity: "GOLD", Platform: platform, Ticket: ticket, Symbol: "XAUUSD",
		Strategy: strat, Direction: "BUY", EntryPrice: entry, Quantity: 0.01, OpenedAt: opened,
	})
	if err != nil {
		panic(err)
	}
}

func (f *fixture) setPrice(platform, ticket string, price float64) {
	for i := range f.gw.Positions[platform] {
		if f.gw.Positions[platform][i].Ticket == ticket {
			f.gw.Positions[platform][i].CurrentPrice = price
		}
	}
}

func TestTrigger(t *testing.T) {
	levels := strategy.Levels{StopLoss: 98, TakeProfit: 104}
	short := strategy.Levels{StopLoss: 102, TakeProfit: 96}

	tests := []struct {
		name   string
		dir    broker.Direction
		price  float64
		levels strategy.Levels
		want   string
	}{
		{"buy holds", broker.Buy, 101, levels, ""},
		{"buy take profit", broker.Buy, 104.5, levels, database.ReasonTakeProfit},
		{"buy stop loss", broker.Buy, 97.9, levels, database.ReasonStopLoss},
		{"sell holds", broker.Sell, 99, short, ""},
		{"sell take profit", broker.Sell, 95, short, database.ReasonTakeProfit},
		{"sell stop loss", broker.Sell, 102.5, short, database.ReasonStopLoss},
		{"take profit wins ties", broker.Buy, 100, strategy.Levels{StopLoss: 100, TakeProfit: 100}, database.ReasonTakeProfit},
		{"no price", broker.Buy, 0, levels, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Trigger(tt.dir, tt.price, tt.levels))
		})
	}
}

func TestRealizedPnL(t *testing.T) {
	p := position("A", "1", broker.Sell, 100, 98)
	p.Volume = 0.5
	assert.InDelta(t, 1.0, RealizedPnL(p), 1e-9)

	profit := -3.25
	p.Profit = &profit
	assert.Equal(t, -3.25, RealizedPnL(p))
}

func TestPercentRuleTakeProfitScenario(t *testing.T) {
	f := newFixture("A")
	f.track("A", "1", "swing", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 103))

	// First tick persists the 2%/4% levels and holds
	assert.Equal(t, 0, f.mon.Run(f.ctx, f.settings))
	ts, err := f.store.GetTradeSettings(f.ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 98, *ts.StopLoss, 1e-9)
	assert.InDelta(t, 104, *ts.TakeProfit, 1e-9)
	assert.Equal(t, database.SourceAuto, ts.Source)

	f.setPrice("A", "1", 104.5)
	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))

	rec, err := f.store.GetTrade(f.ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, database.StatusClosed, rec.Status)
	assert.Equal(t, database.ReasonTakeProfit, rec.CloseReason)
	assert.Equal(t, database.ClosedByBot, rec.ClosedBy)
	require.NotNil(t, rec.ProfitLoss)
	assert.InDelta(t, 0.045, *rec.ProfitLoss, 1e-9)
	require.Len(t, f.losses.pnl, 1)
	assert.InDelta(t, 4.5, f.losses.pnl[0], 1e-9)
}

func TestClosedTicketIsNotClosedTwice(t *testing.T) {
	f := newFixture("A")
	f.track("A", "1", "swing", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 104.5))

	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))

	// The broker still lists the ticket after the close
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 104.5))
	assert.Equal(t, 0, f.mon.Run(f.ctx, f.settings))
	assert.Equal(t, 1, f.gw.ClosedCount())

	trades, err := f.store.ListTrades(f.ctx, database.TradeFilter{})
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestUntrackedPositionClosedCreatesRecord(t *testing.T) {
	f := newFixture("A")
	f.gw.AddPosition(position("A", "9", broker.Sell, 100, 103))

	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))
	rec, err := f.store.GetTrade(f.ctx, "A", "9")
	require.NoError(t, err)
	assert.Equal(t, database.StatusClosed, rec.Status)
	assert.Equal(t, database.ReasonStopLoss, rec.CloseReason)
	assert.Equal(t, "swing", rec.Strategy)
}

func TestUserLevelsTakePriority(t *testing.T) {
	f := newFixture("A")
	f.track("A", "1", "swing", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 98.9))

	sl := 99.0
	require.NoError(t, f.store.UpsertTradeSettings(f.ctx, &database.TradeSettings{
		Ticket: "1", Platform: "A", StopLoss: &sl, Source: database.SourceUser,
	}))

	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))
	rec, err := f.store.GetTrade(f.ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, database.ReasonStopLoss, rec.CloseReason)
}

func TestDefaultLevelsPersistedOnce(t *testing.T) {
	f := newFixture("A")
	f.track("A", "1", "day", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 100.5))

	f.mon.Run(f.ctx, f.settings)
	ts, err := f.store.GetTradeSettings(f.ctx, "1")
	require.NoError(t, err)
	// Day rule: 1.5% / 2.5%
	assert.InDelta(t, 98.5, *ts.StopLoss, 1e-9)
	assert.Equal(t, "day", ts.Strategy)
	first := ts.UpdatedAt

	f.settings.Day.StopLossPercent = 5
	f.mon.Run(f.ctx, f.settings)
	ts, err = f.store.GetTradeSettings(f.ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 98.5, *ts.StopLoss, 1e-9)
	assert.Equal(t, first, ts.UpdatedAt)
}

func TestEmptySettingsDocumentRecomputesEachTick(t *testing.T) {
	f := newFixture("A")
	f.track("A", "1", "swing", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 97))

	// A document without levels exists, so nothing is auto-created
	require.NoError(t, f.store.UpsertTradeSettings(f.ctx, &database.TradeSettings{Ticket: "1", Source: database.SourceUser}))
	f.settings.Swing.StopLossPercent = 5

	assert.Equal(t, 0, f.mon.Run(f.ctx, f.settings))
	f.settings.Swing.StopLossPercent = 2
	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))

	ts, err := f.store.GetTradeSettings(f.ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, ts.StopLoss)
}

func TestFailuresAreIsolated(t *testing.T) {
	f := newFixture("DOWN", "A")
	f.gw.PositionsErr["DOWN"] = errors.New("gateway timeout")

	f.track("A", "1", "swing", 100, now.Add(-time.Hour))
	f.track("A", "2", "swing", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 110))
	f.gw.AddPosition(position("A", "2", broker.Buy, 100, 110))
	f.gw.CloseErr["1"] = errors.New("market closed")

	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))

	rec, err := f.store.GetTrade(f.ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, database.StatusOpen, rec.Status, "failed close leaves the record open")

	rec, err = f.store.GetTrade(f.ctx, "A", "2")
	require.NoError(t, err)
	assert.Equal(t, database.StatusClosed, rec.Status)
}

func TestTrailingStopRatchets(t *testing.T) {
	f := newFixture("A")
	f.settings.UseTrailingStop = true
	f.settings.TrailingStopDistancePercent = 1.5
	f.track("A", "1", "swing", 100, now.Add(-time.Hour))
	f.gw.AddPosition(position("A", "1", broker.Buy, 100, 103))

	f.mon.Run(f.ctx, f.settings)
	ts, err := f.store.GetTradeSettings(f.ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 103*0.985, *ts.StopLoss, 1e-9)

	// A pullback never lowers the stop, and crossing it closes
	f.setPrice("A", "1", 101)
	assert.Equal(t, 1, f.mon.Run(f.ctx, f.settings))
	rec, err := f.store.GetTrade(f.ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, database.ReasonStopLoss, rec.CloseReason)
}

func TestSweepExpiredDayPositions(t *testing.T) {
	f := newFixture("A")
	f.settings.Day.Enabled = true
	f.settings.Day.MaxHoldTimeHours = 2

	old := position("A", "1", broker.Buy, 100, 100.2)
	old.OpenedAt = now.Add(-3 * time.Hour)
	f.track("A", "1", "day", 100, old.OpenedAt)
	f.gw.AddPosition(old)

	fresh := position("A", "2", broker.Buy, 100, 100.2)
	fresh.OpenedAt = now.Add(-time.Hour)
	f.track("A", "2", "day", 100, fresh.OpenedAt)
	f.gw.AddPosition(fresh)

	swing := position("A", "3", broker.Buy, 100, 100.2)
	swing.OpenedAt = now.Add(-72 * time.Hour)
	f.track("A", "3", "swing", 100, swing.OpenedAt)
	f.gw.AddPosition(swing)

	// Broker omitted the open time: fall back to the record
	noTime := position("A", "4", broker.Buy, 100, 100.2)
	noTime.OpenedAt = time.Time{}
	f.track("A", "4", "day", 100, now.Add(-5*time.Hour))
	f.gw.AddPosition(noTime)

	assert.Equal(t, 2, f.mon.SweepExpired(f.ctx, f.settings))

	for ticket, want := range map[string]string{"1": database.StatusClosed, "2": database.StatusOpen, "3": database.StatusOpen, "4": database.StatusClosed} {
		rec, err := f.store.GetTrade(f.ctx, "A", ticket)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Status, ticket)
	}

	rec, err := f.store.GetTrade(f.ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, database.ReasonMaxHoldTime, rec.CloseReason)
	assert.Equal(t, database.ClosedByBot, rec.ClosedBy)
}
