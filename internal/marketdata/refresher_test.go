package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/internal/analysis"
	"metaapi-trading-bot/internal/cache"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/logging"
)

type fakeCandles map[string][]analysis.Candle

func (f fakeCandles) Candles(ctx context.Context, symbol string) ([]analysis.Candle, error) {
	c, ok := f[symbol]
	if !ok {
		return nil, analysis.ErrNoHistory
	}
	return c, nil
}

type fixedNews struct{ news analysis.News }

func (n fixedNews) Sentiment(ctx context.Context, commodity string) analysis.News {
	return n.news
}

func series(n int, price, spread float64) []analysis.Candle {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	out := make([]analysis.Candle, n)
	for i := range out {
		out[i] = analysis.Candle{
			Time: base.Add(time.Duration(i) * time.Hour), Open: price,
			High: price + spread/2, Low: price - spread/2, Close: price,
		}
	}
	return out
}

func TestRefreshCachesSnapshotsAndIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	mc := cache.NewMarketCache(cache.NewMemoryCache(), time.Hour)
	bus := events.NewEventBus()

	refreshed := make(chan events.Event, 1)
	bus.Subscribe(events.EventMarketRefreshed, func(e events.Event) { refreshed <- e })

	r := NewRefresher(Deps{
		Candles:  fakeCandles{"GC=F": series(60, 2300, 10)},
		News:     fixedNews{analysis.NeutralNews()},
		Analyzer: analysis.NewAnalyzer(logging.Nop()),
		Cache:    mc,
		History:  store,
		Bus:      bus,
	}, logging.Nop())

	res := r.Refresh(ctx, []string{"GOLD", "SILVER", "NOPE"})
	assert.Equal(t, []string{"GOLD"}, res.Updated)
	assert.Len(t, res.Failed, 2)
	assert.Same(t, res, r.LastResult())

	snap, err := mc.Get(ctx, "GOLD")
	require.NoError(t, err)
	assert.Equal(t, 2300.0, snap.Price)
	assert.InDelta(t, 10, snap.ATR(), 1e-9)

	hist, err := store.MarketHistory(ctx, "GOLD", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	latest, ok := r.Latest("GOLD")
	require.True(t, ok)
	assert.Equal(t, analysis.SignalHold, latest.Signal)
	_, ok = r.Latest("SILVER")
	assert.False(t, ok)

	select {
	case e := <-refreshed:
		assert.Equal(t, 1, e.Data["updated"])
		assert.Equal(t, 2, e.Data["failed"])
	case <-time.After(time.Second):
		t.Fatal("no MARKET_REFRESHED event")
	}
}

func TestRefreshWithoutHistoryOrNews(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMarketCache(cache.NewMemoryCache(), time.Hour)

	r := NewRefresher(Deps{
		Candles:  fakeCandles{"SI=F": series(5, 29, 0.2)},
		Analyzer: analysis.NewAnalyzer(logging.Nop()),
		Cache:    mc,
	}, logging.Nop())

	res := r.Refresh(ctx, []string{"SILVER"})
	assert.Equal(t, []string{"SILVER"}, res.Updated)

	snap, err := mc.Get(ctx, "SILVER")
	require.NoError(t, err)
	// Too little history: price is still the last close, ATR is neutral
	assert.Equal(t, 29.0, snap.Price)
	assert.Equal(t, 0.0, snap.ATR())
}

func TestRefreshStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRefresher(Deps{
		Candles:  fakeCandles{},
		Analyzer: analysis.NewAnalyzer(logging.Nop()),
		Cache:    cache.NewMarketCache(cache.NewMemoryCache(), time.Hour),
	}, logging.Nop())

	res := r.Refresh(ctx, []string{"GOLD"})
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Failed)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}
