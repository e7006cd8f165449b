package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/logging"
)

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	cs := NewMemoryCache()
	now := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return now }

	require.NoError(t, cs.Set(ctx, "k", "v", time.Minute))
	v, err := cs.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, err = cs.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDisabledRedisFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	cs := NewCacheService(ctx, config.RedisConfig{Enabled: false}, logging.Nop())
	assert.False(t, cs.IsHealthy())
	assert.False(t, cs.GetStats().RedisEnabled)

	require.NoError(t, cs.SetJSON(ctx, "obj", map[string]int{"a": 1}, 0))
	var got map[string]int
	require.NoError(t, cs.GetJSON(ctx, "obj", &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, cs.Delete(ctx, "obj"))
	assert.ErrorIs(t, cs.GetJSON(ctx, "obj", &got), ErrMiss)
}

func TestMarketCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMarketCache(NewMemoryCache(), time.Hour)

	require.NoError(t, mc.Put(ctx, &database.MarketSnapshot{
		Commodity:  "GOLD",
		Price:      2310.5,
		Indicators: map[string]float64{"atr": 12.5, "rsi": 55},
		Signal:     "HOLD",
	}))

	snap, err := mc.Get(ctx, "GOLD")
	require.NoError(t, err)
	assert.Equal(t, 2310.5, snap.Price)
	assert.Equal(t, 12.5, snap.ATR())

	_, err = mc.Get(ctx, "SILVER")
	assert.ErrorIs(t, err, ErrMiss)

	many := mc.GetMany(ctx, []string{"GOLD", "SILVER"})
	assert.Len(t, many, 1)
}

func TestAnalysisClockPerStrategy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)
	clock := NewAnalysisClockWithNow(NewMemoryCache(), func() time.Time { return now })

	due, err := clock.Due(ctx, "swing", "GOLD", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, due)

	require.NoError(t, clock.MarkAnalyzed(ctx, "swing", "GOLD"))

	due, err = clock.Due(ctx, "swing", "GOLD", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, due)

	// Day strategy has its own timer
	due, err = clock.Due(ctx, "day", "GOLD", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, due)

	now = now.Add(31 * time.Second)
	due, err = clock.Due(ctx, "swing", "GOLD", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, due)
}
