package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"metaapi-trading-bot/internal/database"
)

// MarketCache holds the latest snapshot per commodity
type MarketCache struct {
	cs  *CacheService
	ttl time.Duration
}

// NewMarketCache creates a market cache. Snapshots older than ttl are dropped.
func NewMarketCache(cs *CacheService, ttl time.Duration) *MarketCache {
	return &MarketCache{cs: cs, ttl: ttl}
}

// Put stores a commodity's latest snapshot
func (m *MarketCache) Put(ctx context.Context, snap *database.MarketSnapshot) error {
	return m.cs.SetJSON(ctx, MarketSnapshotKey(snap.Commodity), snap, m.ttl)
}

// Get returns the latest snapshot, ErrMiss when none is cached
func (m *MarketCache) Get(ctx context.Context, commodity string) (*database.MarketSnapshot, error) {
	var snap database.MarketSnapshot
	if err := m.cs.GetJSON(ctx, MarketSnapshotKey(commodity), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetMany returns the cached snapshots for the given commodities, skipping misses
func (m *MarketCache) GetMany(ctx context.Context, commodities []string) map[string]*database.MarketSnapshot {
	out := make(map[string]*database.MarketSnapshot, len(commodities))
	for _, c := range commodities {
		if snap, err := m.Get(ctx, c); err == nil {
			out[c] = snap
		}
	}
	return out
}

// AnalysisClock records when each strategy last analyzed each commodity.
// Swing and day are tracked independently.
type AnalysisClock struct {
	cs  *CacheService
	now func() time.Time
}

// NewAnalysisClock creates an analysis clock
func NewAnalysisClock(cs *CacheService) *AnalysisClock {
	return &AnalysisClock{cs: cs, now: time.Now}
}

// NewAnalysisClockWithNow creates an analysis clock with an injected clock
func NewAnalysisClockWithNow(cs *CacheService, now func() time.Time) *AnalysisClock {
	return &AnalysisClock{cs: cs, now: now}
}

// Due reports whether interval has passed since the last analysis
func (a *AnalysisClock) Due(ctx context.Context, strategy, commodity string, interval time.Duration) (bool, error) {
	raw, err := a.cs.Get(ctx, LastAnalysisKey(strategy, commodity))
	if errors.Is(err, ErrMiss) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true, nil
	}
	return a.now().Sub(time.Unix(0, nanos)) >= interval, nil
}

// MarkAnalyzed stores the current time as the last analysis
func (a *AnalysisClock) MarkAnalyzed(ctx context.Context, strategy, commodity string) error {
	key := LastAnalysisKey(strategy, commodity)
	if err := a.cs.Set(ctx, key, strconv.FormatInt(a.now().UnixNano(), 10), 24*time.Hour); err != nil {
		return fmt.Errorf("mark analyzed %s: %w", key, err)
	}
	return nil
}
