// Package marketdata refreshes price history, indicators and news for the
// enabled commodities and publishes the latest snapshot per commodity.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/internal/analysis"
	"metaapi-trading-bot/internal/cache"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/market"
)

// NewsSource supplies news sentiment per commodity
type NewsSource interface {
	Sentiment(ctx context.Context, commodity string) analysis.News
}

// HistoryWriter persists snapshots to the market history table
type HistoryWriter interface {
	InsertMarketSnapshot(ctx context.Context, snap *database.MarketSnapshot) error
}

// RefreshResult summarizes one refresh cycle
type RefreshResult struct {
	RefreshID string            `json:"refresh_id"`
	StartTime time.Time         `json:"start_time"`
	Duration  time.Duration     `json:"duration"`
	Updated   []string          `json:"updated"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Refresher pulls history for each commodity, analyzes it and stores the
// snapshot in the market cache
type Refresher struct {
	candles  analysis.CandleSource
	news     NewsSource
	analyzer *analysis.Analyzer
	cache    *cache.MarketCache
	history  HistoryWriter // nil when history is not persisted
	bus      *events.EventBus
	logger   zerolog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	latest     map[string]analysis.Result
	lastResult *RefreshResult
}

// Deps groups the refresher's collaborators
type Deps struct {
	Candles  analysis.CandleSource
	News     NewsSource
	Analyzer *analysis.Analyzer
	Cache    *cache.MarketCache
	History  HistoryWriter
	Bus      *events.EventBus
}

// NewRefresher creates a market data refresher
func NewRefresher(deps Deps, logger zerolog.Logger) *Refresher {
	return &Refresher{
		candles:  deps.Candles,
		news:     deps.News,
		analyzer: deps.Analyzer,
		cache:    deps.Cache,
		history:  deps.History,
		bus:      deps.Bus,
		logger:   logger.With().Str("component", "MarketData").Logger(),
		now:      time.Now,
		latest:   make(map[string]analysis.Result),
	}
}

// Refresh updates every commodity in order. A failed commodity is logged
// and skipped; its previous snapshot stays cached until its TTL.
func (r *Refresher) Refresh(ctx context.Context, commodities []string) *RefreshResult {
	start := r.now()
	res := &RefreshResult{
		RefreshID: fmt.Sprintf("refresh-%d", start.Unix()),
		StartTime: start,
		Failed:    make(map[string]string),
	}

	for _, id := range commodities {
		if ctx.Err() != nil {
			break
		}
		if err := r.refreshOne(ctx, id); err != nil {
			r.logger.Warn().Err(err).Str("commodity", id).Msg("Market refresh failed")
			res.Failed[id] = err.Error()
			continue
		}
		res.Updated = append(res.Updated, id)
	}

	res.Duration = r.now().Sub(start)

	r.mu.Lock()
	r.lastResult = res
	r.mu.Unlock()

	r.bus.PublishMarketRefreshed(len(res.Updated), len(res.Failed))
	r.logger.Info().
		Str("refresh_id", res.RefreshID).
		Int("updated", len(res.Updated)).
		Int("failed", len(res.Failed)).
		Dur("duration", res.Duration).
		Msg("Market data refreshed")
	return res
}

func (r *Refresher) refreshOne(ctx context.Context, id string) error {
	commodity, ok := market.Lookup(id)
	if !ok {
		return fmt.Errorf("unknown commodity %q", id)
	}

	candles, err := r.candles.Candles(ctx, commodity.YahooSymbol)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	news := analysis.NeutralNews()
	if r.news != nil {
		news = r.news.Sentiment(ctx, commodity.ID)
	}

	result := r.analyzer.Analyze(commodity.ID, candles, news)

	snap := &database.MarketSnapshot{
		Commodity:  commodity.ID,
		Price:      candles[len(candles)-1].Close,
		Indicators: result.Indicators,
		Signal:     result.Signal,
		Confidence: result.Confidence,
		Timestamp:  r.now().UTC(),
	}

	if err := r.cache.Put(ctx, snap); err != nil {
		// The local tier still holds the snapshot
		r.logger.Warn().Err(err).Str("commodity", commodity.ID).Msg("Snapshot cache write degraded")
	}

	if r.history != nil {
		if err := r.history.InsertMarketSnapshot(ctx, snap); err != nil {
			r.logger.Warn().Err(err).Str("commodity", commodity.ID).Msg("Failed to persist market history")
		}
	}

	r.mu.Lock()
	r.latest[commodity.ID] = result
	r.mu.Unlock()
	return nil
}

// Latest returns the most recent analysis for a commodity
func (r *Refresher) Latest(commodity string) (analysis.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.latest[commodity]
	return res, ok
}

// LastResult returns the summary of the most recent refresh, nil before the first
func (r *Refresher) LastResult() *RefreshResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastResult
}
