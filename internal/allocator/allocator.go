// Package allocator decides whether a strategy may open another position,
// bounding per-strategy position counts and the capital that swing and day
// together hold on each platform.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/cache"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/metrics"
	"metaapi-trading-bot/internal/strategy"
)

// ErrBalanceUnavailable is returned when a platform's balance cannot be used
var ErrBalanceUnavailable = errors.New("balance unavailable")

// Refusal reasons
const (
	ReasonDisabled     = "strategy_disabled"
	ReasonMaxPositions = "max_positions"
	ReasonCombinedCap  = "combined_balance_cap"
)

// TradeLister is the trade store surface the allocator reads
type TradeLister interface {
	ListTrades(ctx context.Context, filter database.TradeFilter) ([]*database.TradeRecord, error)
	CountOpenByStrategy(ctx context.Context, strategy string) (int, error)
}

// BalanceSource returns account figures per platform
type BalanceSource interface {
	AccountInfo(ctx context.Context, platform string) (*broker.AccountInfo, error)
}

// Decision is the allocator's answer for one strategy
type Decision struct {
	Allowed      bool    `json:"allowed"`
	Reason       string  `json:"reason,omitempty"`
	OpenCount    int     `json:"open_count"`
	MaxPositions int     `json:"max_positions"`
	MaxUsage     float64 `json:"max_usage_percent"`
	Cap          float64 `json:"cap_percent"`
	Platform     string  `json:"platform,omitempty"` // platform with the highest usage
}

// Allocator enforces position and capital limits across strategies
type Allocator struct {
	trades   TradeLister
	balances BalanceSource
	clock    *cache.AnalysisClock
	logger   zerolog.Logger
}

// New creates an allocator
func New(trades TradeLister, balances BalanceSource, clock *cache.AnalysisClock, logger zerolog.Logger) *Allocator {
	return &Allocator{
		trades:   trades,
		balances: balances,
		clock:    clock,
		logger:   logger.With().Str("component", "Allocator").Logger(),
	}
}

// MayOpen reports whether the strategy may open another position
func (a *Allocator) MayOpen(ctx context.Context, kind strategy.Kind, settings *database.Settings) (Decision, error) {
	cfg := settings.Strategy(kind)
	d := Decision{
		MaxPositions: cfg.MaxPositions,
		Cap:          settings.CombinedMaxBalancePercentPerPlatform,
	}

	if !cfg.Enabled {
		d.Reason = ReasonDisabled
		return d, nil
	}

	count, err := a.trades.CountOpenByStrategy(ctx, string(kind))
	if err != nil {
		return d, fmt.Errorf("count open %s trades: %w", kind, err)
	}
	d.OpenCount = count
	metrics.OpenPositions.WithLabelValues(string(kind)).Set(float64(count))

	if count >= cfg.MaxPositions {
		d.Reason = ReasonMaxPositions
		a.logger.Info().Str("strategy", string(kind)).Int("open", count).Int("max", cfg.MaxPositions).
			Msg("Position limit reached")
		return d, nil
	}

	d.MaxUsage, d.Platform = a.MaxCombinedUsage(ctx, settings.ActivePlatforms)
	if d.MaxUsage >= d.Cap {
		d.Reason = ReasonCombinedCap
		a.logger.Info().Str("strategy", string(kind)).Str("platform", d.Platform).
			Float64("usage", d.MaxUsage).Float64("cap", d.Cap).
			Msg("Combined balance cap reached")
		return d, nil
	}

	d.Allowed = true
	return d, nil
}

// OpenExposure sums entry price times quantity over the OPEN records of a platform
func (a *Allocator) OpenExposure(ctx context.Context, platform string) (decimal.Decimal, error) {
	open, err := a.trades.ListTrades(ctx, database.TradeFilter{Status: database.StatusOpen, Platform: platform})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list open trades on %s: %w", platform, err)
	}

	used := decimal.Zero
	for _, t := range open {
		used = used.Add(decimal.NewFromFloat(t.EntryPrice).Mul(decimal.NewFromFloat(t.Quantity)))
	}
	return used, nil
}

// CombinedUsage returns the capital in OPEN records of both strategies as a
// percent of the platform balance
func (a *Allocator) CombinedUsage(ctx context.Context, platform string) (float64, error) {
	info, err := a.balances.AccountInfo(ctx, platform)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", platform, ErrBalanceUnavailable, err)
	}
	if info == nil || info.Balance <= 0 {
		return 0, fmt.Errorf("%s: %w: non-positive balance", platform, ErrBalanceUnavailable)
	}

	used, err := a.OpenExposure(ctx, platform)
	if err != nil {
		return 0, err
	}

	usage, _ := used.Div(decimal.NewFromFloat(info.Balance)).Mul(decimal.NewFromInt(100)).Float64()
	metrics.CombinedUsage.WithLabelValues(platform).Set(usage)
	return usage, nil
}

// MaxCombinedUsage returns the highest combined usage over the platforms.
// Platforms without a usable balance are skipped.
func (a *Allocator) MaxCombinedUsage(ctx context.Context, platforms []string) (float64, string) {
	maxUsage := 0.0
	maxPlatform := ""
	for _, p := range platforms {
		usage, err := a.CombinedUsage(ctx, p)
		if err != nil {
			a.logger.Warn().Err(err).Str("platform", p).Msg("Skipping platform in combined usage")
			continue
		}
		if maxPlatform == "" || usage > maxUsage {
			maxUsage = usage
			maxPlatform = p
		}
	}
	return maxUsage, maxPlatform
}

// Due reports whether the strategy may analyze the commodity again.
// A cache failure counts as due so the loop keeps trading.
func (a *Allocator) Due(ctx context.Context, kind strategy.Kind, commodity string, interval time.Duration) bool {
	due, err := a.clock.Due(ctx, string(kind), commodity, interval)
	if err != nil {
		a.logger.Warn().Err(err).Str("strategy", string(kind)).Str("commodity", commodity).
			Msg("Analysis clock unavailable")
		return true
	}
	return due
}

// MarkAnalyzed records an analysis of the commodity by the strategy
func (a *Allocator) MarkAnalyzed(ctx context.Context, kind strategy.Kind, commodity string) {
	if err := a.clock.MarkAnalyzed(ctx, string(kind), commodity); err != nil {
		a.logger.Warn().Err(err).Str("strategy", string(kind)).Str("commodity", commodity).
			Msg("Failed to record analysis time")
	}
}
