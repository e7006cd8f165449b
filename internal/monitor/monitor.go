// Package monitor reconciles live broker positions with the trade store and
// closes positions whose stop-loss or take-profit has been reached.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/logging"
	"metaapi-trading-bot/internal/metrics"
	"metaapi-trading-bot/internal/risk"
	"metaapi-trading-bot/internal/strategy"
)

// ErrNoLevels is returned when neither stored nor derived levels exist
var ErrNoLevels = errors.New("cannot derive stop levels")

// Store is the trade store surface the monitor uses
type Store interface {
	GetTrade(ctx context.Context, platform, ticket string) (*database.TradeRecord, error)
	CloseTrade(ctx context.Context, req database.CloseRequest) (*database.TradeRecord, error)
	GetTradeSettings(ctx context.Context, ticket string) (*database.TradeSettings, error)
	UpsertTradeSettings(ctx context.Context, ts *database.TradeSettings) error
	CreateTradeSettingsIfAbsent(ctx context.Context, ts *database.TradeSettings) (bool, error)
}

// LossRecorder receives the P/L percent of every closed trade
type LossRecorder interface {
	RecordTrade(pnlPercent float64)
}

// Monitor checks open positions against their SL/TP every tick
type Monitor struct {
	gateway broker.Gateway
	store   Store
	breaker LossRecorder // optional
	bus     *events.EventBus
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a position monitor
func New(gateway broker.Gateway, store Store, breaker LossRecorder, bus *events.EventBus, logger zerolog.Logger) *Monitor {
	return &Monitor{
		gateway: gateway,
		store:   store,
		breaker: breaker,
		bus:     bus,
		logger:  logger.With().Str("component", "PositionMonitor").Logger(),
		now:     time.Now,
	}
}

// Run checks every position on the active platforms and returns how many
// were closed. Failures are isolated per platform and per position.
func (m *Monitor) Run(ctx context.Context, settings *database.Settings) int {
	closed := 0
	for _, platform := range settings.ActivePlatforms {
		if ctx.Err() != nil {
			break
		}

		positions, err := m.gateway.OpenPositions(ctx, platform)
		if err != nil {
			m.logger.Warn().Err(err).Str("platform", platform).Msg("Failed to fetch positions")
			continue
		}

		for _, pos := range positions {
			ok, err := m.checkPosition(ctx, settings, pos)
			if err != nil {
				m.logger.Error().Err(err).
					Str("platform", platform).
					Str("ticket", pos.Ticket).
					Msg("Position check failed")
			}
			if ok {
				closed++
			}
		}
	}
	return closed
}

// checkPosition evaluates one position and closes it when a level is hit
func (m *Monitor) checkPosition(ctx context.Context, settings *database.Settings, pos broker.Position) (bool, error) {
	log := logging.PositionLogger(m.logger, pos.Platform, pos.Ticket, pos.Symbol, string(pos.Direction))

	rec, err := m.store.GetTrade(ctx, pos.Platform, pos.Ticket)
	switch {
	case errors.Is(err, database.ErrNotFound):
		rec = nil
	case err != nil:
		return false, fmt.Errorf("load trade record: %w", err)
	case rec.Status == database.StatusClosed:
		// The broker may still list a ticket we just closed
		log.Debug().Msg("Already closed, skipping")
		return false, nil
	}

	kind := strategy.Swing
	if rec != nil {
		kind = strategy.Normalize(rec.Strategy)
	}
	cfg := settings.Strategy(kind)

	levels, persisted, err := m.resolveLevels(ctx, pos, rec, kind, cfg)
	if err != nil {
		return false, err
	}

	if settings.UseTrailingStop && persisted != nil {
		levels.StopLoss = m.trail(ctx, log, pos, persisted, levels.StopLoss, settings.TrailingStopDistancePercent)
	}

	reason := Trigger(pos.Direction, pos.CurrentPrice, levels)
	if reason == "" {
		return false, nil
	}

	log.Info().
		Str("reason", reason).
		Float64("price", pos.CurrentPrice).
		Float64("stop_loss", levels.StopLoss).
		Float64("take_profit", levels.TakeProfit).
		Msg("Level reached, closing position")

	return m.closePosition(ctx, pos, rec, kind, reason)
}

// resolveLevels picks the effective SL/TP: stored levels first, then the
// strategy's percent rule. The first time a ticket is seen the rule's levels
// are persisted, once. The returned settings document is nil when nothing
// is stored for the ticket.
func (m *Monitor) resolveLevels(ctx context.Context, pos broker.Position, rec *database.TradeRecord, kind strategy.Kind, cfg strategy.Config) (strategy.Levels, *database.TradeSettings, error) {
	entry := pos.EntryPrice
	if entry <= 0 && rec != nil {
		entry = rec.EntryPrice
	}
	defaults, defErr := cfg.Default(string(pos.Direction), entry)

	ts, err := m.store.GetTradeSettings(ctx, pos.Ticket)
	switch {
	case err == nil && ts.HasLevels():
		levels := defaults
		if ts.StopLoss != nil {
			levels.StopLoss = *ts.StopLoss
		}
		if ts.TakeProfit != nil {
			levels.TakeProfit = *ts.TakeProfit
		}
		return levels, ts, nil

	case errors.Is(err, database.ErrNotFound):
		if defErr != nil {
			return strategy.Levels{}, nil, fmt.Errorf("%w: %v", ErrNoLevels, defErr)
		}
		sl, tp := defaults.StopLoss, defaults.TakeProfit
		auto := &database.TradeSettings{
			Ticket:     pos.Ticket,
			Platform:   pos.Platform,
			StopLoss:   &sl,
			TakeProfit: &tp,
			Strategy:   string(kind),
			Source:     database.SourceAuto,
		}
		created, err := m.store.CreateTradeSettingsIfAbsent(ctx, auto)
		if err != nil {
			m.logger.Warn().Err(err).Str("ticket", pos.Ticket).Msg("Failed to persist default levels")
			return defaults, nil, nil
		}
		if created {
			m.logger.Info().
				Str("ticket", pos.Ticket).
				Str("strategy", string(kind)).
				Float64("stop_loss", sl).
				Float64("take_profit", tp).
				Msg("Persisted default levels")
		}
		return defaults, auto, nil

	case err != nil:
		m.logger.Warn().Err(err).Str("ticket", pos.Ticket).Msg("Trade settings unavailable, using percent rule")
	}

	if defErr != nil {
		return strategy.Levels{}, nil, fmt.Errorf("%w: %v", ErrNoLevels, defErr)
	}
	return defaults, ts, nil
}

// trail ratchets the stored stop toward the price and persists a move
func (m *Monitor) trail(ctx context.Context, log zerolog.Logger, pos broker.Position, ts *database.TradeSettings, stop, distancePercent float64) float64 {
	update := risk.Trail(risk.TrailingConfig{Enabled: true, DistancePercent: distancePercent},
		string(pos.Direction), stop, pos.CurrentPrice)
	if !update.Moved {
		return stop
	}

	newStop := update.NewStopLoss
	ts.StopLoss = &newStop
	if err := m.store.UpsertTradeSettings(ctx, ts); err != nil {
		log.Warn().Err(err).Msg("Failed to persist trailing stop")
		return stop
	}

	log.Info().Float64("old_stop", update.OldStopLoss).Float64("new_stop", newStop).Msg("Trailing stop moved")
	m.bus.PublishStopMoved(pos.Platform, pos.Ticket, update.OldStopLoss, newStop)
	return newStop
}

// Trigger returns the close reason for the price, or "" to hold.
// Take-profit is checked first and wins when both levels are crossed.
func Trigger(direction broker.Direction, price float64, levels strategy.Levels) string {
	if price <= 0 {
		return ""
	}
	if direction == broker.Sell {
		if levels.TakeProfit > 0 && price <= levels.TakeProfit {
			return database.ReasonTakeProfit
		}
		if levels.StopLoss > 0 && price >= levels.StopLoss {
			return database.ReasonStopLoss
		}
		return ""
	}
	if levels.TakeProfit > 0 && price >= levels.TakeProfit {
		return database.ReasonTakeProfit
	}
	if levels.StopLoss > 0 && price <= levels.StopLoss {
		return database.ReasonStopLoss
	}
	return ""
}

// RealizedPnL prefers the broker's profit and falls back to the price move
// times volume, signed by direction
func RealizedPnL(pos broker.Position) float64 {
	if pos.Profit != nil {
		return *pos.Profit
	}
	move := decimal.NewFromFloat(pos.CurrentPrice).Sub(decimal.NewFromFloat(pos.EntryPrice))
	pnl := move.Mul(decimal.NewFromFloat(pos.Volume)).Mul(decimal.NewFromFloat(pos.Direction.Sign()))
	f, _ := pnl.Round(8).Float64()
	return f
}

// closePosition closes at the broker and, only on success, records the close
func (m *Monitor) closePosition(ctx context.Context, pos broker.Position, rec *database.TradeRecord, kind strategy.Kind, reason string) (bool, error) {
	pnl := RealizedPnL(pos)

	if err := m.gateway.ClosePosition(ctx, pos.Platform, pos.Ticket); err != nil {
		return false, fmt.Errorf("close %s at broker: %w", reason, err)
	}

	entry, qty, opened := pos.EntryPrice, pos.Volume, pos.OpenedAt
	if rec != nil {
		if entry <= 0 {
			entry = rec.EntryPrice
		}
		if qty <= 0 {
			qty = rec.Quantity
		}
		if opened.IsZero() {
			opened = rec.OpenedAt
		}
	}

	_, err := m.store.CloseTrade(ctx, database.CloseRequest{
		Platform:   pos.Platform,
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Strategy:   string(kind),
		Direction:  string(pos.Direction),
		EntryPrice: entry,
		Quantity:   qty,
		OpenedAt:   opened,
		ExitPrice:  pos.CurrentPrice,
		ProfitLoss: pnl,
		Reason:     reason,
		ClosedBy:   database.ClosedByBot,
		ClosedAt:   m.now().UTC(),
	})
	if err != nil && !errors.Is(err, database.ErrAlreadyClosed) {
		// The broker side is closed; the next tick sees no position for it
		m.logger.Error().Err(err).Str("ticket", pos.Ticket).Msg("Position closed but record update failed")
	}

	metrics.TradesClosed.WithLabelValues(reason, string(kind)).Inc()
	m.bus.PublishTradeClosed(pos.Platform, pos.Ticket, pos.Symbol, reason, pos.CurrentPrice, pnl)

	if m.breaker != nil {
		if notional := entry * qty; notional > 0 {
			m.breaker.RecordTrade(pnl / notional * 100)
		}
	}

	m.logger.Info().
		Str("platform", pos.Platform).
		Str("ticket", pos.Ticket).
		Str("reason", reason).
		Float64("exit_price", pos.CurrentPrice).
		Float64("pnl", pnl).
		Msg("Position closed")
	return true, nil
}
