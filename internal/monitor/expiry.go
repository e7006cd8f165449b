package monitor

import (
	"context"
	"errors"

	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/strategy"
)

// SweepExpired force-closes day-strategy positions held longer than the day
// strategy's max hold time. Swing positions are never expired here.
func (m *Monitor) SweepExpired(ctx context.Context, settings *database.Settings) int {
	maxHold := settings.Day.MaxHold()
	if maxHold <= 0 {
		return 0
	}

	closed := 0
	now := m.now()
	for _, platform := range settings.ActivePlatforms {
		if ctx.Err() != nil {
			break
		}

		positions, err := m.gateway.OpenPositions(ctx, platform)
		if err != nil {
			m.logger.Warn().Err(err).Str("platform", platform).Msg("Failed to fetch positions for expiry sweep")
			continue
		}

		for _, pos := range positions {
			rec, err := m.store.GetTrade(ctx, pos.Platform, pos.Ticket)
			if err != nil {
				if !errors.Is(err, database.ErrNotFound) {
					m.logger.Warn().Err(err).Str("ticket", pos.Ticket).Msg("Failed to load trade for expiry")
				}
				continue
			}
			if rec.Status != database.StatusOpen || strategy.Normalize(rec.Strategy) != strategy.Day {
				continue
			}

			opened := pos.OpenedAt
			if opened.IsZero() {
				opened = rec.OpenedAt
			}
			if opened.IsZero() || now.Sub(opened) <= maxHold {
				continue
			}

			m.logger.Info().
				Str("ticket", pos.Ticket).
				Dur("held", now.Sub(opened)).
				Dur("max_hold", maxHold).
				Msg("Day position exceeded max hold time")

			ok, err := m.closePosition(ctx, pos, rec, strategy.Day, database.ReasonMaxHoldTime)
			if err != nil {
				m.logger.Error().Err(err).Str("ticket", pos.Ticket).Msg("Expiry close failed")
			}
			if ok {
				closed++
			}
		}
	}
	return closed
}
