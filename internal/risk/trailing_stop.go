package risk

import "strings"

// TrailingConfig holds trailing stop configuration
type TrailingConfig struct {
	Enabled         bool
	DistancePercent float64 // Distance from the current price
}

// StopUpdate represents a stop loss update
type StopUpdate struct {
	OldStopLoss float64
	NewStopLoss float64
	Moved       bool
}

// Trail ratchets a stop toward the current price. The stop is persisted by the
// caller, so the high/low water mark is implied by the stop itself: it only ever
// moves up for longs and down for shorts.
func Trail(cfg TrailingConfig, direction string, currentStop, currentPrice float64) StopUpdate {
	update := StopUpdate{OldStopLoss: currentStop, NewStopLoss: currentStop}
	if !cfg.Enabled || cfg.DistancePercent <= 0 || currentPrice <= 0 {
		return update
	}

	distance := currentPrice * (cfg.DistancePercent / 100)

	if strings.EqualFold(direction, "SELL") {
		candidate := currentPrice + distance
		// Only move stop loss down for shorts
		if currentStop <= 0 || candidate < currentStop {
			update.NewStopLoss = candidate
			update.Moved = true
		}
		return update
	}

	candidate := currentPrice - distance
	// Only move stop loss up, never down
	if candidate > currentStop {
		update.NewStopLoss = candidate
		update.Moved = true
	}
	return update
}
