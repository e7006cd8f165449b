package strategy

import (
	"errors"
	"strings"
)

var ErrInvalidLevelInput = errors.New("entry price, percentages and ATR multipliers must be positive")

// Levels holds a stop-loss and take-profit pair
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

func isSell(direction string) bool {
	return strings.EqualFold(direction, "SELL")
}

// PercentLevels derives SL/TP from the entry price using the strategy's percent rule.
// For BUY the stop sits below the entry and the target above; SELL mirrors it.
func PercentLevels(direction string, entry, slPercent, tpPercent float64) (Levels, error) {
	if entry <= 0 || slPercent <= 0 || tpPercent <= 0 {
		return Levels{}, ErrInvalidLevelInput
	}
	if isSell(direction) {
		return Levels{
			StopLoss:   entry * (1 + slPercent/100),
			TakeProfit: entry * (1 - tpPercent/100),
		}, nil
	}
	return Levels{
		StopLoss:   entry * (1 - slPercent/100),
		TakeProfit: entry * (1 + tpPercent/100),
	}, nil
}

// Default applies this strategy's percent rule to an entry price
func (c Config) Default(direction string, entry float64) (Levels, error) {
	return PercentLevels(direction, entry, c.StopLossPercent, c.TakeProfitPercent)
}

// ATRDistances returns the stop and target distances in price units
func (c Config) ATRDistances(atr float64) (slDistance, tpDistance float64) {
	return atr * c.ATRMultiplierSL, atr * c.ATRMultiplierTP
}

// ATRLevels places SL/TP at the ATR distances around the entry
func (c Config) ATRLevels(direction string, entry, atr float64) (Levels, error) {
	if entry <= 0 || atr <= 0 || c.ATRMultiplierSL <= 0 || c.ATRMultiplierTP <= 0 {
		return Levels{}, ErrInvalidLevelInput
	}
	sl, tp := c.ATRDistances(atr)
	if isSell(direction) {
		return Levels{StopLoss: entry + sl, TakeProfit: entry - tp}, nil
	}
	return Levels{StopLoss: entry - sl, TakeProfit: entry + tp}, nil
}
