package strategy

import (
	"strings"
	"time"
)

// Kind identifies one of the two concurrently running trading strategies
type Kind string

const (
	Swing Kind = "swing"
	Day   Kind = "day"
)

// All returns the strategies in the order the bot evaluates them
func All() []Kind {
	return []Kind{Swing, Day}
}

// Normalize maps a stored strategy tag to a Kind. Anything unknown or empty is
// treated as swing, so records written before the tag existed keep working.
func Normalize(tag string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(tag))) {
	case Day:
		return Day
	default:
		return Swing
	}
}

// Config holds the per-strategy trading parameters
type Config struct {
	Enabled                 bool    `json:"enabled"`
	MinConfidence           float64 `json:"min_confidence"` // 0-1
	MaxPositions            int     `json:"max_positions"`
	RiskPerTradePercent     float64 `json:"risk_per_trade_percent"`
	StopLossPercent         float64 `json:"stop_loss_percent"`
	TakeProfitPercent       float64 `json:"take_profit_percent"`
	ATRMultiplierSL         float64 `json:"atr_multiplier_sl"`
	ATRMultiplierTP         float64 `json:"atr_multiplier_tp"`
	MaxHoldTimeHours        float64 `json:"max_hold_time"`
	AnalysisIntervalSeconds int     `json:"analysis_interval_seconds"`
}

// DefaultSwing returns the swing trading defaults
func DefaultSwing() Config {
	return Config{
		Enabled:                 true,
		MinConfidence:           0.45,
		MaxPositions:            8,
		RiskPerTradePercent:     1.5,
		StopLossPercent:         2.0,
		TakeProfitPercent:       4.0,
		ATRMultiplierSL:         2.0,
		ATRMultiplierTP:         3.0,
		MaxHoldTimeHours:        168,
		AnalysisIntervalSeconds: 30,
	}
}

// DefaultDay returns the day trading defaults
func DefaultDay() Config {
	return Config{
		Enabled:                 false,
		MinConfidence:           0.25,
		MaxPositions:            15,
		RiskPerTradePercent:     0.5,
		StopLossPercent:         1.5,
		TakeProfitPercent:       2.5,
		ATRMultiplierSL:         1.5,
		ATRMultiplierTP:         2.0,
		MaxHoldTimeHours:        1,
		AnalysisIntervalSeconds: 30,
	}
}

// MaxHold returns the maximum hold time as a duration, zero when unlimited
func (c Config) MaxHold() time.Duration {
	if c.MaxHoldTimeHours <= 0 {
		return 0
	}
	return time.Duration(c.MaxHoldTimeHours * float64(time.Hour))
}

// AnalysisInterval returns the minimum time between analyses of one instrument
func (c Config) AnalysisInterval() time.Duration {
	return time.Duration(c.AnalysisIntervalSeconds) * time.Second
}

// Accepts reports whether a 0-100 analysis confidence clears the 0-1 threshold
func (c Config) Accepts(confidence float64) bool {
	return confidence/100 >= c.MinConfidence
}
