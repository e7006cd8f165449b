package risk

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoBalance    = errors.New("account balance must be positive")
	ErrNoStopRange  = errors.New("stop distance must be positive")
	ErrInvalidSizer = errors.New("contract factor and lot limits must be positive")
)

// SizerConfig holds the lot sizing constants for the connected brokers
type SizerConfig struct {
	ContractFactor float64 // Units of the instrument per lot
	MinLot         float64
	MaxLot         float64
}

// DefaultSizerConfig matches the conservative demo account sizing
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{ContractFactor: 100, MinLot: 0.01, MaxLot: 0.01}
}

// Sizer converts a risk budget into an order volume
type Sizer struct {
	config SizerConfig
}

// NewSizer creates a new position sizer
func NewSizer(config SizerConfig) (*Sizer, error) {
	if config.ContractFactor <= 0 || config.MinLot <= 0 || config.MaxLot < config.MinLot {
		return nil, ErrInvalidSizer
	}
	return &Sizer{config: config}, nil
}

// Config returns the sizer constants
func (s *Sizer) Config() SizerConfig {
	return s.config
}

// PositionVolume calculates lots so that hitting the stop loses riskPercent of
// the balance, clamped to [MinLot, MaxLot].
//
//	volume = max(minLot, min(maxLot, (balance*risk%/100) / (slDistance*factor)))
func (s *Sizer) PositionVolume(balance, riskPercent, slDistance float64) (float64, error) {
	if balance <= 0 {
		return 0, ErrNoBalance
	}
	if slDistance <= 0 {
		return 0, ErrNoStopRange
	}

	riskAmount := balance * (riskPercent / 100)
	raw := riskAmount / (slDistance * s.config.ContractFactor)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("volume for balance %.2f and stop %.5f: %w", balance, slDistance, ErrNoStopRange)
	}

	volume := math.Min(s.config.MaxLot, raw)
	volume = math.Max(s.config.MinLot, volume)
	return roundLot(volume), nil
}

// roundLot rounds to the broker's 0.01 lot step
func roundLot(v float64) float64 {
	return math.Round(v*100) / 100
}
