package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"metaapi-trading-bot/internal/events"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Trading halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// Config holds circuit breaker configuration
type Config struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`      // Max loss % per hour
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"` // Max losing trades in a row
	CooldownMinutes      int     `json:"cooldown_minutes"`       // Cooldown after trip
	MaxDailyLoss         float64 `json:"max_daily_loss"`         // Max daily loss %
	MaxDailyTrades       int     `json:"max_daily_trades"`       // Max closed trades per day
}

// DefaultConfig returns safe defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		MaxLossPerHour:       3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxDailyLoss:         5.0,
		MaxDailyTrades:       100,
	}
}

// CircuitBreaker halts new entries after a run of losing closes
type CircuitBreaker struct {
	config            *Config
	bus               *events.EventBus
	now               func() time.Time
	state             BreakerState
	consecutiveLosses int
	hourlyLoss        float64
	dailyLoss         float64
	dailyTrades       int
	lastTripTime      time.Time
	hourlyResetTime   time.Time
	dailyResetTime    time.Time
	tripReason        string
	mu                sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker. bus may be nil.
func NewCircuitBreaker(config *Config, bus *events.EventBus) *CircuitBreaker {
	return NewCircuitBreakerWithClock(config, bus, time.Now)
}

// NewCircuitBreakerWithClock creates a circuit breaker with an injected clock
func NewCircuitBreakerWithClock(config *Config, bus *events.EventBus, now func() time.Time) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	t := now()
	return &CircuitBreaker{
		config:          config,
		bus:             bus,
		now:             now,
		state:           StateClosed,
		hourlyResetTime: t.Add(time.Hour),
		dailyResetTime:  t.Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}

// CanTrade checks if trading is allowed
func (cb *CircuitBreaker) CanTrade() (bool, string) {
	if cb == nil || !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()

	if cb.state == StateOpen {
		elapsed := cb.now().Sub(cb.lastTripTime)
		cooldown := time.Duration(cb.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), cb.tripReason)
		}

		// Cooldown passed, allow one probe trade
		cb.state = StateHalfOpen
		cb.consecutiveLosses = 0
		return true, ""
	}

	if cb.state == StateHalfOpen {
		return true, ""
	}

	if cb.hourlyLoss >= cb.config.MaxLossPerHour {
		return false, fmt.Sprintf("hourly loss limit reached: %.2f%% >= %.2f%%",
			cb.hourlyLoss, cb.config.MaxLossPerHour)
	}

	if cb.dailyLoss >= cb.config.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached: %.2f%% >= %.2f%%",
			cb.dailyLoss, cb.config.MaxDailyLoss)
	}

	if cb.config.MaxDailyTrades > 0 && cb.dailyTrades >= cb.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d trades", cb.dailyTrades)
	}

	return true, ""
}

// RecordTrade records a closed trade's P/L as a percent of its notional
func (cb *CircuitBreaker) RecordTrade(pnlPercent float64) {
	if cb == nil || !cb.config.Enabled {
		return
	}
	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()
	cb.dailyTrades++

	if pnlPercent < 0 {
		cb.consecutiveLosses++
		cb.hourlyLoss += -pnlPercent
		cb.dailyLoss += -pnlPercent

		if cb.state == StateHalfOpen {
			cb.trip("loss after cooldown")
			return
		}
	} else {
		cb.consecutiveLosses = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.hourlyLoss = 0
			cb.publish("recovered")
		}
	}

	cb.checkAndTrip()
}

func (cb *CircuitBreaker) checkAndTrip() {
	var reason string

	if cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		reason = fmt.Sprintf("consecutive losses: %d", cb.consecutiveLosses)
	} else if cb.hourlyLoss >= cb.config.MaxLossPerHour {
		reason = fmt.Sprintf("hourly loss: %.2f%%", cb.hourlyLoss)
	} else if cb.dailyLoss >= cb.config.MaxDailyLoss {
		reason = fmt.Sprintf("daily loss: %.2f%%", cb.dailyLoss)
	}

	if reason != "" && cb.state != StateOpen {
		cb.trip(reason)
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
	cb.publish(reason)
}

// publish must be called with the lock held
func (cb *CircuitBreaker) publish(reason string) {
	cb.bus.PublishCircuitBreaker(string(cb.state), reason, cb.consecutiveLosses, cb.hourlyLoss, cb.dailyLoss)
}

// resetCountersIfNeeded resets time-based counters
func (cb *CircuitBreaker) resetCountersIfNeeded() {
	now := cb.now()

	if now.After(cb.hourlyResetTime) {
		cb.hourlyLoss = 0
		cb.hourlyResetTime = now.Add(time.Hour)
	}

	if now.After(cb.dailyResetTime) {
		cb.dailyLoss = 0
		cb.dailyTrades = 0
		cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// ForceReset manually resets the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveLosses = 0
	cb.hourlyLoss = 0
	cb.tripReason = ""
	cb.publish("manual_reset")
}

// GetState returns current breaker state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"enabled":            cb.config.Enabled,
		"state":              string(cb.state),
		"consecutive_losses": cb.consecutiveLosses,
		"hourly_loss":        cb.hourlyLoss,
		"daily_loss":         cb.dailyLoss,
		"daily_trades":       cb.dailyTrades,
		"trip_reason":        cb.tripReason,
		"last_trip_time":     cb.lastTripTime,
	}
}
