// Package bot runs the trading loop: refresh market data, monitor open
// positions, analyze and open trades per strategy, then expire stale day
// positions.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/metrics"
)

var (
	ErrNoSettings     = errors.New("trading settings not found")
	ErrNoCredentials  = errors.New("no active platform has broker credentials")
	ErrAlreadyRunning = errors.New("bot is already running")
	ErrNotRunning     = errors.New("bot is not running")
)

type platformRegistry interface {
	Has(platform string) bool
}

// Status is the operator-visible loop state
type Status struct {
	Running       bool       `json:"running"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Iterations    int64      `json:"iterations"`
	LastIteration *time.Time `json:"last_iteration,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	OpenPositions int        `json:"open_positions"`
	Breaker       string     `json:"circuit_breaker,omitempty"`
}

// Manager owns the loop goroutine. Start and Stop are serialized and a
// second Start while running is refused.
type Manager struct {
	rt     *Runtime
	logger zerolog.Logger

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	startedAt     time.Time
	iterations    int64
	lastIteration time.Time
	lastError     string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewManager creates a stopped manager
func NewManager(rt *Runtime, logger zerolog.Logger) *Manager {
	return &Manager{
		rt:     rt,
		logger: logger.With().Str("component", "TradingBot").Logger(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// sleepCtx waits for d and reports false when ctx ends first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// preflight verifies that the loop can run at all
func (m *Manager) preflight(ctx context.Context) (*database.Settings, error) {
	settings, err := m.rt.Store.GetSettings(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoSettings
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	reg, ok := m.rt.Gateway.(platformRegistry)
	if !ok {
		return settings, nil
	}
	for _, p := range settings.ActivePlatforms {
		if reg.Has(p) {
			return settings, nil
		}
	}
	return nil, fmt.Errorf("%w (active: %v)", ErrNoCredentials, settings.ActivePlatforms)
}

// Start launches the loop. ctx is only used for the preflight checks; the
// loop runs until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	settings, err := m.preflight(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Bot failed to start")
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.startedAt = m.now()
	m.iterations = 0
	m.lastError = ""

	metrics.SetRunning(true)
	m.rt.Bus.PublishBotStatus(true, "started")
	m.logger.Info().
		Strs("platforms", settings.ActivePlatforms).
		Bool("auto_trading", settings.AutoTrading).
		Bool("swing", settings.Swing.Enabled).
		Bool("day", settings.Day.Enabled).
		Msg("Trading bot started")

	go m.loop(loopCtx, m.done)
	return nil
}

// Stop cancels the loop and waits for the current iteration to finish
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	return nil
}

// IsRunning reports whether the loop goroutine is active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns the loop state and the number of OPEN trade records
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	s := Status{
		Running:    m.running,
		Iterations: m.iterations,
		LastError:  m.lastError,
	}
	if m.running {
		started := m.startedAt
		s.StartedAt = &started
	}
	if !m.lastIteration.IsZero() {
		last := m.lastIteration
		s.LastIteration = &last
	}
	m.mu.Unlock()

	if open, err := m.rt.Store.ListTrades(ctx, database.TradeFilter{Status: database.StatusOpen}); err == nil {
		s.OpenPositions = len(open)
	}
	if m.rt.Breaker != nil {
		s.Breaker = string(m.rt.Breaker.GetState())
	}
	return s
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()

		metrics.SetRunning(false)
		m.rt.Bus.PublishBotStatus(false, "stopped")
		m.logger.Info().Msg("Trading bot stopped")
		close(done)
	}()

	for {
		wait, err := m.safeIteration(ctx)
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		m.lastIteration = m.now()
		if err != nil {
			m.lastError = err.Error()
		}
		m.mu.Unlock()

		if err != nil {
			metrics.LoopErrors.Inc()
			m.rt.Bus.PublishError("bot", err.Error())
			m.logger.Error().Err(err).Dur("backoff", m.rt.Config.ErrorBackoff()).Msg("Bot iteration failed")
			wait = m.rt.Config.ErrorBackoff()
		}

		if !m.sleep(ctx, wait) {
			return
		}
	}
}

// safeIteration runs one iteration and converts a panic into an error
func (m *Manager) safeIteration(ctx context.Context) (wait time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in bot iteration: %v", r)
		}
	}()
	return m.Tick(ctx)
}
