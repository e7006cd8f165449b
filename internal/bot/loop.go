package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/executor"
	"metaapi-trading-bot/internal/logging"
	"metaapi-trading-bot/internal/metrics"
	"metaapi-trading-bot/internal/strategy"
)

// TickSummary counts what one iteration did
type TickSummary struct {
	Refreshed int
	Closed    int
	Opened    map[strategy.Kind]int
	Expired   int
}

// Tick runs one loop iteration and returns how long to sleep before the next.
// An error means the iteration could not run and the caller backs off.
func (m *Manager) Tick(ctx context.Context) (time.Duration, error) {
	ctx, log := logging.WithTraceContext(ctx, m.logger)

	settings, err := m.rt.Store.GetSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("reload settings: %w", err)
	}

	if !settings.AutoTrading {
		log.Debug().Msg("Auto trading disabled, waiting")
		return m.rt.Config.DisabledInterval(), nil
	}

	if len(settings.ActivePlatforms) == 0 || len(settings.EnabledCommodities) == 0 {
		log.Warn().
			Int("platforms", len(settings.ActivePlatforms)).
			Int("commodities", len(settings.EnabledCommodities)).
			Msg("Nothing to trade, check settings")
		return m.rt.Config.TickInterval(), nil
	}

	start := m.now()
	summary := m.runPhases(ctx, log, settings)

	elapsed := m.now().Sub(start)
	metrics.LoopIterations.Inc()
	metrics.TickDuration.Observe(elapsed.Seconds())

	m.mu.Lock()
	m.iterations++
	iteration := m.iterations
	m.mu.Unlock()

	log.Info().
		Int64("iteration", iteration).
		Int("refreshed", summary.Refreshed).
		Int("closed", summary.Closed).
		Int("opened_swing", summary.Opened[strategy.Swing]).
		Int("opened_day", summary.Opened[strategy.Day]).
		Int("expired", summary.Expired).
		Dur("duration", elapsed).
		Msg("Iteration complete")

	return m.rt.Config.TickInterval(), nil
}

func (m *Manager) runPhases(ctx context.Context, log zerolog.Logger, settings *database.Settings) TickSummary {
	summary := TickSummary{Opened: make(map[strategy.Kind]int)}

	refresh := m.rt.Refresher.Refresh(ctx, settings.EnabledCommodities)
	summary.Refreshed = len(refresh.Updated)

	summary.Closed = m.rt.Monitor.Run(ctx, settings)

	for _, kind := range strategy.All() {
		if ctx.Err() != nil {
			return summary
		}
		summary.Opened[kind] = m.runStrategy(ctx, log, kind, settings)
	}

	summary.Expired = m.rt.Monitor.SweepExpired(ctx, settings)
	return summary
}

// runStrategy analyzes every enabled commodity for one strategy and opens
// trades for accepted signals. It returns the number of trades opened.
func (m *Manager) runStrategy(ctx context.Context, log zerolog.Logger, kind strategy.Kind, settings *database.Settings) int {
	cfg := settings.Strategy(kind)
	if !cfg.Enabled {
		return 0
	}
	log = log.With().Str("strategy", string(kind)).Logger()

	opened := 0
	for _, commodity := range settings.EnabledCommodities {
		if ctx.Err() != nil {
			break
		}

		if !m.rt.Allocator.Due(ctx, kind, commodity, cfg.AnalysisInterval()) {
			continue
		}

		res, ok := m.rt.Refresher.Latest(commodity)
		if !ok {
			continue
		}
		m.rt.Allocator.MarkAnalyzed(ctx, kind, commodity)

		if !res.IsDirectional() || !cfg.Accepts(res.Confidence) {
			continue
		}

		decision, err := m.rt.Allocator.MayOpen(ctx, kind, settings)
		if err != nil {
			log.Warn().Err(err).Msg("Allocation check failed")
			return opened
		}
		if !decision.Allowed {
			// Nothing frees capacity until the next tick
			metrics.ExecutionRefusals.WithLabelValues(decision.Reason).Inc()
			log.Debug().Str("reason", decision.Reason).Msg("Strategy at capacity")
			return opened
		}

		rec, err := m.rt.Executor.Execute(ctx, executor.Request{
			Commodity: commodity,
			Strategy:  kind,
			Analysis:  res,
			Settings:  settings,
		})
		if err != nil {
			logRefusal(log, commodity, err)
			continue
		}

		opened++
		log.Info().
			Str("commodity", commodity).
			Str("ticket", rec.Ticket).
			Str("platform", rec.Platform).
			Float64("confidence", res.Confidence).
			Msg("Signal executed")
	}
	return opened
}

func logRefusal(log zerolog.Logger, commodity string, err error) {
	switch {
	case errors.Is(err, executor.ErrMarketClosed),
		errors.Is(err, executor.ErrDeclinedByLLM),
		errors.Is(err, executor.ErrSymbolUnavailable):
		log.Info().Str("commodity", commodity).Err(err).Msg("Trade skipped")
	case errors.Is(err, executor.ErrCircuitOpen),
		errors.Is(err, executor.ErrBrokerRejected),
		errors.Is(err, executor.ErrBalanceUnavailable),
		errors.Is(err, executor.ErrMissingMarketData):
		log.Warn().Str("commodity", commodity).Err(err).Msg("Trade refused")
	default:
		log.Error().Str("commodity", commodity).Err(err).Msg("Trade execution failed")
	}
}
