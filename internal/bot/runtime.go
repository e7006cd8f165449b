package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/ai/llm"
	"metaapi-trading-bot/internal/allocator"
	"metaapi-trading-bot/internal/analysis"
	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/cache"
	"metaapi-trading-bot/internal/circuit"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/executor"
	"metaapi-trading-bot/internal/market"
	"metaapi-trading-bot/internal/marketdata"
	"metaapi-trading-bot/internal/monitor"
	"metaapi-trading-bot/internal/risk"
)

// Runtime holds every component the trading loop and the API share. It is
// built once at startup and passed explicitly.
type Runtime struct {
	Config    config.BotConfig
	Store     database.Store
	Gateway   broker.Gateway
	Cache     *cache.CacheService
	Markets   *cache.MarketCache
	Calendar  *market.Calendar
	Refresher *marketdata.Refresher
	Monitor   *monitor.Monitor
	Allocator *allocator.Allocator
	Executor  *executor.Executor
	Breaker   *circuit.CircuitBreaker // nil when disabled
	Bus       *events.EventBus
}

// Build wires the runtime from configuration. The candle source defaults to
// the Yahoo feed when nil.
func Build(cfg *config.Config, store database.Store, gateway broker.Gateway, cs *cache.CacheService,
	candles analysis.CandleSource, bus *events.EventBus, logger zerolog.Logger) (*Runtime, error) {

	sizer, err := risk.NewSizer(risk.SizerConfig{
		ContractFactor: cfg.BotConfig.ContractFactor,
		MinLot:         cfg.BotConfig.MinLot,
		MaxLot:         cfg.BotConfig.MaxLot,
	})
	if err != nil {
		return nil, fmt.Errorf("position sizer: %w", err)
	}

	if candles == nil {
		candles = analysis.NewYahooFeed(cfg.MarketConfig)
	}

	rt := &Runtime{
		Config:   cfg.BotConfig,
		Store:    store,
		Gateway:  gateway,
		Cache:    cs,
		Markets:  cache.NewMarketCache(cs, time.Duration(cfg.MarketConfig.SnapshotTTLMins)*time.Minute),
		Calendar: market.NewCalendar(),
		Bus:      bus,
	}

	refresherDeps := marketdata.Deps{
		Candles:  candles,
		News:     analysis.NewNewsClient(cfg.NewsConfig, logger),
		Analyzer: analysis.NewAnalyzer(logger),
		Cache:    rt.Markets,
		Bus:      bus,
	}
	if cfg.MarketConfig.PersistHistory {
		refresherDeps.History = store
	}
	rt.Refresher = marketdata.NewRefresher(refresherDeps, logger)

	execDeps := executor.Deps{
		Gateway:   gateway,
		Store:     store,
		Hours:     rt.Calendar,
		Snapshots: rt.Markets,
		Sizer:     sizer,
		Bus:       bus,
	}

	// Only assign the breaker through the interfaces when it exists, so the
	// components never hold a typed nil
	var losses monitor.LossRecorder
	if cfg.CircuitBreakerConfig.Enabled {
		cb := cfg.CircuitBreakerConfig
		rt.Breaker = circuit.NewCircuitBreaker(&circuit.Config{
			Enabled:              cb.Enabled,
			MaxLossPerHour:       cb.MaxLossPerHour,
			MaxConsecutiveLosses: cb.MaxConsecutiveLosses,
			CooldownMinutes:      cb.CooldownMinutes,
			MaxDailyLoss:         cb.MaxDailyLoss,
			MaxDailyTrades:       cb.MaxDailyTrades,
		}, bus)
		losses = rt.Breaker
		execDeps.Gate = rt.Breaker
	}

	if cfg.AIConfig.Enabled {
		client := llm.NewClient(llm.ConfigFromAI(cfg.AIConfig))
		if client.IsConfigured() {
			execDeps.Confirmer = llm.NewTradeConfirmer(client, logger)
		} else {
			logger.Warn().Str("provider", cfg.AIConfig.LLMProvider).Msg("LLM confirmation enabled without an API key")
		}
	}

	rt.Allocator = allocator.New(store, gateway, cache.NewAnalysisClock(cs), logger)
	execDeps.Exposure = rt.Allocator
	rt.Executor = executor.New(execDeps, logger)
	rt.Monitor = monitor.New(gateway, store, losses, bus, logger)

	return rt, nil
}
