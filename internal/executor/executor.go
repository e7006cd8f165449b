// Package executor turns an accepted signal into a broker order: it checks
// market hours and the loss breaker, picks the least-utilized platform,
// sizes the order from ATR and records the trade.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metaapi-trading-bot/internal/allocator"
	"metaapi-trading-bot/internal/analysis"
	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/cache"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/logging"
	"metaapi-trading-bot/internal/market"
	"metaapi-trading-bot/internal/metrics"
	"metaapi-trading-bot/internal/risk"
	"metaapi-trading-bot/internal/strategy"
)

var (
	ErrNotDirectional     = errors.New("signal is not BUY or SELL")
	ErrMarketClosed       = errors.New("market closed")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrSymbolUnavailable  = errors.New("no active platform trades this commodity")
	ErrBalanceUnavailable = allocator.ErrBalanceUnavailable
	ErrMissingMarketData  = errors.New("missing price or ATR")
	ErrBrokerRejected     = errors.New("broker rejected order")
	ErrDeclinedByLLM      = errors.New("declined by LLM confirmation")
	ErrMissingTicket      = errors.New("broker returned no position or order id")
)

// MarketHours reports whether a commodity's market is open
type MarketHours interface {
	IsOpen(commodity string) bool
}

// TradeGate is consulted before any order is placed
type TradeGate interface {
	CanTrade() (bool, string)
}

// Confirmer is the optional advisory LLM step
type Confirmer interface {
	Confirm(ctx context.Context, commodity string, res analysis.Result) (bool, error)
}

// ExposureSource sums the capital held in open records of a platform
type ExposureSource interface {
	OpenExposure(ctx context.Context, platform string) (decimal.Decimal, error)
}

// Store is the trade store surface the executor writes
type Store interface {
	CreateTrade(ctx context.Context, trade *database.TradeRecord) error
	UpsertTradeSettings(ctx context.Context, ts *database.TradeSettings) error
}

type brokerResolver interface {
	BrokerOf(platform string) market.Broker
}

// Request is one signal to execute
type Request struct {
	Commodity string
	Strategy  strategy.Kind
	Analysis  analysis.Result
	Settings  *database.Settings
}

// Deps groups the executor's collaborators
type Deps struct {
	Gateway   broker.Gateway
	Store     Store
	Exposure  ExposureSource
	Hours     MarketHours
	Gate      TradeGate         // optional
	Confirmer Confirmer         // optional
	Snapshots *cache.MarketCache // optional fallback for price and ATR
	Sizer     *risk.Sizer
	Bus       *events.EventBus
}

// Executor places orders for accepted signals
type Executor struct {
	gateway   broker.Gateway
	store     Store
	exposure  ExposureSource
	hours     MarketHours
	gate      TradeGate
	confirmer Confirmer
	snapshots *cache.MarketCache
	sizer     *risk.Sizer
	bus       *events.EventBus
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates an executor
func New(deps Deps, logger zerolog.Logger) *Executor {
	return &Executor{
		gateway:   deps.Gateway,
		store:     deps.Store,
		exposure:  deps.Exposure,
		hours:     deps.Hours,
		gate:      deps.Gate,
		confirmer: deps.Confirmer,
		snapshots: deps.Snapshots,
		sizer:     deps.Sizer,
		bus:       deps.Bus,
		logger:    logger.With().Str("component", "Executor").Logger(),
		now:       time.Now,
	}
}

type candidate struct {
	platform string
	symbol   string
	balance  float64
	usage    float64
}

func (e *Executor) refuse(reason string, err error) error {
	metrics.ExecutionRefusals.WithLabelValues(reason).Inc()
	return err
}

// Execute runs the pre-trade checks in order and places the order
func (e *Executor) Execute(ctx context.Context, req Request) (*database.TradeRecord, error) {
	log := logging.TradeLogger(e.logger, string(req.Strategy), req.Commodity, req.Analysis.Signal)

	direction, err := broker.ParseDirection(req.Analysis.Signal)
	if err != nil || !req.Analysis.IsDirectional() {
		return nil, e.refuse("no_signal", fmt.Errorf("%s: %w", req.Commodity, ErrNotDirectional))
	}

	if !e.hours.IsOpen(req.Commodity) {
		log.Info().Msg("Market closed, skipping")
		return nil, e.refuse("market_closed", fmt.Errorf("%s: %w", req.Commodity, ErrMarketClosed))
	}

	if e.gate != nil {
		if ok, reason := e.gate.CanTrade(); !ok {
			log.Warn().Str("breaker", reason).Msg("Circuit breaker blocks trading")
			return nil, e.refuse("circuit_open", fmt.Errorf("%w: %s", ErrCircuitOpen, reason))
		}
	}

	candidates := e.symbolCandidates(req.Commodity, req.Settings.ActivePlatforms)
	if len(candidates) == 0 {
		return nil, e.refuse("symbol_unavailable", fmt.Errorf("%s: %w", req.Commodity, ErrSymbolUnavailable))
	}

	target, err := e.selectPlatform(ctx, log, candidates)
	if err != nil {
		return nil, e.refuse("balance_unavailable", err)
	}

	price, atr := e.marketData(ctx, req)
	if price <= 0 || atr <= 0 {
		return nil, e.refuse("missing_market_data",
			fmt.Errorf("%s: %w (price %.5f, atr %.5f)", req.Commodity, ErrMissingMarketData, price, atr))
	}

	cfg := req.Settings.Strategy(req.Strategy)
	slDistance, _ := cfg.ATRDistances(atr)
	volume, err := e.sizer.PositionVolume(target.balance, cfg.RiskPerTradePercent, slDistance)
	if err != nil {
		return nil, e.refuse("sizing", fmt.Errorf("size %s order: %w", req.Commodity, err))
	}

	levels, err := cfg.ATRLevels(string(direction), price, atr)
	if err != nil {
		return nil, e.refuse("missing_market_data", fmt.Errorf("%s: %w: %v", req.Commodity, ErrMissingMarketData, err))
	}

	if req.Settings.UseLLMConfirmation && e.confirmer != nil {
		ok, err := e.confirmer.Confirm(ctx, req.Commodity, req.Analysis)
		switch {
		case err != nil:
			// Advisory only: a failed check does not block the trade
			log.Warn().Err(err).Msg("LLM confirmation failed, proceeding")
		case !ok:
			log.Info().Msg("LLM declined the trade")
			return nil, e.refuse("llm_declined", fmt.Errorf("%s: %w", req.Commodity, ErrDeclinedByLLM))
		}
	}

	result, err := e.gateway.PlaceOrder(ctx, target.platform, broker.OrderRequest{
		Symbol:    target.symbol,
		Direction: direction,
		Volume:    volume,
		Comment:   fmt.Sprintf("%s %s", req.Strategy, req.Commodity),
	})
	if err != nil {
		var rejected *broker.RejectedError
		if errors.As(err, &rejected) {
			log.Warn().Str("code", rejected.Code).Str("message", rejected.Message).Msg("Order rejected")
			return nil, e.refuse("broker_rejected",
				fmt.Errorf("%w: %s %s", ErrBrokerRejected, rejected.Code, rejected.Message))
		}
		return nil, fmt.Errorf("place %s order on %s: %w", req.Commodity, target.platform, err)
	}

	ticket := result.Ticket()
	if ticket == "" {
		// The position is live but cannot be keyed; the monitor still sees it on the broker
		log.Error().Str("platform", target.platform).Str("code", result.Code).Msg("Order placed without a ticket, not recording")
		return nil, e.refuse("missing_ticket", fmt.Errorf("%s on %s: %w", req.Commodity, target.platform, ErrMissingTicket))
	}
	sl, tp := levels.StopLoss, levels.TakeProfit
	record := &database.TradeRecord{
		Commodity:  req.Commodity,
		Platform:   target.platform,
		Ticket:     ticket,
		Symbol:     target.symbol,
		Strategy:   string(req.Strategy),
		Direction:  string(direction),
		EntryPrice: price,
		Quantity:   volume,
		StopLoss:   &sl,
		TakeProfit: &tp,
		Status:     database.StatusOpen,
		OpenedAt:   e.now().UTC(),
		Confidence: req.Analysis.Confidence,
	}
	if raw, err := json.Marshal(req.Analysis); err == nil {
		record.Analysis = raw
	}

	if err := e.store.CreateTrade(ctx, record); err != nil {
		// The order is live; the monitor still manages it from broker data
		log.Error().Err(err).Str("ticket", ticket).Msg("Order placed but trade record failed")
		return nil, fmt.Errorf("record trade %s/%s: %w", target.platform, ticket, err)
	}

	if err := e.store.UpsertTradeSettings(ctx, &database.TradeSettings{
		Ticket:     ticket,
		Platform:   target.platform,
		StopLoss:   &sl,
		TakeProfit: &tp,
		Strategy:   string(req.Strategy),
		Source:     database.SourceExecutor,
	}); err != nil {
		log.Warn().Err(err).Str("ticket", ticket).Msg("Failed to store trade settings")
	}

	metrics.TradesOpened.WithLabelValues(string(req.Strategy), target.platform).Inc()
	e.bus.PublishTradeOpened(target.platform, ticket, req.Commodity, string(req.Strategy), string(direction), price, volume)

	log.Info().
		Str("platform", target.platform).
		Str("ticket", ticket).
		Str("symbol", target.symbol).
		Float64("volume", volume).
		Float64("entry", price).
		Float64("stop_loss", sl).
		Float64("take_profit", tp).
		Float64("usage", target.usage).
		Msg("Trade opened")
	return record, nil
}

// symbolCandidates returns the active platforms that map the commodity to a symbol
func (e *Executor) symbolCandidates(commodity string, platforms []string) []candidate {
	var out []candidate
	for _, p := range platforms {
		b := market.BrokerFor(p)
		if r, ok := e.gateway.(brokerResolver); ok {
			b = r.BrokerOf(p)
		}
		if symbol, ok := market.SymbolFor(commodity, b); ok {
			out = append(out, candidate{platform: p, symbol: symbol})
		}
	}
	return out
}

// selectPlatform picks the candidate with the lowest used capital to balance
// ratio. Candidates whose balance cannot be read are dropped.
func (e *Executor) selectPlatform(ctx context.Context, log zerolog.Logger, candidates []candidate) (candidate, error) {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]

		info, err := e.gateway.AccountInfo(ctx, c.platform)
		if err != nil || info == nil || info.Balance <= 0 {
			log.Warn().Err(err).Str("platform", c.platform).Msg("Balance unavailable")
			continue
		}
		c.balance = info.Balance

		used, err := e.exposure.OpenExposure(ctx, c.platform)
		if err != nil {
			log.Warn().Err(err).Str("platform", c.platform).Msg("Exposure unavailable")
			continue
		}
		c.usage, _ = used.Div(decimal.NewFromFloat(c.balance)).Mul(decimal.NewFromInt(100)).Float64()

		if best == nil || c.usage < best.usage {
			best = c
		}
	}
	if best == nil {
		return candidate{}, fmt.Errorf("%w on all %d candidate platforms", ErrBalanceUnavailable, len(candidates))
	}
	return *best, nil
}

// marketData returns price and ATR from the analysis, falling back to the
// cached snapshot
func (e *Executor) marketData(ctx context.Context, req Request) (price, atr float64) {
	price, atr = req.Analysis.Price(), req.Analysis.ATR()
	if (price > 0 && atr > 0) || e.snapshots == nil {
		return price, atr
	}
	snap, err := e.snapshots.Get(ctx, req.Commodity)
	if err != nil {
		return price, atr
	}
	if price <= 0 {
		price = snap.Price
	}
	if atr <= 0 {
		atr = snap.ATR()
	}
	return price, atr
}
