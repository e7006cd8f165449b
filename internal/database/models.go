package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"metaapi-trading-bot/internal/market"
	"metaapi-trading-bot/internal/strategy"
)

// Trade status
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Close reasons
const (
	ReasonTakeProfit  = "TAKE_PROFIT"
	ReasonStopLoss    = "STOP_LOSS"
	ReasonMaxHoldTime = "MAX_HOLD_TIME"
	ReasonManual      = "MANUAL"
)

// ClosedByBot marks closes issued by the trading loop
const ClosedByBot = "AI_BOT"

// Trade settings sources
const (
	SourceUser     = "user"
	SourceAuto     = "auto"
	SourceExecutor = "executor"
)

// SettingsID is the id of the single settings document
const SettingsID = "trading_settings"

// TradeRecord is the local mirror of a trade the bot opened or closed
type TradeRecord struct {
	ID          string          `json:"id"`
	Commodity   string          `json:"commodity"`
	Platform    string          `json:"platform"`
	Ticket      string          `json:"ticket"`
	Symbol      string          `json:"symbol"`
	Strategy    string          `json:"strategy"`
	Direction   string          `json:"direction"`
	EntryPrice  float64         `json:"entry_price"`
	Quantity    float64         `json:"quantity"`
	StopLoss    *float64        `json:"stop_loss,omitempty"`
	TakeProfit  *float64        `json:"take_profit,omitempty"`
	Status      string          `json:"status"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	CloseReason string          `json:"close_reason,omitempty"`
	ClosedBy    string          `json:"closed_by,omitempty"`
	ExitPrice   *float64        `json:"exit_price,omitempty"`
	ProfitLoss  *float64        `json:"profit_loss,omitempty"`
	Confidence  float64         `json:"confidence"`
	Analysis    json.RawMessage `json:"analysis,omitempty"`
}

// CloseRequest describes a close to be recorded. The position fields are used
// when no local record exists and a CLOSED record has to be created.
type CloseRequest struct {
	Platform   string
	Ticket     string
	Symbol     string
	Strategy   string
	Direction  string
	EntryPrice float64
	Quantity   float64
	OpenedAt   time.Time
	ExitPrice  float64
	ProfitLoss float64
	Reason     string
	ClosedBy   string
	ClosedAt   time.Time
}

// recordFromClose builds the CLOSED record inserted when the trade was never tracked
func recordFromClose(req CloseRequest, id string) *TradeRecord {
	closedAt := req.ClosedAt
	exit := req.ExitPrice
	pnl := req.ProfitLoss
	opened := req.OpenedAt
	if opened.IsZero() {
		opened = closedAt
	}
	return &TradeRecord{
		ID:          id,
		Commodity:   market.CommodityForSymbol(req.Symbol),
		Platform:    req.Platform,
		Ticket:      req.Ticket,
		Symbol:      req.Symbol,
		Strategy:    string(strategy.Normalize(req.Strategy)),
		Direction:   req.Direction,
		EntryPrice:  req.EntryPrice,
		Quantity:    req.Quantity,
		Status:      StatusClosed,
		OpenedAt:    opened,
		ClosedAt:    &closedAt,
		CloseReason: req.Reason,
		ClosedBy:    req.ClosedBy,
		ExitPrice:   &exit,
		ProfitLoss:  &pnl,
	}
}

// TradeSettings is the per-ticket SL/TP override
type TradeSettings struct {
	Ticket     string    `json:"ticket"`
	Platform   string    `json:"platform"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	Strategy   string    `json:"strategy"`
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasLevels reports whether either level is set
func (t *TradeSettings) HasLevels() bool {
	return t != nil && (t.StopLoss != nil || t.TakeProfit != nil)
}

// Settings is the single trading settings document
type Settings struct {
	ID                                   string          `json:"id"`
	AutoTrading                          bool            `json:"auto_trading"`
	ActivePlatforms                      []string        `json:"active_platforms"`
	EnabledCommodities                   []string        `json:"enabled_commodities"`
	UseLLMConfirmation                   bool            `json:"use_llm_confirmation"`
	UseTrailingStop                      bool            `json:"use_trailing_stop"`
	TrailingStopDistancePercent          float64         `json:"trailing_stop_distance_percent"`
	TPSLMode                             string          `json:"tp_sl_mode"`
	Swing                                strategy.Config `json:"swing"`
	Day                                  strategy.Config `json:"day"`
	CombinedMaxBalancePercentPerPlatform float64         `json:"combined_max_balance_percent_per_platform"`
	UpdatedAt                            time.Time       `json:"updated_at"`
}

// DefaultSettings returns the settings a fresh install starts with
func DefaultSettings() *Settings {
	return &Settings{
		ID:                                   SettingsID,
		AutoTrading:                          false,
		ActivePlatforms:                      []string{"MT5_LIBERTEX_DEMO", "MT5_ICMARKETS_DEMO"},
		EnabledCommodities:                   market.IDs(),
		UseLLMConfirmation:                   false,
		UseTrailingStop:                      false,
		TrailingStopDistancePercent:          1.5,
		TPSLMode:                             "percent",
		Swing:                                strategy.DefaultSwing(),
		Day:                                  strategy.DefaultDay(),
		CombinedMaxBalancePercentPerPlatform: 20,
	}
}

// Strategy returns the config for a strategy kind
func (s *Settings) Strategy(kind strategy.Kind) strategy.Config {
	if kind == strategy.Day {
		return s.Day
	}
	return s.Swing
}

var ErrInvalidSettings = errors.New("invalid settings")

// Validate checks the fields the trading loop depends on
func (s *Settings) Validate() error {
	if s.TPSLMode != "" && s.TPSLMode != "percent" {
		return fmt.Errorf("%w: tp_sl_mode %q is not supported, use percent", ErrInvalidSettings, s.TPSLMode)
	}
	if s.CombinedMaxBalancePercentPerPlatform <= 0 || s.CombinedMaxBalancePercentPerPlatform > 100 {
		return fmt.Errorf("%w: combined_max_balance_percent_per_platform must be in (0, 100]", ErrInvalidSettings)
	}
	for _, kind := range strategy.All() {
		cfg := s.Strategy(kind)
		if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
			return fmt.Errorf("%w: %s min_confidence must be between 0 and 1", ErrInvalidSettings, kind)
		}
		// Disabled strategies still close their open positions
		if cfg.StopLossPercent <= 0 || cfg.TakeProfitPercent <= 0 {
			return fmt.Errorf("%w: %s stop/take profit percent must be positive", ErrInvalidSettings, kind)
		}
		if cfg.ATRMultiplierSL <= 0 || cfg.ATRMultiplierTP <= 0 {
			return fmt.Errorf("%w: %s atr multipliers must be positive", ErrInvalidSettings, kind)
		}
		if cfg.MaxPositions < 0 {
			return fmt.Errorf("%w: %s max_positions must not be negative", ErrInvalidSettings, kind)
		}
	}
	if s.UseTrailingStop && s.TrailingStopDistancePercent <= 0 {
		return fmt.Errorf("%w: trailing_stop_distance_percent must be positive", ErrInvalidSettings)
	}
	return nil
}

// MarketSnapshot is one refresh of an instrument's price and indicators
type MarketSnapshot struct {
	ID         int64              `json:"id"`
	Commodity  string             `json:"commodity"`
	Price      float64            `json:"price"`
	Indicators map[string]float64 `json:"indicators"`
	Signal     string             `json:"signal"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
}

// ATR returns the snapshot's ATR, zero when missing
func (m *MarketSnapshot) ATR() float64 {
	if m == nil || m.Indicators == nil {
		return 0
	}
	return m.Indicators["atr"]
}

// TradeFilter narrows a trade listing
type TradeFilter struct {
	Status   string
	Strategy string
	Platform string
	Limit    int
}

func (f TradeFilter) matches(t *TradeRecord) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Strategy != "" && t.Strategy != f.Strategy {
		return false
	}
	if f.Platform != "" && t.Platform != f.Platform {
		return false
	}
	return true
}

// CommodityStats holds closed trade figures for one commodity
type CommodityStats struct {
	Trades     int     `json:"trades"`
	ProfitLoss float64 `json:"profit_loss"`
	Winners    int     `json:"winners"`
}

// TradeStats summarizes the trade history
type TradeStats struct {
	TotalTrades     int                       `json:"total_trades"`
	OpenPositions   int                       `json:"open_positions"`
	ClosedPositions int                       `json:"closed_positions"`
	TotalProfitLoss float64                   `json:"total_profit_loss"`
	WinRate         float64                   `json:"win_rate"`
	WinningTrades   int                       `json:"winning_trades"`
	LosingTrades    int                       `json:"losing_trades"`
	ByCommodity     map[string]CommodityStats `json:"by_commodity"`
}

func (s *TradeStats) finish() {
	if s.ClosedPositions > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.ClosedPositions) * 100
	}
}

// CleanupResult reports what a cleanup removed
type CleanupResult struct {
	ErrorRecords     int64 `json:"error_records"`
	DuplicateRecords int64 `json:"duplicate_records"`
}
