package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"metaapi-trading-bot/internal/bot"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/logging"
	"metaapi-trading-bot/internal/market"
)

// handleBotStart starts the trading loop
// POST /api/bot/start
func (s *Server) handleBotStart(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.deps.Bot.Start(ctx); err != nil {
		switch {
		case errors.Is(err, bot.ErrAlreadyRunning):
			errorResponse(c, http.StatusConflict, err.Error())
		case errors.Is(err, bot.ErrNoSettings), errors.Is(err, bot.ErrNoCredentials):
			errorResponse(c, http.StatusPreconditionFailed, err.Error())
		default:
			logger := logging.FromContext(ctx)
			logger.Error().Err(err).Msg("Failed to start bot")
			errorResponse(c, http.StatusInternalServerError, "failed to start bot")
		}
		return
	}
	successResponse(c, s.deps.Bot.Status(ctx))
}

// handleBotStop stops the trading loop
// POST /api/bot/stop
func (s *Server) handleBotStop(c *gin.Context) {
	if err := s.deps.Bot.Stop(); err != nil {
		if errors.Is(err, bot.ErrNotRunning) {
			errorResponse(c, http.StatusConflict, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to stop bot")
		return
	}
	successResponse(c, s.deps.Bot.Status(c.Request.Context()))
}

// handleBotStatus returns the loop state
// GET /api/bot/status
func (s *Server) handleBotStatus(c *gin.Context) {
	successResponse(c, s.deps.Bot.Status(c.Request.Context()))
}

// handleListTrades lists trade records
// GET /api/trades?status=OPEN&strategy=swing&platform=...&limit=100
func (s *Server) handleListTrades(c *gin.Context) {
	filter := database.TradeFilter{
		Status:   strings.ToUpper(c.Query("status")),
		Strategy: strings.ToLower(c.Query("strategy")),
		Platform: c.Query("platform"),
	}
	if filter.Status != "" && filter.Status != database.StatusOpen && filter.Status != database.StatusClosed {
		errorResponse(c, http.StatusBadRequest, "status must be OPEN or CLOSED")
		return
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		filter.Limit = n
	}

	ctx := c.Request.Context()
	trades, err := s.deps.Store.ListTrades(ctx, filter)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to list trades")
		errorResponse(c, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []*database.TradeRecord{}
	}

	successResponse(c, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

// handleTradeStats returns trade statistics
// GET /api/trades/stats
func (s *Server) handleTradeStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := s.deps.Store.Stats(ctx)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to compute trade stats")
		errorResponse(c, http.StatusInternalServerError, "failed to compute trade stats")
		return
	}
	successResponse(c, stats)
}

// handleGetTradeSettings returns the SL/TP levels stored for a ticket
// GET /api/trade-settings/:ticket
func (s *Server) handleGetTradeSettings(c *gin.Context) {
	ctx := c.Request.Context()
	ts, err := s.deps.Store.GetTradeSettings(ctx, c.Param("ticket"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "no trade settings for this ticket")
			return
		}
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to read trade settings")
		errorResponse(c, http.StatusInternalServerError, "failed to read trade settings")
		return
	}
	successResponse(c, ts)
}

// TradeSettingsRequest is a user override of a position's stop levels
type TradeSettingsRequest struct {
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	Platform   string   `json:"platform"`
}

// handlePutTradeSettings stores a user override for a ticket. The monitor
// uses stored levels in preference to the strategy percentages.
// PUT /api/trade-settings/:ticket
func (s *Server) handlePutTradeSettings(c *gin.Context) {
	ctx := c.Request.Context()
	ticket := c.Param("ticket")

	var req TradeSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StopLoss == nil && req.TakeProfit == nil {
		errorResponse(c, http.StatusBadRequest, "stop_loss or take_profit is required")
		return
	}
	if (req.StopLoss != nil && *req.StopLoss <= 0) || (req.TakeProfit != nil && *req.TakeProfit <= 0) {
		errorResponse(c, http.StatusBadRequest, "levels must be positive prices")
		return
	}

	ts := &database.TradeSettings{
		Ticket:     ticket,
		Platform:   req.Platform,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Source:     database.SourceUser,
		UpdatedAt:  time.Now().UTC(),
	}

	// Keep the strategy and platform of the open record the override applies to
	open, err := s.deps.Store.ListTrades(ctx, database.TradeFilter{Status: database.StatusOpen, Platform: req.Platform})
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to look up trade")
		errorResponse(c, http.StatusInternalServerError, "failed to look up trade")
		return
	}
	for _, t := range open {
		if t.Ticket == ticket {
			ts.Platform = t.Platform
			ts.Strategy = t.Strategy
			break
		}
	}
	if existing, err := s.deps.Store.GetTradeSettings(ctx, ticket); err == nil {
		if ts.Strategy == "" {
			ts.Strategy = existing.Strategy
		}
		if ts.Platform == "" {
			ts.Platform = existing.Platform
		}
		if ts.StopLoss == nil {
			ts.StopLoss = existing.StopLoss
		}
		if ts.TakeProfit == nil {
			ts.TakeProfit = existing.TakeProfit
		}
	}

	if err := s.deps.Store.UpsertTradeSettings(ctx, ts); err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Str("ticket", ticket).Msg("Failed to save trade settings")
		errorResponse(c, http.StatusInternalServerError, "failed to save trade settings")
		return
	}

	logger := logging.FromContext(ctx)

	logger.Info().Str("ticket", ticket).Msg("Trade settings overridden by user")
	successResponse(c, ts)
}

// handleGetSettings returns the trading settings, creating defaults on first use
// GET /api/settings
func (s *Server) handleGetSettings(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := database.EnsureDefaultSettings(ctx, s.deps.Store)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to read settings")
		errorResponse(c, http.StatusInternalServerError, "failed to read settings")
		return
	}
	successResponse(c, settings)
}

// handlePutSettings replaces the trading settings. The loop picks them up on
// its next iteration.
// PUT /api/settings
func (s *Server) handlePutSettings(c *gin.Context) {
	var settings database.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	settings.ID = database.SettingsID
	if settings.TPSLMode == "" {
		settings.TPSLMode = "percent"
	}
	for _, id := range settings.EnabledCommodities {
		if _, ok := market.Lookup(id); !ok {
			errorResponse(c, http.StatusBadRequest, "unknown commodity "+id)
			return
		}
	}
	if err := settings.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	s.saveSettings(c, &settings, "api")
}

// handleResetSettings restores the default settings
// POST /api/settings/reset
func (s *Server) handleResetSettings(c *gin.Context) {
	s.saveSettings(c, database.DefaultSettings(), "reset")
}

func (s *Server) saveSettings(c *gin.Context, settings *database.Settings, source string) {
	ctx := c.Request.Context()
	settings.UpdatedAt = time.Now().UTC()
	if err := s.deps.Store.SaveSettings(ctx, settings); err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Msg("Failed to save settings")
		errorResponse(c, http.StatusInternalServerError, "failed to save settings")
		return
	}

	s.deps.Bus.PublishSettingsChanged(source, settings.AutoTrading)
	logger := logging.FromContext(ctx)
	logger.Info().
		Str("source", source).
		Bool("auto_trading", settings.AutoTrading).
		Msg("Settings updated")
	successResponse(c, settings)
}

// CommodityView is a catalog entry with its market state
type CommodityView struct {
	market.Commodity
	MarketOpen bool `json:"market_open"`
}

// handleCommodities returns the instrument catalog
// GET /api/commodities
func (s *Server) handleCommodities(c *gin.Context) {
	all := market.All()
	out := make([]CommodityView, 0, len(all))
	for _, cm := range all {
		view := CommodityView{Commodity: cm}
		if s.deps.Hours != nil {
			view.MarketOpen = s.deps.Hours.IsOpen(cm.ID)
		}
		out = append(out, view)
	}
	successResponse(c, out)
}

// PlatformView is one active platform's account state
type PlatformView struct {
	Name          string  `json:"name"`
	Broker        string  `json:"broker"`
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	Currency      string  `json:"currency,omitempty"`
	CombinedUsage float64 `json:"combined_usage_percent"`
	Error         string  `json:"error,omitempty"`
}

// handlePlatforms returns the active platforms with balance and usage. A
// platform whose account cannot be read is listed with the error.
// GET /api/platforms
func (s *Server) handlePlatforms(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := database.EnsureDefaultSettings(ctx, s.deps.Store)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to read settings")
		return
	}

	out := make([]PlatformView, 0, len(settings.ActivePlatforms))
	for _, name := range settings.ActivePlatforms {
		view := PlatformView{Name: name, Broker: string(market.BrokerFor(name))}
		if s.deps.Accounts != nil {
			info, err := s.deps.Accounts.AccountInfo(ctx, name)
			if err != nil {
				view.Error = err.Error()
				out = append(out, view)
				continue
			}
			view.Balance = info.Balance
			view.Equity = info.Equity
			view.Currency = info.Currency
		}
		if s.deps.Usage != nil {
			if usage, err := s.deps.Usage.CombinedUsage(ctx, name); err == nil {
				view.CombinedUsage = usage
			}
		}
		out = append(out, view)
	}
	successResponse(c, out)
}
