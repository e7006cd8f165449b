package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// successCodes are the MetaAPI string codes that mean the request was accepted
var successCodes = map[string]bool{
	"TRADE_RETCODE_DONE":         true,
	"TRADE_RETCODE_PLACED":       true,
	"TRADE_RETCODE_DONE_PARTIAL": true,
	"ERR_NO_ERROR":               true,
}

// ClientConfig describes one MetaAPI trading account
type ClientConfig struct {
	Platform       string
	AccountID      string
	Token          string
	Region         string
	BaseURL        string // Overrides the region URL, used by tests
	Timeout        time.Duration
	RequestsPerSec float64
}

// RegionURL returns the MetaAPI client API endpoint for a region
func RegionURL(region string) string {
	if region == "" {
		region = "london"
	}
	return fmt.Sprintf("https://mt-client-api-v1.%s.agiliumtrade.ai", region)
}

// MetaAPIClient talks to the MetaAPI REST API for a single account
type MetaAPIClient struct {
	platform  string
	accountID string
	client    *resty.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewMetaAPIClient creates a new client for one MetaAPI account
func NewMetaAPIClient(cfg ClientConfig, logger zerolog.Logger) (*MetaAPIClient, error) {
	if cfg.Token == "" || cfg.AccountID == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Platform, ErrNoCredentials)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = RegionURL(cfg.Region)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("auth-token", cfg.Token)
	client.SetHeader("Accept", "application/json")

	return &MetaAPIClient{
		platform:  cfg.Platform,
		accountID: cfg.AccountID,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		logger:    logger.With().Str("component", "MetaAPIClient").Str("platform", cfg.Platform).Logger(),
	}, nil
}

// Platform returns the platform name this client serves
func (c *MetaAPIClient) Platform() string {
	return c.platform
}

func (c *MetaAPIClient) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.client.R().
		SetContext(ctx).
		SetPathParam("accountId", c.accountID), nil
}

func checkStatus(op string, resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("%s: metaapi status %d: %s", op, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Positions fetches and normalizes the account's open positions
func (c *MetaAPIClient) Positions(ctx context.Context) ([]Position, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var raw []rawPosition
	resp, err := req.SetResult(&raw).Get("/users/current/accounts/{accountId}/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if err := checkStatus("get positions", resp); err != nil {
		return nil, err
	}

	return normalizePositions(c.platform, raw, c.logger), nil
}

// Account fetches balance and margin figures
func (c *MetaAPIClient) Account(ctx context.Context) (*AccountInfo, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var info AccountInfo
	var raw struct {
		Balance    float64 `json:"balance"`
		Equity     float64 `json:"equity"`
		Margin     float64 `json:"margin"`
		FreeMargin float64 `json:"freeMargin"`
		Leverage   float64 `json:"leverage"`
		Currency   string  `json:"currency"`
	}
	resp, err := req.SetResult(&raw).Get("/users/current/accounts/{accountId}/account-information")
	if err != nil {
		return nil, fmt.Errorf("get account information: %w", err)
	}
	if err := checkStatus("get account information", resp); err != nil {
		return nil, err
	}

	info = AccountInfo{
		Platform:   c.platform,
		Balance:    raw.Balance,
		Equity:     raw.Equity,
		Margin:     raw.Margin,
		FreeMargin: raw.FreeMargin,
		Leverage:   raw.Leverage,
		Currency:   raw.Currency,
	}
	return &info, nil
}

type tradeResponse struct {
	NumericCode int        `json:"numericCode"`
	StringCode  string     `json:"stringCode"`
	Message     string     `json:"message"`
	OrderID     flexString `json:"orderId"`
	PositionID  flexString `json:"positionId"`
}

func (c *MetaAPIClient) trade(ctx context.Context, op string, body map[string]interface{}) (*OrderResult, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var tr tradeResponse
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&tr).
		Post("/users/current/accounts/{accountId}/trade")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}

	if !successCodes[tr.StringCode] {
		return nil, &RejectedError{Code: tr.StringCode, Message: tr.Message}
	}

	return &OrderResult{
		OrderID:    string(tr.OrderID),
		PositionID: string(tr.PositionID),
		Code:       tr.StringCode,
		Message:    tr.Message,
	}, nil
}

// Place sends a market order without stop loss or take profit
func (c *MetaAPIClient) Place(ctx context.Context, order OrderRequest) (*OrderResult, error) {
	actionType := "ORDER_TYPE_BUY"
	if order.Direction == Sell {
		actionType = "ORDER_TYPE_SELL"
	}

	body := map[string]interface{}{
		"actionType": actionType,
		"symbol":     order.Symbol,
		"volume":     order.Volume,
	}
	if order.Comment != "" {
		body["comment"] = order.Comment
	}

	result, err := c.trade(ctx, "place order", body)
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", order.Symbol).Str("side", string(order.Direction)).Float64("volume", order.Volume).Msg("Order failed")
		return nil, err
	}

	c.logger.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Direction)).
		Float64("volume", order.Volume).
		Str("ticket", result.Ticket()).
		Msg("Order placed")
	return result, nil
}

// Close closes a position by ticket
func (c *MetaAPIClient) Close(ctx context.Context, ticket string) error {
	_, err := c.trade(ctx, "close position", map[string]interface{}{
		"actionType": "POSITION_CLOSE_ID",
		"positionId": ticket,
	})
	if err != nil {
		return err
	}
	c.logger.Info().Str("ticket", ticket).Msg("Position closed")
	return nil
}
