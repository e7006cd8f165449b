package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownPlatform = errors.New("platform not configured")
	ErrRejected        = errors.New("order rejected by broker")
	ErrNoCredentials   = errors.New("metaapi token or account id missing")
)

// Direction is the side of a position or order
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// ParseDirection maps broker and internal spellings to a Direction
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "BUY", "POSITION_TYPE_BUY", "ORDER_TYPE_BUY", "LONG":
		return Buy, nil
	case "SELL", "POSITION_TYPE_SELL", "ORDER_TYPE_SELL", "SHORT":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Sign returns +1 for BUY and -1 for SELL
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// Position is a live broker position normalized at the gateway boundary.
// Ticket is always set.
type Position struct {
	Ticket       string    `json:"ticket"`
	Platform     string    `json:"platform"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	Volume       float64   `json:"volume"`
	Profit       *float64  `json:"profit,omitempty"` // nil when the broker omits it
	OpenedAt     time.Time `json:"opened_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountInfo holds the account figures used for sizing and allocation
type AccountInfo struct {
	Platform   string  `json:"platform"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Leverage   float64 `json:"leverage"`
	Currency   string  `json:"currency"`
}

// OrderRequest is a market order. Stops are managed by the position monitor,
// so none are sent to the broker.
type OrderRequest struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Volume    float64   `json:"volume"`
	Comment   string    `json:"comment,omitempty"`
}

// OrderResult is the broker's answer to a trade request
type OrderResult struct {
	OrderID    string `json:"order_id"`
	PositionID string `json:"position_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Ticket returns the position id, falling back to the order id
func (r *OrderResult) Ticket() string {
	if r.PositionID != "" {
		return r.PositionID
	}
	return r.OrderID
}

// RejectedError carries the broker's return code for a refused trade
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("broker rejected trade: %s %s", e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Gateway is the multi-platform broker surface used by the trading loop
type Gateway interface {
	OpenPositions(ctx context.Context, platform string) ([]Position, error)
	AccountInfo(ctx context.Context, platform string) (*AccountInfo, error)
	PlaceOrder(ctx context.Context, platform string, req OrderRequest) (*OrderResult, error)
	ClosePosition(ctx context.Context, platform, ticket string) error
}
