// Package brokertest provides an in-memory broker.Gateway for tests of the
// trading loop.
package brokertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"metaapi-trading-bot/internal/broker"
	"metaapi-trading-bot/internal/market"
)

// PlacedOrder records one PlaceOrder call
type PlacedOrder struct {
	Platform string
	Request  broker.OrderRequest
	Ticket   string
}

// Gateway is a scripted multi-platform broker
type Gateway struct {
	mu sync.Mutex

	Positions map[string][]broker.Position
	Accounts  map[string]*broker.AccountInfo
	Brokers   map[string]market.Broker

	PositionsErr map[string]error
	AccountErr   map[string]error
	PlaceErr     error
	EmptyTicket  bool // PlaceOrder succeeds without position or order id
	CloseErr     map[string]error // by ticket

	Placed []PlacedOrder
	Closed []string // platform/ticket

	nextTicket int
}

// NewGateway creates an empty fake gateway
func NewGateway() *Gateway {
	return &Gateway{
		Positions:    make(map[string][]broker.Position),
		Accounts:     make(map[string]*broker.AccountInfo),
		Brokers:      make(map[string]market.Broker),
		PositionsErr: make(map[string]error),
		AccountErr:   make(map[string]error),
		CloseErr:     make(map[string]error),
		nextTicket:   1000,
	}
}

// SetBalance registers a platform with the given balance
func (g *Gateway) SetBalance(platform string, balance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Accounts[platform] = &broker.AccountInfo{Platform: platform, Balance: balance, Equity: balance, Currency: "EUR"}
}

// AddPosition appends a live position to a platform
func (g *Gateway) AddPosition(p broker.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Positions[p.Platform] = append(g.Positions[p.Platform], p)
}

func (g *Gateway) OpenPositions(ctx context.Context, platform string) ([]broker.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.PositionsErr[platform]; err != nil {
		return nil, err
	}
	return append([]broker.Position(nil), g.Positions[platform]...), nil
}

func (g *Gateway) AccountInfo(ctx context.Context, platform string) (*broker.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.AccountErr[platform]; err != nil {
		return nil, err
	}
	info, ok := g.Accounts[platform]
	if !ok {
		return nil, fmt.Errorf("%s: %w", platform, broker.ErrUnknownPlatform)
	}
	c := *info
	return &c, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, platform string, req broker.OrderRequest) (*broker.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.PlaceErr != nil {
		return nil, g.PlaceErr
	}
	g.nextTicket++
	ticket := strconv.Itoa(g.nextTicket)
	if g.EmptyTicket {
		ticket = ""
	}
	g.Placed = append(g.Placed, PlacedOrder{Platform: platform, Request: req, Ticket: ticket})
	return &broker.OrderResult{OrderID: ticket, PositionID: ticket, Code: "TRADE_RETCODE_DONE"}, nil
}

func (g *Gateway) ClosePosition(ctx context.Context, platform, ticket string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.CloseErr[ticket]; err != nil {
		return err
	}
	g.Closed = append(g.Closed, platform+"/"+ticket)

	live := g.Positions[platform][:0]
	for _, p := range g.Positions[platform] {
		if p.Ticket != ticket {
			live = append(live, p)
		}
	}
	g.Positions[platform] = live
	return nil
}

// BrokerOf returns the registered broker for a platform, derived from the name otherwise
func (g *Gateway) BrokerOf(platform string) market.Broker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.Brokers[platform]; ok {
		return b
	}
	return market.BrokerFor(platform)
}

// ClosedCount returns how many closes succeeded
func (g *Gateway) ClosedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Closed)
}

// PlacedOrders returns a copy of the placed orders
func (g *Gateway) PlacedOrders() []PlacedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PlacedOrder(nil), g.Placed...)
}

// Has reports whether the platform has an account registered
func (g *Gateway) Has(platform string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.Accounts[platform]
	return ok
}
