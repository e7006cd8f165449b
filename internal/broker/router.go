package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/internal/market"
	"metaapi-trading-bot/internal/metrics"
)

// Account is the per-account surface a Router dispatches to
type Account interface {
	Positions(ctx context.Context) ([]Position, error)
	Account(ctx context.Context) (*AccountInfo, error)
	Place(ctx context.Context, order OrderRequest) (*OrderResult, error)
	Close(ctx context.Context, ticket string) error
}

type route struct {
	account Account
	broker  market.Broker
}

// Router maps platform names to MetaAPI accounts and implements Gateway
type Router struct {
	mu     sync.RWMutex
	routes map[string]route
	logger zerolog.Logger
}

// NewRouter creates an empty router
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		routes: make(map[string]route),
		logger: logger.With().Str("component", "BrokerRouter").Logger(),
	}
}

// Register adds or replaces the account for a platform. An empty broker is
// inferred from the platform name.
func (r *Router) Register(platform string, broker market.Broker, account Account) {
	if broker == "" {
		broker = market.BrokerFor(platform)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[platform] = route{account: account, broker: broker}
	r.logger.Info().Str("platform", platform).Str("broker", string(broker)).Msg("Platform registered")
}

// Platforms lists the registered platform names
func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for p := range r.routes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a platform has credentials configured
func (r *Router) Has(platform string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[platform]
	return ok
}

// BrokerOf returns the symbol naming used by a platform
func (r *Router) BrokerOf(platform string) market.Broker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rt, ok := r.routes[platform]; ok {
		return rt.broker
	}
	return market.BrokerFor(platform)
}

func (r *Router) get(platform string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[platform]
	if !ok {
		return nil, fmt.Errorf("%s: %w", platform, ErrUnknownPlatform)
	}
	return rt.account, nil
}

func (r *Router) OpenPositions(ctx context.Context, platform string) ([]Position, error) {
	acc, err := r.get(platform)
	if err != nil {
		return nil, err
	}
	positions, err := acc.Positions(ctx)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues(platform, "positions").Inc()
		return nil, fmt.Errorf("%s positions: %w", platform, err)
	}
	return positions, nil
}

func (r *Router) AccountInfo(ctx context.Context, platform string) (*AccountInfo, error) {
	acc, err := r.get(platform)
	if err != nil {
		return nil, err
	}
	info, err := acc.Account(ctx)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues(platform, "account").Inc()
		return nil, fmt.Errorf("%s account info: %w", platform, err)
	}
	return info, nil
}

func (r *Router) PlaceOrder(ctx context.Context, platform string, req OrderRequest) (*OrderResult, error) {
	acc, err := r.get(platform)
	if err != nil {
		return nil, err
	}
	result, err := acc.Place(ctx, req)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues(platform, "place").Inc()
		return nil, fmt.Errorf("%s place order: %w", platform, err)
	}
	return result, nil
}

func (r *Router) ClosePosition(ctx context.Context, platform, ticket string) error {
	acc, err := r.get(platform)
	if err != nil {
		return err
	}
	if err := acc.Close(ctx, ticket); err != nil {
		metrics.BrokerErrors.WithLabelValues(platform, "close").Inc()
		return fmt.Errorf("%s close %s: %w", platform, ticket, err)
	}
	return nil
}
