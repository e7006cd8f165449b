package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps all records in process. It is used when PostgreSQL is
// disabled and by the package tests of the trading loop.
type MemoryStore struct {
	mu            sync.RWMutex
	trades        map[string]*TradeRecord // platform|ticket
	tradeSettings map[string]*TradeSettings
	settings      *Settings
	history       []*MarketSnapshot
	nextHistoryID int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades:        make(map[string]*TradeRecord),
		tradeSettings: make(map[string]*TradeSettings),
	}
}

func tradeKey(platform, ticket string) string {
	return platform + "|" + ticket
}

func copyTrade(t *TradeRecord) *TradeRecord {
	c := *t
	return &c
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) CreateTrade(ctx context.Context, trade *TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tradeKey(trade.Platform, trade.Ticket)
	if _, exists := m.trades[key]; exists {
		return fmt.Errorf("%s/%s: %w", trade.Platform, trade.Ticket, ErrDuplicateTrade)
	}
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Status == "" {
		trade.Status = StatusOpen
	}
	m.trades[key] = copyTrade(trade)
	return nil
}

func (m *MemoryStore) GetTrade(ctx context.Context, platform, ticket string) (*TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trades[tradeKey(platform, ticket)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTrade(t), nil
}

func (m *MemoryStore) CloseTrade(ctx context.Context, req CloseRequest) (*TradeRecord, error) {
	if req.ClosedAt.IsZero() {
		req.ClosedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := tradeKey(req.Platform, req.Ticket)
	t, ok := m.trades[key]
	if !ok {
		record := recordFromClose(req, uuid.NewString())
		m.trades[key] = record
		return copyTrade(record), nil
	}
	if t.Status == StatusClosed {
		return nil, fmt.Errorf("%s/%s: %w", req.Platform, req.Ticket, ErrAlreadyClosed)
	}

	closedAt := req.ClosedAt
	exit := req.ExitPrice
	pnl := req.ProfitLoss
	t.Status = StatusClosed
	t.ClosedAt = &closedAt
	t.CloseReason = req.Reason
	t.ClosedBy = req.ClosedBy
	t.ExitPrice = &exit
	t.ProfitLoss = &pnl
	return copyTrade(t), nil
}

func (m *MemoryStore) ListTrades(ctx context.Context, filter TradeFilter) ([]*TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TradeRecord
	for _, t := range m.trades {
		if filter.matches(t) {
			out = append(out, copyTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountOpenByStrategy(ctx context.Context, strategy string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.trades {
		if t.Status == StatusOpen && t.Strategy == strategy {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*TradeStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &TradeStats{ByCommodity: make(map[string]CommodityStats)}
	for _, t := range m.trades {
		stats.TotalTrades++
		if t.Status == StatusOpen {
			stats.OpenPositions++
			continue
		}
		stats.ClosedPositions++

		pnl := 0.0
		if t.ProfitLoss != nil {
			pnl = *t.ProfitLoss
		}
		stats.TotalProfitLoss += pnl

		cs := stats.ByCommodity[t.Commodity]
		cs.Trades++
		cs.ProfitLoss += pnl
		switch {
		case pnl > 0:
			stats.WinningTrades++
			cs.Winners++
		case pnl < 0:
			stats.LosingTrades++
		}
		stats.ByCommodity[t.Commodity] = cs
	}
	stats.finish()
	return stats, nil
}

func (m *MemoryStore) Cleanup(ctx context.Context) (*CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &CleanupResult{}
	for key, t := range m.trades {
		if strings.Contains(t.Ticket, "TRADE_RETCODE") || strings.Contains(t.Symbol, "TRADE_RETCODE") {
			delete(m.trades, key)
			res.ErrorRecords++
		}
	}

	// Records are keyed by platform and ticket, so there are no shadowed copies
	return res, nil
}

func (m *MemoryStore) GetTradeSettings(ctx context.Context, ticket string) (*TradeSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ts, ok := m.tradeSettings[ticket]
	if !ok {
		return nil, ErrNotFound
	}
	c := *ts
	return &c, nil
}

func (m *MemoryStore) UpsertTradeSettings(ctx context.Context, ts *TradeSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts.UpdatedAt = time.Now().UTC()
	c := *ts
	m.tradeSettings[ts.Ticket] = &c
	return nil
}

func (m *MemoryStore) CreateTradeSettingsIfAbsent(ctx context.Context, ts *TradeSettings) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tradeSettings[ts.Ticket]; exists {
		return false, nil
	}
	ts.UpdatedAt = time.Now().UTC()
	c := *ts
	m.tradeSettings[ts.Ticket] = &c
	return true, nil
}

func (m *MemoryStore) GetSettings(ctx context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.settings == nil {
		return nil, ErrNotFound
	}
	return cloneSettings(m.settings), nil
}

func (m *MemoryStore) SaveSettings(ctx context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = SettingsID
	s.UpdatedAt = time.Now().UTC()
	m.settings = cloneSettings(s)
	return nil
}

func cloneSettings(s *Settings) *Settings {
	c := *s
	c.ActivePlatforms = append([]string(nil), s.ActivePlatforms...)
	c.EnabledCommodities = append([]string(nil), s.EnabledCommodities...)
	return &c
}

func (m *MemoryStore) InsertMarketSnapshot(ctx context.Context, snap *MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHistoryID++
	snap.ID = m.nextHistoryID
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	c := *snap
	m.history = append(m.history, &c)
	return nil
}

func (m *MemoryStore) MarketHistory(ctx context.Context, commodity string, limit int) ([]*MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var out []*MarketSnapshot
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		if m.history[i].Commodity == commodity {
			c := *m.history[i]
			out = append(out, &c)
		}
	}
	return out, nil
}
