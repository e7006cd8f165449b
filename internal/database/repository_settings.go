package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// TRADE SETTINGS
// ============================================================================

// GetTradeSettings returns the SL/TP document for a ticket
func (r *Repository) GetTradeSettings(ctx context.Context, ticket string) (*TradeSettings, error) {
	ts := &TradeSettings{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT ticket, platform, stop_loss, take_profit, strategy, source, updated_at
		FROM trade_settings WHERE ticket = $1
	`, ticket).Scan(&ts.Ticket, &ts.Platform, &ts.StopLoss, &ts.TakeProfit, &ts.Strategy, &ts.Source, &ts.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade settings %s: %w", ticket, err)
	}
	return ts, nil
}

// UpsertTradeSettings writes a ticket's SL/TP, replacing any previous values
func (r *Repository) UpsertTradeSettings(ctx context.Context, ts *TradeSettings) error {
	ts.UpdatedAt = time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trade_settings (ticket, platform, stop_loss, take_profit, strategy, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticket) DO UPDATE SET
			platform = EXCLUDED.platform,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			strategy = EXCLUDED.strategy,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`, ts.Ticket, ts.Platform, ts.StopLoss, ts.TakeProfit, ts.Strategy, ts.Source, ts.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert trade settings %s: %w", ts.Ticket, err)
	}
	return nil
}

// CreateTradeSettingsIfAbsent inserts a ticket's SL/TP only when none exists
func (r *Repository) CreateTradeSettingsIfAbsent(ctx context.Context, ts *TradeSettings) (bool, error) {
	ts.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trade_settings (ticket, platform, stop_loss, take_profit, strategy, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticket) DO NOTHING
	`, ts.Ticket, ts.Platform, ts.StopLoss, ts.TakeProfit, ts.Strategy, ts.Source, ts.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create trade settings %s: %w", ts.Ticket, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ============================================================================
// SETTINGS
// ============================================================================

// GetSettings loads the trading settings document
func (r *Repository) GetSettings(ctx context.Context) (*Settings, error) {
	var doc []byte
	var updatedAt time.Time
	err := r.db.Pool.QueryRow(ctx,
		`SELECT doc, updated_at FROM settings WHERE id = $1`, SettingsID,
	).Scan(&doc, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(doc, s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.ID = SettingsID
	s.UpdatedAt = updatedAt
	return s, nil
}

// SaveSettings writes the trading settings document
func (r *Repository) SaveSettings(ctx context.Context, s *Settings) error {
	s.ID = SettingsID
	s.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO settings (id, doc, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, SettingsID, string(doc), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ============================================================================
// MARKET DATA HISTORY
// ============================================================================

// InsertMarketSnapshot appends a snapshot to the history table
func (r *Repository) InsertMarketSnapshot(ctx context.Context, snap *MarketSnapshot) error {
	indicators, err := json.Marshal(snap.Indicators)
	if err != nil {
		return fmt.Errorf("encode indicators: %w", err)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO market_data_history (commodity, price, indicators, signal, confidence, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, snap.Commodity, snap.Price, string(indicators), snap.Signal, snap.Confidence, snap.Timestamp).Scan(&snap.ID)
}

// MarketHistory returns the newest snapshots for a commodity
func (r *Repository) MarketHistory(ctx context.Context, commodity string, limit int) ([]*MarketSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, commodity, price, indicators, COALESCE(signal, ''), confidence, timestamp
		FROM market_data_history
		WHERE commodity = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, commodity, limit)
	if err != nil {
		return nil, fmt.Errorf("market history %s: %w", commodity, err)
	}
	defer rows.Close()

	var out []*MarketSnapshot
	for rows.Next() {
		s := &MarketSnapshot{}
		var indicators []byte
		if err := rows.Scan(&s.ID, &s.Commodity, &s.Price, &indicators, &s.Signal, &s.Confidence, &s.Timestamp); err != nil {
			return nil, err
		}
		if len(indicators) > 0 {
			if err := json.Unmarshal(indicators, &s.Indicators); err != nil {
				return nil, fmt.Errorf("decode indicators: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
