package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods on PostgreSQL
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// TRADES
// ============================================================================

const tradeColumns = `id, commodity, platform, ticket, symbol, strategy, direction, entry_price, quantity,
	stop_loss, take_profit, status, opened_at, closed_at, close_reason, closed_by, exit_price,
	profit_loss, confidence, analysis`

func scanTrade(row pgx.Row) (*TradeRecord, error) {
	t := &TradeRecord{}
	var closeReason, closedBy *string
	var analysis []byte
	err := row.Scan(
		&t.ID, &t.Commodity, &t.Platform, &t.Ticket, &t.Symbol, &t.Strategy, &t.Direction,
		&t.EntryPrice, &t.Quantity, &t.StopLoss, &t.TakeProfit, &t.Status, &t.OpenedAt,
		&t.ClosedAt, &closeReason, &closedBy, &t.ExitPrice, &t.ProfitLoss, &t.Confidence, &analysis,
	)
	if err != nil {
		return nil, err
	}
	if closeReason != nil {
		t.CloseReason = *closeReason
	}
	if closedBy != nil {
		t.ClosedBy = *closedBy
	}
	if len(analysis) > 0 {
		t.Analysis = analysis
	}
	return t, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *Repository) insertTrade(ctx context.Context, t *TradeRecord) (bool, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (platform, ticket) DO NOTHING
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		t.ID, t.Commodity, t.Platform, t.Ticket, t.Symbol, t.Strategy, t.Direction,
		t.EntryPrice, t.Quantity, t.StopLoss, t.TakeProfit, t.Status, t.OpenedAt,
		t.ClosedAt, nullString(t.CloseReason), nullString(t.ClosedBy), t.ExitPrice, t.ProfitLoss,
		t.Confidence, nullableJSON(t.Analysis),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateTrade inserts a new OPEN trade
func (r *Repository) CreateTrade(ctx context.Context, trade *TradeRecord) error {
	if trade.Status == "" {
		trade.Status = StatusOpen
	}
	inserted, err := r.insertTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("insert trade %s/%s: %w", trade.Platform, trade.Ticket, err)
	}
	if !inserted {
		return fmt.Errorf("%s/%s: %w", trade.Platform, trade.Ticket, ErrDuplicateTrade)
	}
	return nil
}

// GetTrade retrieves a trade by platform and ticket
func (r *Repository) GetTrade(ctx context.Context, platform, ticket string) (*TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE platform = $1 AND ticket = $2`
	t, err := scanTrade(r.db.Pool.QueryRow(ctx, query, platform, ticket))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s/%s: %w", platform, ticket, err)
	}
	return t, nil
}

// CloseTrade moves an OPEN record to CLOSED, or records a CLOSED trade when the
// position was never tracked locally. Closing twice returns ErrAlreadyClosed.
func (r *Repository) CloseTrade(ctx context.Context, req CloseRequest) (*TradeRecord, error) {
	if req.ClosedAt.IsZero() {
		req.ClosedAt = time.Now().UTC()
	}

	update := `
		UPDATE trades
		SET status = 'CLOSED', closed_at = $3, close_reason = $4, closed_by = $5,
		    exit_price = $6, profit_loss = $7, updated_at = NOW()
		WHERE platform = $1 AND ticket = $2 AND status = 'OPEN'
		RETURNING ` + tradeColumns

	t, err := scanTrade(r.db.Pool.QueryRow(ctx, update,
		req.Platform, req.Ticket, req.ClosedAt, req.Reason, req.ClosedBy, req.ExitPrice, req.ProfitLoss,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("close trade %s/%s: %w", req.Platform, req.Ticket, err)
	}

	record := recordFromClose(req, uuid.NewString())
	inserted, err := r.insertTrade(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("record closed trade %s/%s: %w", req.Platform, req.Ticket, err)
	}
	if !inserted {
		return nil, fmt.Errorf("%s/%s: %w", req.Platform, req.Ticket, ErrAlreadyClosed)
	}
	return record, nil
}

// ListTrades returns trades matching the filter, newest first
func (r *Repository) ListTrades(ctx context.Context, filter TradeFilter) ([]*TradeRecord, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Strategy != "" {
		add("strategy = $%d", filter.Strategy)
	}
	if filter.Platform != "" {
		add("platform = $%d", filter.Platform)
	}

	query := `SELECT ` + tradeColumns + ` FROM trades`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY opened_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []*TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountOpenByStrategy counts OPEN records carrying a strategy tag
func (r *Repository) CountOpenByStrategy(ctx context.Context, strategy string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE status = 'OPEN' AND strategy = $1`, strategy,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open trades: %w", err)
	}
	return n, nil
}

// Stats summarizes all trades
func (r *Repository) Stats(ctx context.Context) (*TradeStats, error) {
	stats := &TradeStats{ByCommodity: make(map[string]CommodityStats)}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'OPEN'),
		       COUNT(*) FILTER (WHERE status = 'CLOSED'),
		       COALESCE(SUM(profit_loss) FILTER (WHERE status = 'CLOSED'), 0),
		       COUNT(*) FILTER (WHERE status = 'CLOSED' AND profit_loss > 0),
		       COUNT(*) FILTER (WHERE status = 'CLOSED' AND profit_loss < 0)
		FROM trades
	`).Scan(&stats.TotalTrades, &stats.OpenPositions, &stats.ClosedPositions,
		&stats.TotalProfitLoss, &stats.WinningTrades, &stats.LosingTrades)
	if err != nil {
		return nil, fmt.Errorf("trade stats: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT commodity, COUNT(*), COALESCE(SUM(profit_loss), 0), COUNT(*) FILTER (WHERE profit_loss > 0)
		FROM trades
		WHERE status = 'CLOSED'
		GROUP BY commodity
	`)
	if err != nil {
		return nil, fmt.Errorf("trade stats by commodity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var commodity string
		var cs CommodityStats
		if err := rows.Scan(&commodity, &cs.Trades, &cs.ProfitLoss, &cs.Winners); err != nil {
			return nil, err
		}
		stats.ByCommodity[commodity] = cs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.finish()
	return stats, nil
}

// Cleanup removes broker error records and OPEN records shadowed by another
// record with the same ticket on the same platform. Tickets are only unique
// per platform, so records of other brokers are never compared.
func (r *Repository) Cleanup(ctx context.Context) (*CleanupResult, error) {
	res := &CleanupResult{}

	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM trades WHERE ticket LIKE '%TRADE_RETCODE%' OR symbol LIKE '%TRADE_RETCODE%'`)
	if err != nil {
		return nil, fmt.Errorf("delete error records: %w", err)
	}
	res.ErrorRecords = tag.RowsAffected()

	tag, err = r.db.Pool.Exec(ctx, `
		DELETE FROM trades a
		USING trades b
		WHERE a.platform = b.platform
		  AND a.ticket = b.ticket
		  AND a.id <> b.id
		  AND a.status = 'OPEN'
		  AND (b.status = 'CLOSED' OR b.opened_at < a.opened_at OR (b.opened_at = a.opened_at AND b.id < a.id))
	`)
	if err != nil {
		return nil, fmt.Errorf("delete duplicate records: %w", err)
	}
	res.DuplicateRecords = tag.RowsAffected()

	return res, nil
}
