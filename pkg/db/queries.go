package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyClosed is returned when closing a trade that is not OPEN.
var ErrAlreadyClosed = errors.New("trade already closed")

// CreateTrade inserts a new OPEN trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, trade_date, symbol, leg, qty, entry_price, entry_time,
			reentry_index, status, broker_order_id, dedup_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		t.ID, t.TradeDate, t.Symbol, t.Leg, t.Qty, t.EntryPrice, t.EntryTime,
		t.ReentryIndex, t.Status, t.BrokerOrderID, t.DedupKey, t.CreatedAt,
	)
	return err
}

// CloseTrade marks a trade CLOSED and stores exit fields plus realized PnL.
// PnL for a short option is (entry - exit) * qty.
func (d *Database) CloseTrade(ctx context.Context, id string, exitPrice float64, exitTime time.Time, reason string) (Trade, error) {
	t, err := d.GetTrade(ctx, id)
	if err != nil {
		return Trade{}, err
	}
	pnl := (t.EntryPrice - exitPrice) * float64(t.Qty)
	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, exit_time = ?, exit_reason = ?, pnl = ?, status = 'CLOSED'
		WHERE id = ? AND status = 'OPEN'
	`, exitPrice, exitTime, reason, pnl, id)
	if err != nil {
		return Trade{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Trade{}, err
	}
	if n == 0 {
		return Trade{}, fmt.Errorf("trade %s: %w", id, ErrAlreadyClosed)
	}
	t.ExitPrice = exitPrice
	t.ExitTime = exitTime
	t.ExitReason = reason
	t.PnL = pnl
	t.Status = "CLOSED"
	return t, nil
}

// GetTrade fetches a single trade by ID.
func (d *Database) GetTrade(ctx context.Context, id string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, trade_date, symbol, leg, qty, entry_price,
		       COALESCE(entry_time, CURRENT_TIMESTAMP),
		       COALESCE(exit_price, 0), COALESCE(exit_time, entry_time, CURRENT_TIMESTAMP),
		       COALESCE(exit_reason, ''), COALESCE(pnl, 0),
		       reentry_index, status, COALESCE(broker_order_id, ''), COALESCE(dedup_key, '')
		FROM trades WHERE id = ?
	`, id)
	var t Trade
	err := row.Scan(&t.ID, &t.TradeDate, &t.Symbol, &t.Leg, &t.Qty, &t.EntryPrice,
		&t.EntryTime, &t.ExitPrice, &t.ExitTime, &t.ExitReason, &t.PnL,
		&t.ReentryIndex, &t.Status, &t.BrokerOrderID, &t.DedupKey)
	if err == sql.ErrNoRows {
		return Trade{}, ErrNotFound
	}
	return t, err
}

// FindTradeByDedupKey returns the trade carrying the given idempotency key,
// or ErrNotFound. Used by the executor to suppress duplicate submissions.
func (d *Database) FindTradeByDedupKey(ctx context.Context, key string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT id FROM trades WHERE dedup_key = ?`, key)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return Trade{}, ErrNotFound
		}
		return Trade{}, err
	}
	return d.GetTrade(ctx, id)
}

// ListOpenTrades returns all trades still marked OPEN.
func (d *Database) ListOpenTrades(ctx context.Context) ([]Trade, error) {
	return d.listTrades(ctx, `status = 'OPEN'`)
}

// ListTradesByDate returns every trade recorded on the given trading day.
func (d *Database) ListTradesByDate(ctx context.Context, date string) ([]Trade, error) {
	return d.listTrades(ctx, `trade_date = ?`, date)
}

func (d *Database) listTrades(ctx context.Context, where string, args ...any) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, trade_date, symbol, leg, qty, entry_price,
		       COALESCE(entry_time, CURRENT_TIMESTAMP),
		       COALESCE(exit_price, 0), COALESCE(exit_time, entry_time, CURRENT_TIMESTAMP),
		       COALESCE(exit_reason, ''), COALESCE(pnl, 0),
		       reentry_index, status, COALESCE(broker_order_id, ''), COALESCE(dedup_key, '')
		FROM trades WHERE `+where+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.TradeDate, &t.Symbol, &t.Leg, &t.Qty, &t.EntryPrice,
			&t.EntryTime, &t.ExitPrice, &t.ExitTime, &t.ExitReason, &t.PnL,
			&t.ReentryIndex, &t.Status, &t.BrokerOrderID, &t.DedupKey); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpsertDailyPnL folds one closed-trade result into the day's aggregate row.
func (d *Database) UpsertDailyPnL(ctx context.Context, date string, pnl float64) error {
	wins, losses := 0, 0
	if pnl >= 0 {
		wins = 1
	} else {
		losses = 1
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO daily_pnl (date, total_pnl, total_trades, winning_trades, losing_trades)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_pnl = total_pnl + ?,
			total_trades = total_trades + 1,
			winning_trades = winning_trades + ?,
			losing_trades = losing_trades + ?
	`, date, pnl, wins, losses, pnl, wins, losses)
	return err
}

// UpdateMaxDrawdown records the deepest intraday drawdown seen so far.
func (d *Database) UpdateMaxDrawdown(ctx context.Context, date string, drawdown float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE daily_pnl SET max_drawdown = MAX(max_drawdown, ?) WHERE date = ?
	`, drawdown, date)
	return err
}

// GetDailyPnL returns the aggregate row for a date, or a zero row.
func (d *Database) GetDailyPnL(ctx context.Context, date string) (DailyPnL, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT date, total_pnl, total_trades, winning_trades, losing_trades, max_drawdown
		FROM daily_pnl WHERE date = ?
	`, date)
	var p DailyPnL
	err := row.Scan(&p.Date, &p.TotalPnL, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades, &p.MaxDrawdown)
	if err == sql.ErrNoRows {
		return DailyPnL{Date: date}, nil
	}
	return p, err
}

// GetReentry returns the re-entry counter for (date, leg); zero row when absent.
func (d *Database) GetReentry(ctx context.Context, date, leg string) (ReentryRow, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT date, leg, count, is_stopped, last_updated
		FROM reentry_tracking WHERE date = ? AND leg = ?
	`, date, leg)
	var r ReentryRow
	var stopped int
	err := row.Scan(&r.Date, &r.Leg, &r.Count, &stopped, &r.LastUpdated)
	if err == sql.ErrNoRows {
		return ReentryRow{Date: date, Leg: leg}, nil
	}
	if err != nil {
		return ReentryRow{}, err
	}
	r.IsStopped = stopped == 1
	return r, nil
}

// UpsertReentry stores the re-entry counter for (date, leg).
func (d *Database) UpsertReentry(ctx context.Context, r ReentryRow) error {
	stopped := 0
	if r.IsStopped {
		stopped = 1
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO reentry_tracking (date, leg, count, is_stopped, last_updated)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date, leg) DO UPDATE SET
			count = excluded.count,
			is_stopped = excluded.is_stopped,
			last_updated = CURRENT_TIMESTAMP
	`, r.Date, r.Leg, r.Count, stopped)
	return err
}

// InsertStrategyLogSQL is the statement the batched log writer flushes.
const InsertStrategyLogSQL = `
	INSERT INTO strategy_logs (timestamp, level, leg, message, data)
	VALUES (COALESCE(?, CURRENT_TIMESTAMP), ?, ?, ?, ?)
`

// ListRecentLogs returns the newest strategy log rows, newest first.
func (d *Database) ListRecentLogs(ctx context.Context, limit int) ([]LogEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT timestamp, level, leg, message, data
		FROM strategy_logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEvent
	for rows.Next() {
		var e LogEvent
		if err := rows.Scan(&e.Timestamp, &e.Level, &e.Leg, &e.Message, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetConfigValue reads one app_config value; empty string when absent.
func (d *Database) GetConfigValue(ctx context.Context, key string) (string, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// SetConfigValue upserts one app_config value.
func (d *Database) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// CreateOperator inserts a dashboard login.
func (d *Database) CreateOperator(ctx context.Context, o Operator) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO operators (id, email, password_hash, created_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, o.ID, strings.ToLower(o.Email), o.PasswordHash, o.CreatedAt)
	return err
}

// GetOperatorByEmail returns an operator by email or nil when not found.
func (d *Database) GetOperatorByEmail(ctx context.Context, email string) (*Operator, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at
		FROM operators WHERE email = ?
	`, strings.ToLower(email))
	var o Operator
	if err := row.Scan(&o.ID, &o.Email, &o.PasswordHash, &o.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// TradeDate formats a timestamp as the canonical trading-day key.
func TradeDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// String helper for debug logging.
func (t Trade) String() string {
	return fmt.Sprintf("%s %s qty=%d entry=%.2f status=%s", t.Leg, t.Symbol, t.Qty, t.EntryPrice, t.Status)
}
