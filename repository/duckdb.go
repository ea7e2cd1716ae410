package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/kestrel-trading/engine/types"
)

// schemaStatements creates the five tables of spec.md §6, with monotonic
// primary keys, unique business keys, UTC timestamps, and symbol/status/
// time indexing. Numeric columns use DOUBLE and the write path stores the
// float64 values as given: prices and volumes are not rounded to 8
// fractional digits, nor percentages to 4.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_orders_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_fills_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_positions_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_trades_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_account_history_id START 1`,

	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_orders_id'),
		order_id VARCHAR UNIQUE NOT NULL,
		symbol VARCHAR NOT NULL,
		side VARCHAR NOT NULL CHECK (side IN ('BUY','SELL')),
		volume DOUBLE NOT NULL,
		price DOUBLE NOT NULL,
		stop DOUBLE NOT NULL,
		target DOUBLE NOT NULL,
		magic_number BIGINT NOT NULL,
		comment VARCHAR NOT NULL,
		status VARCHAR NOT NULL CHECK (status IN ('PENDING','PARTIAL_FILLED','FILLED','CANCELLED','REJECTED','EXPIRED')),
		rejection_reason VARCHAR NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,

	`CREATE TABLE IF NOT EXISTS fills (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_fills_id'),
		fill_id VARCHAR UNIQUE NOT NULL,
		order_id VARCHAR NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
		price DOUBLE NOT NULL,
		volume DOUBLE NOT NULL,
		filled_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fills_order_id ON fills(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_positions_id'),
		position_id VARCHAR UNIQUE NOT NULL,
		symbol VARCHAR NOT NULL,
		side VARCHAR NOT NULL CHECK (side IN ('BUY','SELL')),
		volume DOUBLE NOT NULL,
		entry DOUBLE NOT NULL,
		stop DOUBLE NOT NULL,
		target DOUBLE NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_opened_at ON positions(opened_at)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_trades_id'),
		trade_id VARCHAR UNIQUE NOT NULL,
		symbol VARCHAR NOT NULL,
		direction VARCHAR NOT NULL CHECK (direction IN ('LONG','SHORT')),
		volume DOUBLE NOT NULL,
		entry_price DOUBLE NOT NULL,
		exit_price DOUBLE NOT NULL,
		pnl DOUBLE NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at)`,

	`CREATE TABLE IF NOT EXISTS account_history (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_account_history_id'),
		recorded_at TIMESTAMPTZ NOT NULL,
		balance DOUBLE NOT NULL,
		equity DOUBLE NOT NULL,
		margin_free DOUBLE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_history_recorded_at ON account_history(recorded_at)`,
}

// DuckDBRepository implements Repository on top of an embedded DuckDB
// database via database/sql and sql.Open("duckdb", "").
type DuckDBRepository struct {
	db *sql.DB
}

// OpenDuckDBRepository opens (or creates) a DuckDB file at path ("" for an
// in-memory, process-local database) and ensures the schema exists.
func OpenDuckDBRepository(path string) (*DuckDBRepository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open duckdb: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("repository: apply schema (%s): %w", stmt, err)
		}
	}
	return &DuckDBRepository{db: db}, nil
}

func (r *DuckDBRepository) Close() error { return r.db.Close() }

func (r *DuckDBRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `INSERT INTO orders
		(order_id, symbol, side, volume, price, stop, target, magic_number, comment, status, rejection_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		o.OrderID, o.Symbol, string(o.Side), o.Volume, o.Price, o.Stop, o.Target, o.MagicNumber, o.Comment, string(o.Status), o.RejectionReason, o.CreatedAt)
	if err := row.Scan(&o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *DuckDBRepository) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, rejectionReason string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, rejection_reason = ? WHERE order_id = ?`,
		string(status), rejectionReason, orderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DuckDBRepository) InsertFill(ctx context.Context, f Fill) (Fill, error) {
	if f.FilledAt.IsZero() {
		f.FilledAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `INSERT INTO fills (fill_id, order_id, price, volume, filled_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`, f.FillID, f.OrderID, f.Price, f.Volume, f.FilledAt)
	if err := row.Scan(&f.ID); err != nil {
		return Fill{}, err
	}
	return f, nil
}

func (r *DuckDBRepository) UpsertPosition(ctx context.Context, p PositionRecord) (PositionRecord, error) {
	var existingID sql.NullInt64
	row := r.db.QueryRowContext(ctx, `SELECT id FROM positions WHERE position_id = ?`, p.PosID)
	_ = row.Scan(&existingID)

	if existingID.Valid {
		p.ID = existingID.Int64
		_, err := r.db.ExecContext(ctx, `UPDATE positions SET symbol=?, side=?, volume=?, entry=?, stop=?, target=?, opened_at=?, closed_at=? WHERE position_id=?`,
			p.Symbol, string(p.Side), p.Volume, p.Entry, p.Stop, p.Target, p.OpenedAt, p.ClosedAt, p.PosID)
		return p, err
	}

	row = r.db.QueryRowContext(ctx, `INSERT INTO positions
		(position_id, symbol, side, volume, entry, stop, target, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		p.PosID, p.Symbol, string(p.Side), p.Volume, p.Entry, p.Stop, p.Target, p.OpenedAt, p.ClosedAt)
	if err := row.Scan(&p.ID); err != nil {
		return PositionRecord{}, err
	}
	return p, nil
}

func (r *DuckDBRepository) ClosePosition(ctx context.Context, posID string, closedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE positions SET closed_at = ? WHERE position_id = ?`, closedAt, posID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DuckDBRepository) InsertTrade(ctx context.Context, t Trade) (Trade, error) {
	row := r.db.QueryRowContext(ctx, `INSERT INTO trades
		(trade_id, symbol, direction, volume, entry_price, exit_price, pnl, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		t.TradeID, t.Symbol, string(t.Direction), t.Volume, t.EntryPrice, t.ExitPrice, t.PnL, t.OpenedAt, t.ClosedAt)
	if err := row.Scan(&t.ID); err != nil {
		return Trade{}, err
	}
	return t, nil
}

func (r *DuckDBRepository) InsertAccountSnapshot(ctx context.Context, a AccountSnapshot) (AccountSnapshot, error) {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `INSERT INTO account_history (recorded_at, balance, equity, margin_free)
		VALUES (?, ?, ?, ?) RETURNING id`, a.RecordedAt, a.Balance, a.Equity, a.MarginFree)
	if err := row.Scan(&a.ID); err != nil {
		return AccountSnapshot{}, err
	}
	return a, nil
}

func (r *DuckDBRepository) OrdersBySymbol(ctx context.Context, symbol string) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, symbol, side, volume, price, stop, target, magic_number, comment, status, rejection_reason, created_at
		FROM orders WHERE symbol = ? ORDER BY created_at`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var side, status string
		if err := rows.Scan(&o.ID, &o.OrderID, &o.Symbol, &side, &o.Volume, &o.Price, &o.Stop, &o.Target, &o.MagicNumber, &o.Comment, &status, &o.RejectionReason, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Side = types.Side(side)
		o.Status = OrderStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *DuckDBRepository) FillsByOrder(ctx context.Context, orderID string) ([]Fill, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, fill_id, order_id, price, volume, filled_at FROM fills WHERE order_id = ? ORDER BY filled_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.FillID, &f.OrderID, &f.Price, &f.Volume, &f.FilledAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *DuckDBRepository) OpenPositionsBySymbol(ctx context.Context, symbol string) ([]PositionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, position_id, symbol, side, volume, entry, stop, target, opened_at, closed_at
		FROM positions WHERE symbol = ? AND closed_at IS NULL ORDER BY opened_at`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		var side string
		var closedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.PosID, &p.Symbol, &side, &p.Volume, &p.Entry, &p.Stop, &p.Target, &p.OpenedAt, &closedAt); err != nil {
			return nil, err
		}
		p.Side = types.Side(side)
		if closedAt.Valid {
			p.ClosedAt = &closedAt.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *DuckDBRepository) TradesBySymbol(ctx context.Context, symbol string) ([]Trade, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, trade_id, symbol, direction, volume, entry_price, exit_price, pnl, opened_at, closed_at
		FROM trades WHERE symbol = ? ORDER BY closed_at`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var direction string
		if err := rows.Scan(&t.ID, &t.TradeID, &t.Symbol, &direction, &t.Volume, &t.EntryPrice, &t.ExitPrice, &t.PnL, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		t.Direction = TradeDirection(direction)
		out = append(out, t)
	}
	return out, rows.Err()
}
