// Package journal persists executed orders to SQLite for later queries
// (per-user order history, per-account audits).
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	client_order_id  TEXT NOT NULL,
	account_id       TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	time_in_force    TEXT NOT NULL,
	qty              TEXT NOT NULL,
	filled_qty       TEXT NOT NULL,
	limit_price      TEXT,
	filled_avg_price TEXT,
	risk_score       INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL,
	filled_at        TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_user    ON orders(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id, created_at DESC);
`

// Store implements the engine's Journal interface backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use Store.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts (or updates, on repeated broker callbacks) an order row.
func (s *Store) Record(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
		(id, client_order_id, account_id, user_id, symbol, side, type, status,
		 time_in_force, qty, filled_qty, limit_price, filled_avg_price,
		 risk_score, created_at, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClientOrderID, o.AccountID, o.UserID, o.Symbol,
		string(o.Side), string(o.Type), string(o.Status), string(o.TimeInForce),
		o.Qty.String(), o.FilledQty.String(),
		decimalPtrString(o.LimitPrice), decimalPtrString(o.FilledAvgPrice),
		o.RiskScore, o.CreatedAt.UTC(), timePtr(o.FilledAt),
	)
	if err != nil {
		return fmt.Errorf("recording order %s: %w", o.ID, err)
	}
	return nil
}

// OrdersForUser returns the user's orders, newest first, up to limit.
func (s *Store) OrdersForUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return s.query(ctx, "user_id", userID, limit)
}

// OrdersForAccount returns an account's orders, newest first, up to limit.
func (s *Store) OrdersForAccount(ctx context.Context, accountID string, limit int) ([]domain.Order, error) {
	return s.query(ctx, "account_id", accountID, limit)
}

func (s *Store) query(ctx context.Context, column, value string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, client_order_id, account_id, user_id, symbol, side, type,
		       status, time_in_force, qty, filled_qty, limit_price,
		       filled_avg_price, risk_score, created_at, filled_at
		FROM orders WHERE %s = ? ORDER BY created_at DESC LIMIT ?`, column),
		value, limit)
	if err != nil {
		return nil, fmt.Errorf("querying orders by %s: %w", column, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o                     domain.Order
			side, typ, status     string
			tif, qty, filledQty   string
			limitPrice, avgPrice  sql.NullString
			createdAt             time.Time
			filledAt              sql.NullTime
		)
		if err := rows.Scan(
			&o.ID, &o.ClientOrderID, &o.AccountID, &o.UserID, &o.Symbol,
			&side, &typ, &status, &tif, &qty, &filledQty,
			&limitPrice, &avgPrice, &o.RiskScore, &createdAt, &filledAt,
		); err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}

		o.Side = domain.OrderSide(side)
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		o.TimeInForce = domain.TimeInForce(tif)
		o.CreatedAt = createdAt

		if o.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("bad qty %q for order %s: %w", qty, o.ID, err)
		}
		if o.FilledQty, err = decimal.NewFromString(filledQty); err != nil {
			return nil, fmt.Errorf("bad filled_qty %q for order %s: %w", filledQty, o.ID, err)
		}
		if o.LimitPrice, err = nullDecimal(limitPrice); err != nil {
			return nil, fmt.Errorf("bad limit_price for order %s: %w", o.ID, err)
		}
		if o.FilledAvgPrice, err = nullDecimal(avgPrice); err != nil {
			return nil, fmt.Errorf("bad filled_avg_price for order %s: %w", o.ID, err)
		}
		if filledAt.Valid {
			t := filledAt.Time
			o.FilledAt = &t
		}

		out = append(out, o)
	}
	return out, rows.Err()
}

func decimalPtrString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
