// Package sqlite provides a SQLite-backed implementation of the round
// ordering stores. Writers are serialized by BEGIN IMMEDIATE.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/sqlite/migrations"
)

// Store persists rounds, orders, payments and the audit trail in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value time.Time) sql.NullInt64 {
	if value.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	return fromMillis(value.Int64)
}

// Open opens a SQLite store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// WithTx runs fn inside one immediate transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roundID string) (orders.Round, error) {
	return getRound(ctx, s.sqlDB, roundID)
}

func (s *Store) ListAvailability(ctx context.Context, roundID string) ([]orders.Availability, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT p.id, p.name, p.price, p.stock_limit,
       COALESCE((SELECT SUM(oi.qty)
                   FROM order_items oi
                   JOIN orders o ON o.id = oi.order_id
                  WHERE o.status = 'submitted' AND oi.product_id = p.id), 0)
  FROM products p
 WHERE p.round_id = ? AND p.visible = 1
 ORDER BY p.sort_order, p.name, p.id`, roundID)
	if err != nil {
		return nil, classify("list availability", err)
	}
	defer rows.Close()

	out := []orders.Availability{}
	for rows.Next() {
		var a orders.Availability
		var committed int
		if err := rows.Scan(&a.ProductID, &a.Name, &a.Price, &a.StockLimit, &committed); err != nil {
			return nil, err
		}
		a.StockRemaining = orders.Remaining(a.StockLimit, committed)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ProductTotals(ctx context.Context, roundID string) ([]orders.ProductTotal, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT p.id, p.name, p.price, COALESCE(t.qty, 0), COALESCE(t.amount, 0), p.stock_limit
  FROM products p
  LEFT JOIN (SELECT oi.product_id, SUM(oi.qty) AS qty, SUM(oi.qty * oi.unit_price) AS amount
               FROM order_items oi
               JOIN orders o ON o.id = oi.order_id
              WHERE o.status = 'submitted'
              GROUP BY oi.product_id) t ON t.product_id = p.id
 WHERE p.round_id = ?
 ORDER BY p.sort_order, p.name, p.id`, roundID)
	if err != nil {
		return nil, classify("product totals", err)
	}
	defer rows.Close()

	out := []orders.ProductTotal{}
	for rows.Next() {
		var t orders.ProductTotal
		if err := rows.Scan(&t.ProductID, &t.Name, &t.UnitPrice, &t.TotalQty, &t.TotalAmount, &t.StockLimit); err != nil {
			return nil, err
		}
		t.StockRemaining = orders.Remaining(t.StockLimit, t.TotalQty)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RoundOrderItems(ctx context.Context, roundID string) ([]orders.OrderItemRow, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT o.id, o.user_id, oi.product_id, p.name, oi.qty, oi.unit_price, o.updated_at
  FROM orders o
  JOIN order_items oi ON oi.order_id = o.id
  JOIN products p ON p.id = oi.product_id
 WHERE o.round_id = ? AND o.status = 'submitted'
 ORDER BY o.updated_at, o.id, p.sort_order, p.name, oi.product_id`, roundID)
	if err != nil {
		return nil, classify("round order items", err)
	}
	defer rows.Close()

	out := []orders.OrderItemRow{}
	for rows.Next() {
		var (
			it      orders.OrderItemRow
			updated int64
		)
		if err := rows.Scan(&it.OrderID, &it.UserID, &it.ProductID, &it.ProductName, &it.Qty, &it.UnitPrice, &updated); err != nil {
			return nil, err
		}
		it.LineAmount = it.UnitPrice * int64(it.Qty)
		it.UpdatedAt = fromMillis(updated)
		out = append(out, it)
	}
	return out, rows.Err()
}

const orderViewQuery = `
SELECT o.id, o.round_id, o.user_id, o.status, o.total_qty, o.total_amount, o.created_at, o.updated_at,
       oi.product_id, oi.qty, oi.unit_price
  FROM orders o
  LEFT JOIN order_items oi ON oi.order_id = o.id
 WHERE %s
 ORDER BY oi.product_id`

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.OrderView, error) {
	return s.orderView(ctx, fmt.Sprintf(orderViewQuery, "o.id = ?"), orderID)
}

func (s *Store) FindSubmittedOrder(ctx context.Context, roundID, userID string) (orders.OrderView, error) {
	return s.orderView(ctx, fmt.Sprintf(orderViewQuery, "o.round_id = ? AND o.user_id = ? AND o.status = 'submitted'"), roundID, userID)
}

func (s *Store) orderView(ctx context.Context, query string, args ...any) (orders.OrderView, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return orders.OrderView{}, classify("order view", err)
	}
	defer rows.Close()

	var v orders.OrderView
	found := false
	for rows.Next() {
		var (
			o                orders.Order
			status           string
			created, updated int64
			productID        sql.NullString
			qty, unitPrice   sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.RoundID, &o.UserID, &status, &o.TotalQty, &o.TotalAmount, &created, &updated,
			&productID, &qty, &unitPrice); err != nil {
			return orders.OrderView{}, err
		}
		if !found {
			o.Status = orders.Status(status)
			o.CreatedAt = fromMillis(created)
			o.UpdatedAt = fromMillis(updated)
			v.Order = o
			v.Items = []orders.OrderItem{}
			found = true
		}
		if productID.Valid {
			v.Items = append(v.Items, orders.OrderItem{
				OrderID:   o.ID,
				ProductID: productID.String,
				Qty:       int(qty.Int64),
				UnitPrice: unitPrice.Int64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return orders.OrderView{}, err
	}
	if !found {
		return orders.OrderView{}, orders.ErrNotFound
	}
	return v, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRound(ctx context.Context, q querier, roundID string) (orders.Round, error) {
	var (
		r        orders.Round
		status   string
		deadline sql.NullInt64
		created  int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, title, deadline, status, created_at FROM rounds WHERE id = ?`, roundID,
	).Scan(&r.ID, &r.Title, &deadline, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Round{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Round{}, classify("get round", err)
	}
	r.Status = orders.RoundStatus(status)
	r.Deadline = fromNullMillis(deadline)
	r.CreatedAt = fromMillis(created)
	return r, nil
}

// classify maps driver errors onto the orders storage sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		msg := err.Error()
		switch {
		case code&0xff == sqlite3lib.SQLITE_BUSY, code&0xff == sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w: %w", op, orders.ErrConflict, err)
		case code&0xff != sqlite3lib.SQLITE_CONSTRAINT:
		case strings.Contains(msg, "products_stock_ceiling"):
			return fmt.Errorf("%s: %w: %w", op, orders.ErrCeiling, err)
		case code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			return fmt.Errorf("%s: %w: %w", op, orders.ErrDuplicate, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string, extra ...any) []any {
	args := make([]any, 0, len(values)+len(extra))
	for _, v := range values {
		args = append(args, v)
	}
	return append(args, extra...)
}

var _ orders.Store = (*Store)(nil)
