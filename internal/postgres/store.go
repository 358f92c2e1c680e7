package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-round-orders/internal/orders"
)

// Store is the Postgres data-access component. Stock decisions run under
// READ COMMITTED with explicit row locks on the affected products.
type Store struct{ DB *pgxpool.Pool }

func (s *Store) Close() error {
	s.DB.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roundID string) (orders.Round, error) {
	return scanRound(s.DB.QueryRow(ctx, roundSelect, roundID))
}

func (s *Store) ListAvailability(ctx context.Context, roundID string) ([]orders.Availability, error) {
	rows, err := s.DB.Query(ctx, `
SELECT p.id, p.name, p.price, p.stock_limit,
       COALESCE((SELECT SUM(oi.qty)
                   FROM order_items oi
                   JOIN orders o ON o.id = oi.order_id
                  WHERE o.status = 'submitted' AND oi.product_id = p.id), 0)
  FROM products p
 WHERE p.round_id = $1 AND p.visible
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
	rows, err := s.DB.Query(ctx, `
SELECT p.id, p.name, p.price, COALESCE(t.qty, 0), COALESCE(t.amount, 0), p.stock_limit
  FROM products p
  LEFT JOIN (SELECT oi.product_id, SUM(oi.qty) AS qty, SUM(oi.qty * oi.unit_price) AS amount
               FROM order_items oi
               JOIN orders o ON o.id = oi.order_id
              WHERE o.status = 'submitted'
              GROUP BY oi.product_id) t ON t.product_id = p.id
 WHERE p.round_id = $1
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
	rows, err := s.DB.Query(ctx, `
SELECT o.id, o.user_id, oi.product_id, p.name, oi.qty, oi.unit_price, o.updated_at
  FROM orders o
  JOIN order_items oi ON oi.order_id = o.id
  JOIN products p ON p.id = oi.product_id
 WHERE o.round_id = $1 AND o.status = 'submitted'
 ORDER BY o.updated_at, o.id, p.sort_order, p.name, oi.product_id`, roundID)
	if err != nil {
		return nil, classify("round order items", err)
	}
	defer rows.Close()

	out := []orders.OrderItemRow{}
	for rows.Next() {
		var it orders.OrderItemRow
		if err := rows.Scan(&it.OrderID, &it.UserID, &it.ProductID, &it.ProductName, &it.Qty, &it.UnitPrice, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.LineAmount = it.UnitPrice * int64(it.Qty)
		out = append(out, it)
	}
	return out, rows.Err()
}

// Order and items come back in one statement so they share a snapshot.
const orderViewSelect = `
SELECT o.id, o.round_id, o.user_id, o.status, o.total_qty, o.total_amount, o.created_at, o.updated_at,
       COALESCE(json_agg(json_build_object('product_id', oi.product_id, 'qty', oi.qty, 'unit_price', oi.unit_price)
                         ORDER BY oi.product_id) FILTER (WHERE oi.product_id IS NOT NULL), '[]')
  FROM orders o
  LEFT JOIN order_items oi ON oi.order_id = o.id
 WHERE %s
 GROUP BY o.id`

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.OrderView, error) {
	return scanOrderView(s.DB.QueryRow(ctx, fmt.Sprintf(orderViewSelect, "o.id = $1"), orderID))
}

func (s *Store) FindSubmittedOrder(ctx context.Context, roundID, userID string) (orders.OrderView, error) {
	return scanOrderView(s.DB.QueryRow(ctx,
		fmt.Sprintf(orderViewSelect, "o.round_id = $1 AND o.user_id = $2 AND o.status = 'submitted'"), roundID, userID))
}

func scanOrderView(row pgx.Row) (orders.OrderView, error) {
	var (
		v      orders.OrderView
		status string
	)
	o := &v.Order
	err := row.Scan(&o.ID, &o.RoundID, &o.UserID, &status, &o.TotalQty, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt, &v.Items)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.OrderView{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.OrderView{}, classify("order view", err)
	}
	o.Status = orders.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	for i := range v.Items {
		v.Items[i].OrderID = o.ID
	}
	return v, nil
}

const roundSelect = `SELECT id, title, deadline, status, created_at FROM rounds WHERE id = $1`

func scanRound(row pgx.Row) (orders.Round, error) {
	var (
		r        orders.Round
		status   string
		deadline *time.Time
	)
	err := row.Scan(&r.ID, &r.Title, &deadline, &status, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Round{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Round{}, classify("get round", err)
	}
	r.Status = orders.RoundStatus(status)
	if deadline != nil {
		r.Deadline = deadline.UTC()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// classify maps SQLSTATEs onto the orders storage sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return fmt.Errorf("%s: %w: %w", op, orders.ErrConflict, err)
		case "23505":
			return fmt.Errorf("%s: %w: %w", op, orders.ErrDuplicate, err)
		case "23514":
			if pgErr.ConstraintName == "products_stock_ceiling" {
				return fmt.Errorf("%s: %w: %w", op, orders.ErrCeiling, err)
			}
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return fmt.Errorf("%s: %w: %w", op, orders.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ orders.Store = (*Store)(nil)
