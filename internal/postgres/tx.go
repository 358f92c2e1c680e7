package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-round-orders/internal/orders"
)

// txStore implements orders.Tx on a READ COMMITTED transaction. Product
// rows are locked FOR UPDATE in id order so concurrent submissions touching
// the same products serialize without deadlocking.
type txStore struct {
	tx pgx.Tx
}

// GetRound takes a share lock so a concurrent close waits for us.
func (t *txStore) GetRound(ctx context.Context, roundID string) (orders.Round, error) {
	return scanRound(t.tx.QueryRow(ctx, roundSelect+` FOR SHARE`, roundID))
}

func (t *txStore) LockProducts(ctx context.Context, roundID string, productIDs []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
SELECT id, round_id, name, price, stock_limit, stock_sold, visible, sort_order
  FROM products
 WHERE round_id = $1 AND id = ANY($2::uuid[])
 ORDER BY id
   FOR UPDATE`, roundID, productIDs)
	if err != nil {
		return nil, classify("lock products", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.RoundID, &p.Name, &p.Price, &p.StockLimit, &p.StockSold, &p.Visible, &p.SortOrder); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, classify("lock products", err)
	}
	return out, nil
}

func (t *txStore) CommittedQty(ctx context.Context, productIDs []string, excludeOrderID string) (map[string]int, error) {
	out := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
SELECT oi.product_id, SUM(oi.qty)::int
  FROM order_items oi
  JOIN orders o ON o.id = oi.order_id
 WHERE o.status = 'submitted'
   AND oi.product_id = ANY($1::uuid[])
   AND ($2::text = '' OR o.id::text <> $2::text)
 GROUP BY oi.product_id`, productIDs, excludeOrderID)
	if err != nil {
		return nil, classify("committed qty", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

func (t *txStore) SubmittedOrderFor(ctx context.Context, roundID, userID string) (orders.Order, error) {
	return t.order(ctx, `WHERE round_id = $1 AND user_id = $2 AND status = 'submitted'`, roundID, userID)
}

func (t *txStore) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return t.order(ctx, `WHERE id = $1 FOR UPDATE`, orderID)
}

func (t *txStore) order(ctx context.Context, where string, args ...any) (orders.Order, error) {
	var (
		o      orders.Order
		status string
	)
	err := t.tx.QueryRow(ctx, `
SELECT id, round_id, user_id, status, total_qty, total_amount, created_at, updated_at
  FROM orders `+where, args...).
		Scan(&o.ID, &o.RoundID, &o.UserID, &status, &o.TotalQty, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Order{}, classify("get order", err)
	}
	o.Status = orders.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (t *txStore) OrderItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT product_id, qty, unit_price FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, classify("order items", err)
	}
	defer rows.Close()
	out := []orders.OrderItem{}
	for rows.Next() {
		it := orders.OrderItem{OrderID: orderID}
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *txStore) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO orders (id, round_id, user_id, status, total_qty, total_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.RoundID, o.UserID, string(o.Status), o.TotalQty, o.TotalAmount, o.CreatedAt, o.UpdatedAt)
	return classify("insert order", err)
}

func (t *txStore) ReplaceOrderItems(ctx context.Context, orderID string, items []orders.OrderItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return classify("delete order items", err)
	}
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, qty, unit_price) VALUES ($1, $2, $3, $4)`,
			orderID, it.ProductID, it.Qty, it.UnitPrice)
	}
	br := t.tx.SendBatch(ctx, batch)
	for _, it := range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return classify(fmt.Sprintf("insert item %s", it.ProductID), err)
		}
	}
	return classify("insert items", br.Close())
}

func (t *txStore) UpdateOrderTotals(ctx context.Context, orderID string, totalQty int, totalAmount int64, updatedAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET total_qty = $1, total_amount = $2, updated_at = $3 WHERE id = $4`,
		totalQty, totalAmount, updatedAt, orderID)
	if err != nil {
		return classify("update order totals", err)
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *txStore) SyncStockSold(ctx context.Context, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
UPDATE products p
   SET stock_sold = COALESCE((SELECT SUM(oi.qty)
                                FROM order_items oi
                                JOIN orders o ON o.id = oi.order_id
                               WHERE o.status = 'submitted' AND oi.product_id = p.id), 0)
 WHERE p.id = ANY($1::uuid[])`, productIDs)
	return classify("sync stock sold", err)
}

func (t *txStore) EnsurePayment(ctx context.Context, orderID string, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO payments (order_id, payment_status, updated_at) VALUES ($1, 'unpaid', $2)
ON CONFLICT (order_id) DO NOTHING`, orderID, now)
	return classify("ensure payment", err)
}

var _ orders.Tx = (*txStore)(nil)
