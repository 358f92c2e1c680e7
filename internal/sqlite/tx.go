package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-round-orders/internal/orders"
)

// txStore implements orders.Tx. The surrounding BEGIN IMMEDIATE already
// holds the database write lock, so plain reads are stable until commit.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetRound(ctx context.Context, roundID string) (orders.Round, error) {
	return getRound(ctx, t.tx, roundID)
}

func (t *txStore) LockProducts(ctx context.Context, roundID string, productIDs []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, round_id, name, price, stock_limit, stock_sold, visible, sort_order
  FROM products
 WHERE round_id = ? AND id IN (`+placeholders(len(productIDs))+`)
 ORDER BY id`, append([]any{roundID}, stringArgs(productIDs)...)...)
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
	return out, rows.Err()
}

func (t *txStore) CommittedQty(ctx context.Context, productIDs []string, excludeOrderID string) (map[string]int, error) {
	out := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
SELECT oi.product_id, SUM(oi.qty)
  FROM order_items oi
  JOIN orders o ON o.id = oi.order_id
 WHERE o.status = 'submitted'
   AND oi.product_id IN (`+placeholders(len(productIDs))+`)
   AND o.id <> ?
 GROUP BY oi.product_id`, stringArgs(productIDs, excludeOrderID)...)
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
	return t.order(ctx, `WHERE round_id = ? AND user_id = ? AND status = 'submitted'`, roundID, userID)
}

func (t *txStore) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return t.order(ctx, `WHERE id = ?`, orderID)
}

func (t *txStore) order(ctx context.Context, where string, args ...any) (orders.Order, error) {
	var (
		o                orders.Order
		status           string
		created, updated int64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT id, round_id, user_id, status, total_qty, total_amount, created_at, updated_at
  FROM orders `+where, args...).
		Scan(&o.ID, &o.RoundID, &o.UserID, &status, &o.TotalQty, &o.TotalAmount, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Order{}, classify("get order", err)
	}
	o.Status = orders.Status(status)
	o.CreatedAt = fromMillis(created)
	o.UpdatedAt = fromMillis(updated)
	return o, nil
}

func (t *txStore) OrderItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT product_id, qty, unit_price FROM order_items WHERE order_id = ? ORDER BY product_id`, orderID)
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
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO orders (id, round_id, user_id, status, total_qty, total_amount, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.RoundID, o.UserID, string(o.Status), o.TotalQty, o.TotalAmount, toMillis(o.CreatedAt), toMillis(o.UpdatedAt))
	return classify("insert order", err)
}

func (t *txStore) ReplaceOrderItems(ctx context.Context, orderID string, items []orders.OrderItem) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return classify("delete order items", err)
	}
	for _, it := range items {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, qty, unit_price) VALUES (?, ?, ?, ?)`,
			orderID, it.ProductID, it.Qty, it.UnitPrice); err != nil {
			return classify(fmt.Sprintf("insert item %s", it.ProductID), err)
		}
	}
	return nil
}

func (t *txStore) UpdateOrderTotals(ctx context.Context, orderID string, totalQty int, totalAmount int64, updatedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET total_qty = ?, total_amount = ?, updated_at = ? WHERE id = ?`,
		totalQty, totalAmount, toMillis(updatedAt), orderID)
	if err != nil {
		return classify("update order totals", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *txStore) SyncStockSold(ctx context.Context, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
UPDATE products
   SET stock_sold = COALESCE((SELECT SUM(oi.qty)
                                FROM order_items oi
                                JOIN orders o ON o.id = oi.order_id
                               WHERE o.status = 'submitted' AND oi.product_id = products.id), 0)
 WHERE id IN (`+placeholders(len(productIDs))+`)`, stringArgs(productIDs)...)
	return classify("sync stock sold", err)
}

func (t *txStore) EnsurePayment(ctx context.Context, orderID string, now time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO payments (order_id, payment_status, updated_at) VALUES (?, 'unpaid', ?)
ON CONFLICT (order_id) DO NOTHING`, orderID, toMillis(now))
	return classify("ensure payment", err)
}

var _ orders.Tx = (*txStore)(nil)
