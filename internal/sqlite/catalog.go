package sqlite

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-round-orders/internal/orders"
)

// Catalog writes. Rounds and products are owned by the organizer tooling;
// these exist for seeding and tests.

func (s *Store) PutRound(ctx context.Context, r orders.Round) error {
	if !r.Status.Valid() {
		return fmt.Errorf("put round: invalid status %q", r.Status)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO rounds (id, title, deadline, status, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET title = excluded.title, deadline = excluded.deadline, status = excluded.status`,
		r.ID, r.Title, nullMillis(r.Deadline), string(r.Status), toMillis(r.CreatedAt))
	return classify("put round", err)
}

func (s *Store) PutProduct(ctx context.Context, p orders.Product) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO products (id, round_id, name, price, stock_limit, visible, sort_order) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, price = excluded.price, stock_limit = excluded.stock_limit,
    visible = excluded.visible, sort_order = excluded.sort_order`,
		p.ID, p.RoundID, p.Name, p.Price, p.StockLimit, p.Visible, p.SortOrder)
	return classify("put product", err)
}

func (s *Store) SetRoundStatus(ctx context.Context, roundID string, status orders.RoundStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set round status: invalid status %q", status)
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE rounds SET status = ? WHERE id = ?`, string(status), roundID)
	if err != nil {
		return classify("set round status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return orders.ErrNotFound
	}
	return nil
}

// StockSold returns the stored running total of one product.
func (s *Store) StockSold(ctx context.Context, productID string) (int, error) {
	var sold int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT stock_sold FROM products WHERE id = ?`, productID).Scan(&sold)
	return sold, classify("stock sold", err)
}
