package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-round-orders/internal/orders"
)

// Catalog writes used for seeding and tests. Organizer tooling owns the
// catalog in production.

func (s *Store) PutRound(ctx context.Context, r orders.Round) error {
	if !r.Status.Valid() {
		return fmt.Errorf("put round: invalid status %q", r.Status)
	}
	var deadline *time.Time
	if !r.Deadline.IsZero() {
		deadline = &r.Deadline
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO rounds (id, title, deadline, status, created_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, deadline = EXCLUDED.deadline, status = EXCLUDED.status`,
		r.ID, r.Title, deadline, string(r.Status), r.CreatedAt)
	return classify("put round", err)
}

func (s *Store) PutProduct(ctx context.Context, p orders.Product) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO products (id, round_id, name, price, stock_limit, visible, sort_order) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, stock_limit = EXCLUDED.stock_limit,
    visible = EXCLUDED.visible, sort_order = EXCLUDED.sort_order`,
		p.ID, p.RoundID, p.Name, p.Price, p.StockLimit, p.Visible, p.SortOrder)
	return classify("put product", err)
}

func (s *Store) SetRoundStatus(ctx context.Context, roundID string, status orders.RoundStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set round status: invalid status %q", status)
	}
	tag, err := s.DB.Exec(ctx, `UPDATE rounds SET status = $1 WHERE id = $2`, string(status), roundID)
	if err != nil {
		return classify("set round status", err)
	}
	if tag.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (s *Store) StockSold(ctx context.Context, productID string) (int, error) {
	var sold int
	err := s.DB.QueryRow(ctx, `SELECT stock_sold FROM products WHERE id = $1`, productID).Scan(&sold)
	return sold, classify("stock sold", err)
}
