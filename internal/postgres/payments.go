package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/payments"
)

const paymentSelect = `
SELECT pm.order_id, o.round_id, pm.payment_status, pm.payment_amount, pm.payment_note, pm.paid_at, pm.updated_at
  FROM payments pm
  JOIN orders o ON o.id = pm.order_id
 WHERE pm.order_id = $1`

func scanPayment(row pgx.Row, extra ...any) (payments.Record, error) {
	var (
		r      payments.Record
		status string
	)
	dest := append(extra, &r.OrderID, &r.RoundID, &status, &r.Amount, &r.Note, &r.PaidAt, &r.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return payments.Record{}, err
	}
	r.Status = payments.Status(status)
	if r.PaidAt != nil {
		t := r.PaidAt.UTC()
		r.PaidAt = &t
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) GetPayment(ctx context.Context, orderID string) (payments.Record, error) {
	r, err := scanPayment(s.DB.QueryRow(ctx, paymentSelect, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.Record{}, orders.ErrNotFound
	}
	if err != nil {
		return payments.Record{}, classify("get payment", err)
	}
	return r, nil
}

// MutatePayment locks the payment row FOR UPDATE so concurrent organizer
// edits apply one after the other.
func (s *Store) MutatePayment(ctx context.Context, orderID string, fn func(payments.Record) (payments.Record, error)) (payments.Record, error) {
	var next payments.Record
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		cur, err := scanPayment(tx.QueryRow(ctx, paymentSelect+` FOR UPDATE OF pm`, orderID))
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.ErrNotFound
		}
		if err != nil {
			return classify("get payment", err)
		}
		if next, err = fn(cur); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE payments
   SET payment_status = $1, payment_amount = $2, payment_note = $3, paid_at = $4, updated_at = $5
 WHERE order_id = $6`,
			string(next.Status), next.Amount, next.Note, paidAtOrNil(next.PaidAt), next.UpdatedAt, orderID)
		return classify("update payment", err)
	})
	if err != nil {
		return payments.Record{}, err
	}
	return next, nil
}

func (s *Store) ListRoundPayments(ctx context.Context, roundID string) ([]payments.LedgerRow, error) {
	if _, err := s.GetRound(ctx, roundID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
SELECT o.user_id, o.total_qty, o.total_amount,
       pm.order_id, o.round_id, pm.payment_status, pm.payment_amount, pm.payment_note, pm.paid_at, pm.updated_at
  FROM orders o
  JOIN payments pm ON pm.order_id = o.id
 WHERE o.round_id = $1 AND o.status = 'submitted'
 ORDER BY o.created_at, o.id`, roundID)
	if err != nil {
		return nil, classify("list round payments", err)
	}
	defer rows.Close()

	out := []payments.LedgerRow{}
	for rows.Next() {
		var row payments.LedgerRow
		rec, err := scanPayment(rows, &row.UserID, &row.TotalQty, &row.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		row.Record = rec
		out = append(out, row)
	}
	return out, rows.Err()
}

// paidAtOrNil keeps zero times out of the column.
func paidAtOrNil(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	return t
}

var _ payments.Store = (*Store)(nil)
