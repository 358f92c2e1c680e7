package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/payments"
)

const paymentSelect = `
SELECT pm.order_id, o.round_id, pm.payment_status, pm.payment_amount, pm.payment_note, pm.paid_at, pm.updated_at
  FROM payments pm
  JOIN orders o ON o.id = pm.order_id
 WHERE pm.order_id = ?`

func scanPayment(row interface{ Scan(...any) error }, extra ...any) (payments.Record, error) {
	var (
		r       payments.Record
		status  string
		amount  sql.NullInt64
		note    sql.NullString
		paidAt  sql.NullInt64
		updated int64
	)
	dest := append(extra, &r.OrderID, &r.RoundID, &status, &amount, &note, &paidAt, &updated)
	if err := row.Scan(dest...); err != nil {
		return payments.Record{}, err
	}
	r.Status = payments.Status(status)
	if amount.Valid {
		v := amount.Int64
		r.Amount = &v
	}
	if note.Valid {
		v := note.String
		r.Note = &v
	}
	if paidAt.Valid {
		v := fromMillis(paidAt.Int64)
		r.PaidAt = &v
	}
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func (s *Store) GetPayment(ctx context.Context, orderID string) (payments.Record, error) {
	r, err := scanPayment(s.sqlDB.QueryRowContext(ctx, paymentSelect, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Record{}, orders.ErrNotFound
	}
	if err != nil {
		return payments.Record{}, classify("get payment", err)
	}
	return r, nil
}

// MutatePayment reads and rewrites the row inside one immediate transaction.
func (s *Store) MutatePayment(ctx context.Context, orderID string, fn func(payments.Record) (payments.Record, error)) (payments.Record, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return payments.Record{}, classify("begin tx", err)
	}
	defer tx.Rollback()

	cur, err := scanPayment(tx.QueryRowContext(ctx, paymentSelect, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Record{}, orders.ErrNotFound
	}
	if err != nil {
		return payments.Record{}, classify("get payment", err)
	}
	next, err := fn(cur)
	if err != nil {
		return payments.Record{}, err
	}

	var paidAt sql.NullInt64
	if next.PaidAt != nil {
		paidAt = nullMillis(*next.PaidAt)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE payments
   SET payment_status = ?, payment_amount = ?, payment_note = ?, paid_at = ?, updated_at = ?
 WHERE order_id = ?`,
		string(next.Status), next.Amount, next.Note, paidAt, toMillis(next.UpdatedAt), orderID); err != nil {
		return payments.Record{}, classify("update payment", err)
	}
	if err := tx.Commit(); err != nil {
		return payments.Record{}, classify("commit", err)
	}
	return next, nil
}

func (s *Store) ListRoundPayments(ctx context.Context, roundID string) ([]payments.LedgerRow, error) {
	if _, err := getRound(ctx, s.sqlDB, roundID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT o.user_id, o.total_qty, o.total_amount,
       pm.order_id, o.round_id, pm.payment_status, pm.payment_amount, pm.payment_note, pm.paid_at, pm.updated_at
  FROM orders o
  JOIN payments pm ON pm.order_id = o.id
 WHERE o.round_id = ? AND o.status = 'submitted'
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

var _ payments.Store = (*Store)(nil)
