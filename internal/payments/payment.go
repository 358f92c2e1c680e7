// Package payments holds the organizer-owned settlement ledger. It never
// touches stock.
package payments

import "time"

type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid:
		return true
	}
	return false
}

type Record struct {
	OrderID   string     `json:"order_id"`
	RoundID   string     `json:"round_id"`
	Status    Status     `json:"payment_status"`
	Amount    *int64     `json:"payment_amount"`
	Note      *string    `json:"payment_note"`
	PaidAt    *time.Time `json:"paid_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Update is one setPayment call. Amount and Note replace the stored values,
// nil clears them.
type Update struct {
	Status Status  `json:"payment_status"`
	Amount *int64  `json:"payment_amount"`
	Note   *string `json:"payment_note"`
}

// Apply returns cur after u. Any status may follow any other; paid_at is set
// on entering paid, kept while staying paid and cleared on leaving it.
func Apply(cur Record, u Update, now time.Time) Record {
	next := cur
	next.Status = u.Status
	next.Amount = u.Amount
	next.Note = u.Note
	next.UpdatedAt = now
	switch {
	case u.Status != StatusPaid:
		next.PaidAt = nil
	case cur.Status != StatusPaid || cur.PaidAt == nil:
		paidAt := now
		next.PaidAt = &paidAt
	}
	return next
}

// LedgerRow is one submitted order as the organizer sees it on the payment page.
type LedgerRow struct {
	UserID      string `json:"user_id"`
	TotalQty    int    `json:"total_qty"`
	TotalAmount int64  `json:"total_amount"`
	Record
}

type Summary struct {
	People int   `json:"people"`
	Qty    int   `json:"qty"`
	Amount int64 `json:"amount"`
	Paid   int64 `json:"paid"`
}

// Summarize totals the ledger. A paid row counts its recorded amount, or the
// order total when no amount was recorded.
func Summarize(rows []LedgerRow) Summary {
	var s Summary
	for _, r := range rows {
		s.People++
		s.Qty += r.TotalQty
		s.Amount += r.TotalAmount
		if r.Status == StatusPaid {
			if r.Amount != nil {
				s.Paid += *r.Amount
			} else {
				s.Paid += r.TotalAmount
			}
		}
	}
	return s
}
