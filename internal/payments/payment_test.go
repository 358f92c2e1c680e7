package payments

import (
	"testing"
	"time"
)

func i64(v int64) *int64    { return &v }
func str(v string) *string { return &v }

func TestApply_PaymentScenario(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := Record{OrderID: "o", Status: StatusUnpaid, UpdatedAt: t0}

	rec = Apply(rec, Update{Status: StatusPartial, Amount: i64(10000), Note: str("deposit")}, t0.Add(time.Hour))
	if rec.Status != StatusPartial || rec.PaidAt != nil || *rec.Amount != 10000 || *rec.Note != "deposit" {
		t.Fatalf("after partial: %+v", rec)
	}

	paidTime := t0.Add(2 * time.Hour)
	rec = Apply(rec, Update{Status: StatusPaid, Amount: i64(30000)}, paidTime)
	if rec.Status != StatusPaid || rec.PaidAt == nil || !rec.PaidAt.Equal(paidTime) {
		t.Fatalf("after paid: %+v", rec)
	}
	if *rec.Amount != 30000 || rec.Note != nil {
		t.Fatalf("amount/note not replaced: %+v", rec)
	}

	rec = Apply(rec, Update{Status: StatusUnpaid}, t0.Add(3*time.Hour))
	if rec.PaidAt != nil || rec.Amount != nil || rec.Status != StatusUnpaid {
		t.Fatalf("after unpaid: %+v", rec)
	}
}

func TestApply_StayingPaidKeepsPaidAt(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := Apply(Record{Status: StatusUnpaid}, Update{Status: StatusPaid}, first)
	rec = Apply(rec, Update{Status: StatusPaid, Note: str("receipt checked")}, first.Add(time.Hour))
	if !rec.PaidAt.Equal(first) {
		t.Fatalf("paid_at moved to %v", rec.PaidAt)
	}
	if !rec.UpdatedAt.Equal(first.Add(time.Hour)) {
		t.Fatalf("updated_at = %v", rec.UpdatedAt)
	}
}

func TestSummarize(t *testing.T) {
	rows := []LedgerRow{
		{TotalQty: 2, TotalAmount: 30000, Record: Record{Status: StatusPaid}},
		{TotalQty: 1, TotalAmount: 15000, Record: Record{Status: StatusPaid, Amount: i64(12000)}},
		{TotalQty: 4, TotalAmount: 60000, Record: Record{Status: StatusPartial, Amount: i64(20000)}},
	}
	got := Summarize(rows)
	want := Summary{People: 3, Qty: 7, Amount: 105000, Paid: 42000}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusUnpaid, StatusPartial, StatusPaid} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("refunded").Valid() {
		t.Error("refunded should be invalid")
	}
}
