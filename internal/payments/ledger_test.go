package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/auth"
	"github.com/ariefcatur/go-round-orders/internal/orders"
)

const (
	roundID  = "6a1f0c7e-2b3d-4e5f-8a9b-0c1d2e3f4a5b"
	orderOne = "7b2e1d8f-3c4e-4f60-9bac-1d2e3f4a5b6c"
	orderTwo = "8c3f2e90-4d5f-4071-acbd-2e3f4a5b6c7d"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]Record
	rows map[string]LedgerRow
}

func newMemStore() *memStore {
	s := &memStore{recs: map[string]Record{}, rows: map[string]LedgerRow{}}
	for id, total := range map[string]int64{orderOne: 30000, orderTwo: 15000} {
		s.recs[id] = Record{OrderID: id, RoundID: roundID, Status: StatusUnpaid}
		s.rows[id] = LedgerRow{UserID: "user-" + id[:4], TotalQty: 2, TotalAmount: total}
	}
	return s
}

func (s *memStore) GetPayment(_ context.Context, orderID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[orderID]
	if !ok {
		return Record{}, orders.ErrNotFound
	}
	return r, nil
}

func (s *memStore) MutatePayment(_ context.Context, orderID string, fn func(Record) (Record, error)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[orderID]
	if !ok {
		return Record{}, orders.ErrNotFound
	}
	next, err := fn(r)
	if err != nil {
		return Record{}, err
	}
	s.recs[orderID] = next
	return next, nil
}

func (s *memStore) ListRoundPayments(_ context.Context, rid string) ([]LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rid != roundID {
		return nil, orders.ErrNotFound
	}
	var out []LedgerRow
	for id, row := range s.rows {
		row.Record = s.recs[id]
		out = append(out, row)
	}
	return out, nil
}

var (
	organizer   = auth.Principal{UserID: "org-1", Role: auth.RoleOrganizer}
	participant = auth.Principal{UserID: "p-1", Role: auth.RoleParticipant}
)

func newTestLedger(t *testing.T) (*Ledger, *memStore) {
	t.Helper()
	st := newMemStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return NewLedger(st, zaptest.NewLogger(t), func() time.Time { return now }), st
}

func TestSetPayment_RequiresOrganizer(t *testing.T) {
	l, st := newTestLedger(t)
	_, err := l.SetPayment(context.Background(), participant, orderOne, Update{Status: StatusPaid})
	if apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("err = %v", err)
	}
	if st.recs[orderOne].Status != StatusUnpaid {
		t.Fatal("forbidden call changed the record")
	}
}

func TestSetPayment_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	long := make([]rune, maxNoteLen+1)
	for i := range long {
		long[i] = 'x'
	}
	note := string(long)

	tests := []struct {
		name    string
		orderID string
		u       Update
		code    apperr.Code
	}{
		{"bad status", orderOne, Update{Status: "refunded"}, apperr.CodeValidation},
		{"negative amount", orderOne, Update{Status: StatusPartial, Amount: i64(-5)}, apperr.CodeValidation},
		{"long note", orderOne, Update{Status: StatusPartial, Note: &note}, apperr.CodeValidation},
		{"malformed id", "nope", Update{Status: StatusPaid}, apperr.CodeValidation},
		{"unknown order", "9d4a3fa1-5e60-4182-bdce-3f4a5b6c7d8e", Update{Status: StatusPaid}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SetPayment(context.Background(), organizer, tt.orderID, tt.u)
			if got := apperr.CodeOf(err); got != tt.code {
				t.Fatalf("code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
}

func TestSetPayment_Scenario(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.SetPayment(ctx, organizer, orderOne, Update{Status: StatusPartial, Amount: i64(10000), Note: str("deposit")}); err != nil {
		t.Fatalf("partial: %v", err)
	}
	rec, err := l.SetPayment(ctx, organizer, orderOne, Update{Status: StatusPaid, Amount: i64(30000)})
	if err != nil {
		t.Fatalf("paid: %v", err)
	}
	if rec.PaidAt == nil || *rec.Amount != 30000 {
		t.Fatalf("paid record = %+v", rec)
	}
	rec, err = l.SetPayment(ctx, organizer, orderOne, Update{Status: StatusUnpaid})
	if err != nil {
		t.Fatalf("unpaid: %v", err)
	}
	if rec.PaidAt != nil {
		t.Fatalf("paid_at not cleared: %+v", rec)
	}

	got, err := l.Get(ctx, organizer, orderOne)
	if err != nil || got.Status != StatusUnpaid {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestRound_Summary(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.SetPayment(ctx, organizer, orderTwo, Update{Status: StatusPaid}); err != nil {
		t.Fatal(err)
	}
	led, err := l.Round(ctx, organizer, roundID)
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	want := Summary{People: 2, Qty: 4, Amount: 45000, Paid: 15000}
	if led.Summary != want {
		t.Fatalf("summary = %+v, want %+v", led.Summary, want)
	}

	if _, err := l.Round(ctx, organizer, "9d4a3fa1-5e60-4182-bdce-3f4a5b6c7d8e"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("unknown round err = %v", err)
	}
	if _, err := l.Round(ctx, participant, roundID); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("participant err = %v", err)
	}
}

func TestBatch_PerRowResults(t *testing.T) {
	l, st := newTestLedger(t)
	res, err := l.Batch(context.Background(), organizer, roundID, []BatchItem{
		{OrderID: orderOne, Update: Update{Status: StatusPaid}},
		{OrderID: orderTwo, Update: Update{Status: "bogus"}},
		{OrderID: "9d4a3fa1-5e60-4182-bdce-3f4a5b6c7d8e", Update: Update{Status: StatusPaid}},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("results = %+v", res)
	}
	if res[0].Record == nil || res[0].Record.Status != StatusPaid {
		t.Fatalf("row 0 = %+v", res[0])
	}
	if res[1].Code != apperr.CodeValidation || res[2].Code != apperr.CodeNotFound {
		t.Fatalf("rows 1,2 = %+v %+v", res[1], res[2])
	}
	if st.recs[orderTwo].Status != StatusUnpaid {
		t.Fatal("invalid row was written")
	}
}

func TestBatch_RejectsOrderFromOtherRound(t *testing.T) {
	l, st := newTestLedger(t)
	st.recs[orderTwo] = Record{OrderID: orderTwo, RoundID: "other", Status: StatusUnpaid}

	res, err := l.Batch(context.Background(), organizer, roundID, []BatchItem{{OrderID: orderTwo, Update: Update{Status: StatusPaid}}})
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Code != apperr.CodeNotFound {
		t.Fatalf("row = %+v", res[0])
	}
}
