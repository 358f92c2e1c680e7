package orders_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/sqlite"
)

var baseTime = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *sqlite.Store
	svc     *orders.Service
	roundID string
	p       string // stock_limit 10, price 15000
	q       string // stock_limit 5, price 2500
	clock   *atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "rounds.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, roundID: uuid.NewString(), p: uuid.NewString(), q: uuid.NewString(), clock: &atomic.Int64{}}
	f.clock.Store(baseTime.UnixNano())

	if err := store.PutRound(ctx, orders.Round{ID: f.roundID, Title: "June", Status: orders.RoundOpen, Deadline: baseTime.Add(48 * time.Hour), CreatedAt: baseTime}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutProduct(ctx, orders.Product{ID: f.p, RoundID: f.roundID, Name: "Beans", Price: 15000, StockLimit: 10, Visible: true, SortOrder: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutProduct(ctx, orders.Product{ID: f.q, RoundID: f.roundID, Name: "Filters", Price: 2500, StockLimit: 5, Visible: true, SortOrder: 2}); err != nil {
		t.Fatal(err)
	}

	f.svc = orders.NewService(store, zaptest.NewLogger(t),
		orders.WithClock(func() time.Time { return time.Unix(0, f.clock.Load()) }),
		orders.WithMaxAttempts(5),
	)
	return f
}

func (f *fixture) remaining(t *testing.T, productID string) int {
	t.Helper()
	rows, err := f.svc.ListAvailability(context.Background(), f.roundID, "")
	if err != nil {
		t.Fatalf("ListAvailability: %v", err)
	}
	for _, r := range rows {
		if r.ProductID == productID {
			return r.StockRemaining
		}
	}
	t.Fatalf("product %s not listed", productID)
	return 0
}

func (f *fixture) stockSold(t *testing.T, productID string) int {
	t.Helper()
	sold, err := f.store.StockSold(context.Background(), productID)
	if err != nil {
		t.Fatal(err)
	}
	return sold
}

func items(kv ...any) []orders.ItemInput {
	out := make([]orders.ItemInput, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, orders.ItemInput{ProductID: kv[i].(string), Qty: kv[i+1].(int)})
	}
	return out
}

func wantCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("code = %q, want %q (err=%v)", got, code, err)
	}
}

func TestScenario_SubmitAndResubmitAgainstCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 6))
	if err != nil {
		t.Fatalf("A submit 6: %v", err)
	}
	if got := f.remaining(t, f.p); got != 4 {
		t.Fatalf("remaining = %d, want 4", got)
	}

	_, err = f.svc.Submit(ctx, f.roundID, "bob", items(f.p, 5))
	wantCode(t, err, apperr.CodeOutOfStock)
	ae, _ := apperr.As(err)
	if len(ae.Details) != 1 || ae.Details[0].ProductID != f.p || ae.Details[0].Requested != 5 || ae.Details[0].Available != 4 {
		t.Fatalf("details = %+v", ae.Details)
	}

	if _, err := f.svc.Submit(ctx, f.roundID, "bob", items(f.p, 4)); err != nil {
		t.Fatalf("B submit 4: %v", err)
	}
	if got := f.remaining(t, f.p); got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}

	_, err = f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 8))
	wantCode(t, err, apperr.CodeOutOfStock)

	res, err := f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 6))
	if err != nil {
		t.Fatalf("A resubmit 6: %v", err)
	}
	if res.Changed {
		t.Fatal("identical resubmit reported a change")
	}

	if _, err := f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 2)); err != nil {
		t.Fatalf("A resubmit 2: %v", err)
	}
	if got := f.remaining(t, f.p); got != 4 {
		t.Fatalf("remaining = %d, want 4", got)
	}
	if got := f.stockSold(t, f.p); got != 6 {
		t.Fatalf("stock_sold = %d, want 6", got)
	}
}

func TestSubmit_AtomicAcrossItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 3, f.q, 6))
	wantCode(t, err, apperr.CodeOutOfStock)
	ae, _ := apperr.As(err)
	if ids := ae.ProductIDs(); len(ids) != 1 || ids[0] != f.q {
		t.Fatalf("offending ids = %v", ids)
	}
	if f.remaining(t, f.p) != 10 || f.remaining(t, f.q) != 5 {
		t.Fatal("partial submission was committed")
	}
	if _, err := f.svc.MyOrder(ctx, f.roundID, "alice"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("order exists after failed submit: %v", err)
	}
}

func TestSubmit_TotalsAndPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 2, f.q, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalQty != 2 || res.TotalAmount != 30000 || len(res.Items) != 1 {
		t.Fatalf("result = %+v", res)
	}

	// Organizer edits the price afterwards.
	if err := f.store.PutProduct(ctx, orders.Product{ID: f.p, RoundID: f.roundID, Name: "Beans", Price: 99000, StockLimit: 10, Visible: true}); err != nil {
		t.Fatal(err)
	}
	v, err := f.svc.MyOrder(ctx, f.roundID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if v.Order.TotalAmount != 30000 || v.Items[0].UnitPrice != 15000 {
		t.Fatalf("historical amount changed: %+v", v)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := int64(14000)

	_, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 0))
	wantCode(t, err, apperr.CodeValidation)

	_, err = f.svc.Submit(ctx, f.roundID, "alice", items("not-a-uuid", 1))
	wantCode(t, err, apperr.CodeInvalidProductID)

	_, err = f.svc.Submit(ctx, f.roundID, "alice", items(uuid.NewString(), 1))
	wantCode(t, err, apperr.CodeInvalidProductID)

	_, err = f.svc.Submit(ctx, uuid.NewString(), "alice", items(f.p, 1))
	wantCode(t, err, apperr.CodeNotFound)

	_, err = f.svc.Submit(ctx, f.roundID, "", items(f.p, 1))
	wantCode(t, err, apperr.CodeUnauthenticated)

	_, err = f.svc.Submit(ctx, f.roundID, "alice", []orders.ItemInput{{ProductID: f.p, Qty: 1, UnitPrice: &stale}})
	wantCode(t, err, apperr.CodePriceChanged)

	if _, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 1)); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Submit(ctx, f.roundID, "alice", items(f.q, 1))
	wantCode(t, err, apperr.CodeAlreadySubmitted)
}

func TestResubmit_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 3, f.q, 2))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 4, f.q, 1)); err != nil {
			t.Fatalf("resubmit #%d: %v", i, err)
		}
		if f.remaining(t, f.p) != 6 || f.remaining(t, f.q) != 4 {
			t.Fatalf("remaining after #%d: p=%d q=%d", i, f.remaining(t, f.p), f.remaining(t, f.q))
		}
	}
	v, err := f.svc.MyOrder(ctx, f.roundID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Items) != 2 || v.Order.TotalQty != 5 || v.Order.TotalAmount != 4*15000+2500 {
		t.Fatalf("view = %+v", v)
	}
}

func TestResubmit_ZeroRemovesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 3, f.q, 2))
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 0, f.q, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].ProductID != f.q || !res.Changed {
		t.Fatalf("result = %+v", res)
	}
	if f.remaining(t, f.p) != 10 || f.stockSold(t, f.p) != 0 {
		t.Fatal("dropped product still reserved")
	}

	// Dropping every line keeps the order with an empty item set.
	res, err = f.svc.Resubmit(ctx, "alice", a.OrderID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalQty != 0 || len(res.Items) != 0 || f.remaining(t, f.q) != 5 {
		t.Fatalf("result = %+v", res)
	}
}

func TestResubmit_ForeignOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 1))
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Resubmit(ctx, "mallory", a.OrderID, items(f.p, 9))
	wantCode(t, err, apperr.CodeNotFound)

	_, err = f.svc.Resubmit(ctx, "alice", uuid.NewString(), items(f.p, 1))
	wantCode(t, err, apperr.CodeNotFound)

	if _, err := f.svc.GetOrder(ctx, "mallory", a.OrderID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("GetOrder leaked foreign order: %v", err)
	}
}

func TestRoundClosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetRoundStatus(ctx, f.roundID, orders.RoundClosed); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Submit(ctx, f.roundID, "bob", items(f.p, 1))
	wantCode(t, err, apperr.CodeRoundClosed)
	_, err = f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 1))
	wantCode(t, err, apperr.CodeRoundClosed)
}

func TestDeadlineGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 1))
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Store(baseTime.Add(48 * time.Hour).UnixNano())

	_, err = f.svc.Submit(ctx, f.roundID, "bob", items(f.p, 1))
	wantCode(t, err, apperr.CodeRoundClosed)
	_, err = f.svc.Resubmit(ctx, "alice", a.OrderID, items(f.p, 2))
	wantCode(t, err, apperr.CodeRoundClosed)
}

func TestListAvailability_SelfExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 6)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Submit(ctx, f.roundID, "bob", items(f.p, 1)); err != nil {
		t.Fatal(err)
	}

	maxFor := func(user string) int {
		rows, err := f.svc.ListAvailability(ctx, f.roundID, user)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rows {
			if r.ProductID == f.p {
				if r.MaxSelectable == nil {
					t.Fatalf("%s: no max_selectable", user)
				}
				return *r.MaxSelectable
			}
		}
		t.Fatal("product missing")
		return 0
	}
	if got := maxFor("alice"); got != 3+6 {
		t.Fatalf("alice max = %d, want 9", got)
	}

	// Bob raising his hold never raises Alice's ceiling.
	bob, err := f.svc.MyOrder(ctx, f.roundID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Resubmit(ctx, "bob", bob.Order.ID, items(f.p, 3)); err != nil {
		t.Fatal(err)
	}
	if got := maxFor("alice"); got != 1+6 {
		t.Fatalf("alice max = %d, want 7", got)
	}

	rows, err := f.svc.ListAvailability(ctx, f.roundID, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].MaxSelectable != nil {
		t.Fatal("caller without an order got self-exclusion fields")
	}

	if _, err := f.svc.ListAvailability(ctx, uuid.NewString(), ""); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("unknown round err = %v", err)
	}
}

func TestProductTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for user, qty := range map[string]int{"alice": 2, "bob": 3} {
		if _, err := f.svc.Submit(ctx, f.roundID, user, items(f.p, qty, f.q, 1)); err != nil {
			t.Fatal(err)
		}
	}
	totals, err := f.svc.ProductTotals(ctx, f.roundID)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 2 || totals[0].ProductID != f.p {
		t.Fatalf("totals = %+v", totals)
	}
	if totals[0].TotalQty != 5 || totals[0].TotalAmount != 75000 || totals[0].StockRemaining != 5 {
		t.Fatalf("p totals = %+v", totals[0])
	}
	if totals[1].TotalQty != 2 || totals[1].TotalAmount != 5000 {
		t.Fatalf("q totals = %+v", totals[1])
	}
}

func TestRoundOrderItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.svc.Submit(ctx, f.roundID, "alice", items(f.p, 2, f.q, 0))
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Add(int64(time.Minute))
	bob, err := f.svc.Submit(ctx, f.roundID, "bob", items(f.p, 1, f.q, 3))
	if err != nil {
		t.Fatal(err)
	}

	rows, err := f.svc.RoundOrderItems(ctx, f.roundID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].OrderID != alice.OrderID || rows[0].UserID != "alice" || rows[0].ProductName != "Beans" || rows[0].LineAmount != 30000 {
		t.Fatalf("alice row = %+v", rows[0])
	}
	if rows[1].OrderID != bob.OrderID || rows[1].ProductID != f.p || rows[2].ProductID != f.q {
		t.Fatalf("bob rows = %+v", rows[1:])
	}
	if rows[2].Qty != 3 || rows[2].UnitPrice != 2500 || rows[2].LineAmount != 7500 {
		t.Fatalf("filters row = %+v", rows[2])
	}

	if _, err := f.svc.RoundOrderItems(ctx, uuid.NewString()); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("unknown round err = %v", err)
	}
	if _, err := f.svc.RoundOrderItems(ctx, "not-a-uuid"); apperr.CodeOf(err) == "" {
		t.Fatal("malformed round id accepted")
	}
}

func TestConcurrentSubmitsNeverExceedLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ok, oos atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		user := fmt.Sprintf("user-%d", i)
		g.Go(func() error {
			_, err := f.svc.Submit(ctx, f.roundID, user, items(f.q, 2))
			switch apperr.CodeOf(err) {
			case "":
				ok.Add(1)
			case apperr.CodeOutOfStock:
				oos.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if ok.Load() != 2 || oos.Load() != 6 {
		t.Fatalf("ok=%d oos=%d, want 2/6", ok.Load(), oos.Load())
	}
	if got := f.stockSold(t, f.q); got != 4 {
		t.Fatalf("stock_sold = %d, want 4", got)
	}
}
