package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/telemetry"
)

const defaultMaxAttempts = 3

// Service implements stock availability, order submission and order
// revision. All stock decisions are made inside Store.WithTx.
type Service struct {
	store       Store
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
	tracer      trace.Tracer
}

type Option func(*Service)

// WithClock overrides the time source used for deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxAttempts bounds how often a conflicting transaction is run.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:       store,
		logger:      logger,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		tracer:      otel.Tracer("github.com/ariefcatur/go-round-orders/internal/orders"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitResult struct {
	OrderID     string
	RoundID     string
	TotalQty    int
	TotalAmount int64
	Items       []OrderItem
}

type ResubmitResult struct {
	OrderID       string
	RoundID       string
	TotalQty      int
	TotalAmount   int64
	Items         []OrderItem
	PreviousItems []OrderItem
	Changed       bool
}

// Submit creates the caller's first submitted order for a round.
func (s *Service) Submit(ctx context.Context, roundID, userID string, items []ItemInput) (SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "orders.Submit", trace.WithAttributes(
		attribute.String("round.id", roundID),
		attribute.Int("items.count", len(items)),
	))
	defer span.End()

	res, err := s.submit(ctx, roundID, userID, items)
	s.finish(span, "submit", err, zap.String("round_id", roundID), zap.String("user_id", userID), zap.String("order_id", res.OrderID))
	return res, err
}

func (s *Service) submit(ctx context.Context, roundID, userID string, items []ItemInput) (SubmitResult, error) {
	if err := validateUser(userID); err != nil {
		return SubmitResult{}, err
	}
	if err := validateID("round", roundID); err != nil {
		return SubmitResult{}, err
	}
	norm, err := normalizeItems(items)
	if err != nil {
		return SubmitResult{}, err
	}
	if totalRequested(norm) == 0 {
		return SubmitResult{}, apperr.New(apperr.CodeValidation, "order must contain at least one item with qty > 0")
	}
	ids := inputIDs(norm)

	var res SubmitResult
	err = s.inTx(ctx, "submit", func(ctx context.Context, tx Tx) error {
		now := s.now().UTC()

		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return notFoundOr(err, "round not found", "get round")
		}
		if err := checkOrderable(round, now); err != nil {
			return err
		}

		if _, err := tx.SubmittedOrderFor(ctx, roundID, userID); err == nil {
			return apperr.New(apperr.CodeAlreadySubmitted, "submitted order already exists for round")
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("find submitted order: %w", err)
		}

		products, err := tx.LockProducts(ctx, roundID, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		if err := checkKnown(ids, products); err != nil {
			return err
		}
		if err := checkPrices(norm, products); err != nil {
			return err
		}
		committed, err := tx.CommittedQty(ctx, ids, "")
		if err != nil {
			return fmt.Errorf("committed qty: %w", err)
		}
		if err := checkCeiling(norm, products, committed); err != nil {
			return err
		}

		orderID := uuid.NewString()
		lines := priceItems(orderID, norm, products)
		qty, amount := itemTotals(lines)
		order := Order{
			ID:          orderID,
			RoundID:     roundID,
			UserID:      userID,
			Status:      StatusSubmitted,
			TotalQty:    qty,
			TotalAmount: amount,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return apperr.New(apperr.CodeAlreadySubmitted, "submitted order already exists for round")
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.ReplaceOrderItems(ctx, orderID, lines); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		if err := tx.SyncStockSold(ctx, ids); err != nil {
			return fmt.Errorf("sync stock sold: %w", err)
		}
		if err := tx.EnsurePayment(ctx, orderID, now); err != nil {
			return fmt.Errorf("create payment record: %w", err)
		}

		res = SubmitResult{OrderID: orderID, RoundID: roundID, TotalQty: qty, TotalAmount: amount, Items: lines}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

// Resubmit replaces the full item set of the caller's submitted order. The
// caller's own previous reservation does not count against the new ceiling.
func (s *Service) Resubmit(ctx context.Context, userID, orderID string, items []ItemInput) (ResubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "orders.Resubmit", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("items.count", len(items)),
	))
	defer span.End()

	res, err := s.resubmit(ctx, userID, orderID, items)
	s.finish(span, "resubmit", err, zap.String("order_id", orderID), zap.String("user_id", userID))
	return res, err
}

func (s *Service) resubmit(ctx context.Context, userID, orderID string, items []ItemInput) (ResubmitResult, error) {
	if err := validateUser(userID); err != nil {
		return ResubmitResult{}, err
	}
	if err := validateID("order", orderID); err != nil {
		return ResubmitResult{}, err
	}
	norm, err := normalizeItems(items)
	if err != nil {
		return ResubmitResult{}, err
	}
	ids := inputIDs(norm)

	var res ResubmitResult
	err = s.inTx(ctx, "resubmit", func(ctx context.Context, tx Tx) error {
		now := s.now().UTC()

		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		// Someone else's order is reported exactly like a missing one.
		if order.UserID != userID || order.Status != StatusSubmitted {
			return apperr.New(apperr.CodeNotFound, "order not found")
		}

		round, err := tx.GetRound(ctx, order.RoundID)
		if err != nil {
			return notFoundOr(err, "round not found", "get round")
		}
		if err := checkOrderable(round, now); err != nil {
			return err
		}

		previous, err := tx.OrderItems(ctx, orderID)
		if err != nil {
			return fmt.Errorf("previous items: %w", err)
		}
		affected := unionIDs(ids, previous)

		products, err := tx.LockProducts(ctx, order.RoundID, affected)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		if err := checkKnown(ids, products); err != nil {
			return err
		}
		if err := checkPrices(norm, products); err != nil {
			return err
		}
		others, err := tx.CommittedQty(ctx, affected, orderID)
		if err != nil {
			return fmt.Errorf("committed qty: %w", err)
		}
		if err := checkCeiling(norm, products, others); err != nil {
			return err
		}

		lines := priceItems(orderID, norm, products)
		qty, amount := itemTotals(lines)
		if err := tx.ReplaceOrderItems(ctx, orderID, lines); err != nil {
			return fmt.Errorf("replace order items: %w", err)
		}
		if err := tx.UpdateOrderTotals(ctx, orderID, qty, amount, now); err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		if err := tx.SyncStockSold(ctx, affected); err != nil {
			return fmt.Errorf("sync stock sold: %w", err)
		}

		res = ResubmitResult{
			OrderID:       orderID,
			RoundID:       order.RoundID,
			TotalQty:      qty,
			TotalAmount:   amount,
			Items:         lines,
			PreviousItems: previous,
			Changed:       !sameItems(previous, lines),
		}
		return nil
	})
	if err != nil {
		return ResubmitResult{}, err
	}
	return res, nil
}

// inTx runs fn in a transaction, re-running it while the store reports a
// serialization conflict. Exhausted retries surface as CONFLICT.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			telemetry.RecordTxRetry(op)
			s.logger.Debug("retrying transaction", zap.String("op", op), zap.Int("attempt", attempt))
		}
		err := s.store.WithTx(ctx, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, ErrConflict):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(uint(s.maxAttempts)))

	// The last attempt comes back still wrapped.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		return apperr.Wrap(apperr.CodeConflict, fmt.Sprintf("%s: retries exhausted after %d attempts", op, attempt), err)
	case errors.Is(err, ErrCeiling):
		return apperr.Wrap(apperr.CodeOutOfStock, "stock ceiling rejected by store", err)
	}
	return err
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return b
}

func (s *Service) finish(span trace.Span, op string, err error, fields ...zap.Field) {
	code := apperr.CodeOf(err)
	if err == nil {
		telemetry.RecordOrderOutcome(op, "ok")
		s.logger.Info("order "+op, fields...)
		return
	}
	telemetry.RecordOrderOutcome(op, string(code))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	fields = append(fields, zap.String("code", string(code)), zap.Error(err))
	if code == apperr.CodeInternal {
		s.logger.Error("order "+op+" failed", fields...)
		return
	}
	s.logger.Info("order "+op+" rejected", fields...)
}

// checkOrderable treats status and deadline as two independent gates.
func checkOrderable(r Round, now time.Time) error {
	if r.Status != RoundOpen {
		return apperr.WithMetadata(apperr.CodeRoundClosed, "round is closed", map[string]string{"reason": "status"})
	}
	if !r.Deadline.IsZero() && !now.Before(r.Deadline) {
		return apperr.WithMetadata(apperr.CodeRoundClosed, "round deadline passed", map[string]string{"reason": "deadline"})
	}
	return nil
}

func checkKnown(ids []string, products map[string]Product) error {
	var missing []apperr.Detail
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			missing = append(missing, apperr.Detail{ProductID: id, Reason: "not in round"})
		}
	}
	if len(missing) > 0 {
		return apperr.WithDetails(apperr.CodeInvalidProductID, "product not in round", missing)
	}
	return nil
}

func checkPrices(items []ItemInput, products map[string]Product) error {
	var stale []apperr.Detail
	for _, it := range items {
		if it.UnitPrice == nil || it.Qty == 0 {
			continue
		}
		if p := products[it.ProductID]; *it.UnitPrice != p.Price {
			stale = append(stale, apperr.Detail{ProductID: it.ProductID, Reason: fmt.Sprintf("price is %d", p.Price)})
		}
	}
	if len(stale) > 0 {
		return apperr.WithDetails(apperr.CodePriceChanged, "unit price changed", stale)
	}
	return nil
}

// checkCeiling rejects the whole request when any line asks for more than
// stock_limit minus what other orders hold.
func checkCeiling(items []ItemInput, products map[string]Product, committed map[string]int) error {
	var short []apperr.Detail
	for _, it := range items {
		if it.Qty == 0 {
			continue
		}
		available := Remaining(products[it.ProductID].StockLimit, committed[it.ProductID])
		if it.Qty > available {
			short = append(short, apperr.Detail{ProductID: it.ProductID, Requested: it.Qty, Available: available})
		}
	}
	if len(short) > 0 {
		return apperr.WithDetails(apperr.CodeOutOfStock, "stock ceiling exceeded", short)
	}
	return nil
}

// priceItems drops zero lines and snapshots the current product price.
func priceItems(orderID string, items []ItemInput, products map[string]Product) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if it.Qty == 0 {
			continue
		}
		out = append(out, OrderItem{
			OrderID:   orderID,
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: products[it.ProductID].Price,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func inputIDs(items []ItemInput) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func unionIDs(ids []string, previous []OrderItem) []string {
	set := make(map[string]struct{}, len(ids)+len(previous))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, it := range previous {
		set[it.ProductID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sameItems(a, b []OrderItem) bool {
	if len(a) != len(b) {
		return false
	}
	idx := make(map[string]OrderItem, len(a))
	for _, it := range a {
		idx[it.ProductID] = it
	}
	for _, it := range b {
		prev, ok := idx[it.ProductID]
		if !ok || prev.Qty != it.Qty || prev.UnitPrice != it.UnitPrice {
			return false
		}
	}
	return true
}

func notFoundOr(err error, notFoundMsg, op string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, notFoundMsg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
