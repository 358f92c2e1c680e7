package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/auth"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/telemetry"
)

const (
	maxNoteLen   = 500
	maxBatchSize = 200
)

// Store persists payment records. Missing orders and rounds are reported
// with orders.ErrNotFound.
type Store interface {
	GetPayment(ctx context.Context, orderID string) (Record, error)
	// MutatePayment locks the order's payment row, passes it to fn and
	// stores the result. An error from fn aborts without writing.
	MutatePayment(ctx context.Context, orderID string, fn func(Record) (Record, error)) (Record, error)
	ListRoundPayments(ctx context.Context, roundID string) ([]LedgerRow, error)
}

type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	tracer trace.Tracer
}

func NewLedger(store Store, logger *zap.Logger, now func() time.Time) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:  store,
		logger: logger,
		now:    now,
		tracer: otel.Tracer("github.com/ariefcatur/go-round-orders/internal/payments"),
	}
}

// SetPayment records the organizer's settlement status for one order.
// Concurrent writers are last-write-wins.
func (l *Ledger) SetPayment(ctx context.Context, caller auth.Principal, orderID string, u Update) (Record, error) {
	ctx, span := l.tracer.Start(ctx, "payments.SetPayment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.status", string(u.Status)),
	))
	defer span.End()

	rec, err := l.set(ctx, caller, orderID, "", u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
		l.logger.Info("payment update rejected",
			zap.String("order_id", orderID),
			zap.String("code", string(apperr.CodeOf(err))),
			zap.Error(err))
		return Record{}, err
	}
	l.logger.Info("payment updated",
		zap.String("order_id", orderID),
		zap.String("status", string(rec.Status)),
		zap.String("by", caller.UserID))
	return rec, nil
}

func (l *Ledger) set(ctx context.Context, caller auth.Principal, orderID, roundID string, u Update) (Record, error) {
	if err := requireOrganizer(caller); err != nil {
		return Record{}, err
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return Record{}, apperr.WithMetadata(apperr.CodeValidation, "malformed order id", map[string]string{"order_id": orderID})
	}
	if err := validateUpdate(u); err != nil {
		return Record{}, err
	}

	now := l.now().UTC()
	rec, err := l.store.MutatePayment(ctx, orderID, func(cur Record) (Record, error) {
		if roundID != "" && cur.RoundID != roundID {
			return Record{}, apperr.New(apperr.CodeNotFound, "order not in round")
		}
		return Apply(cur, u, now), nil
	})
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return Record{}, apperr.New(apperr.CodeNotFound, "order not found")
		}
		if _, ok := apperr.As(err); ok {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("mutate payment: %w", err)
	}
	telemetry.RecordPaymentUpdate(string(rec.Status))
	return rec, nil
}

func (l *Ledger) Get(ctx context.Context, caller auth.Principal, orderID string) (Record, error) {
	if err := requireOrganizer(caller); err != nil {
		return Record{}, err
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return Record{}, apperr.WithMetadata(apperr.CodeValidation, "malformed order id", map[string]string{"order_id": orderID})
	}
	rec, err := l.store.GetPayment(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return Record{}, apperr.New(apperr.CodeNotFound, "order not found")
	}
	if err != nil {
		return Record{}, fmt.Errorf("get payment: %w", err)
	}
	return rec, nil
}

type RoundLedger struct {
	RoundID string      `json:"round_id"`
	Rows    []LedgerRow `json:"rows"`
	Summary Summary     `json:"summary"`
}

// Round lists every submitted order of the round with its payment state.
func (l *Ledger) Round(ctx context.Context, caller auth.Principal, roundID string) (RoundLedger, error) {
	if err := requireOrganizer(caller); err != nil {
		return RoundLedger{}, err
	}
	if _, err := uuid.Parse(roundID); err != nil {
		return RoundLedger{}, apperr.WithMetadata(apperr.CodeValidation, "malformed round id", map[string]string{"round_id": roundID})
	}
	rows, err := l.store.ListRoundPayments(ctx, roundID)
	if errors.Is(err, orders.ErrNotFound) {
		return RoundLedger{}, apperr.New(apperr.CodeNotFound, "round not found")
	}
	if err != nil {
		return RoundLedger{}, fmt.Errorf("list round payments: %w", err)
	}
	if rows == nil {
		rows = []LedgerRow{}
	}
	return RoundLedger{RoundID: roundID, Rows: rows, Summary: Summarize(rows)}, nil
}

type BatchItem struct {
	OrderID string `json:"order_id"`
	Update
}

type BatchResult struct {
	OrderID string      `json:"order_id"`
	Record  *Record     `json:"record,omitempty"`
	Code    apperr.Code `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Batch applies items one by one within roundID. A failing row does not
// stop the rest; internal errors abort the batch.
func (l *Ledger) Batch(ctx context.Context, caller auth.Principal, roundID string, items []BatchItem) ([]BatchResult, error) {
	if err := requireOrganizer(caller); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(roundID); err != nil {
		return nil, apperr.WithMetadata(apperr.CodeValidation, "malformed round id", map[string]string{"round_id": roundID})
	}
	if len(items) == 0 || len(items) > maxBatchSize {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("batch must hold 1..%d rows", maxBatchSize))
	}

	results := make([]BatchResult, 0, len(items))
	for _, it := range items {
		rec, err := l.set(ctx, caller, it.OrderID, roundID, it.Update)
		if err != nil {
			ae, ok := apperr.As(err)
			if !ok {
				return nil, err
			}
			results = append(results, BatchResult{OrderID: it.OrderID, Code: ae.Code, Message: ae.Code.UserMessage()})
			continue
		}
		results = append(results, BatchResult{OrderID: it.OrderID, Record: &rec})
	}
	l.logger.Info("payment batch applied", zap.String("round_id", roundID), zap.Int("rows", len(items)))
	return results, nil
}

func requireOrganizer(p auth.Principal) error {
	if p.UserID == "" {
		return apperr.New(apperr.CodeUnauthenticated, "missing caller identity")
	}
	if !p.IsOrganizer() {
		return apperr.New(apperr.CodeForbidden, "organizer role required")
	}
	return nil
}

func validateUpdate(u Update) error {
	if !u.Status.Valid() {
		return apperr.WithMetadata(apperr.CodeValidation, "unknown payment status", map[string]string{"payment_status": string(u.Status)})
	}
	if u.Amount != nil && *u.Amount < 0 {
		return apperr.New(apperr.CodeValidation, "payment_amount must be non-negative")
	}
	if u.Note != nil && utf8.RuneCountInString(*u.Note) > maxNoteLen {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("payment_note longer than %d characters", maxNoteLen))
	}
	return nil
}
