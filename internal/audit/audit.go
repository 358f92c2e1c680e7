// Package audit turns order and payment events into an append-only trail.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/auth"
	kafkax "github.com/ariefcatur/go-round-orders/internal/kafka"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/telemetry"
)

type Entry struct {
	EventID    string          `json:"event_id"`
	OrderID    string          `json:"order_id"`
	EventType  string          `json:"event_type"`
	Producer   string          `json:"producer"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type Store interface {
	// AppendAudit inserts e unless its event id is already recorded.
	AppendAudit(ctx context.Context, e Entry) (inserted bool, err error)
	History(ctx context.Context, orderID string) ([]Entry, error)
}

// Deduper remembers processed event ids for a while.
type Deduper interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type Service struct {
	Store    Store
	Dedup    Deduper // optional
	Logger   *zap.Logger
	Consumer string
	Now      func() time.Time
}

// HandleMessage is installed as the kafka consumer handler. Returning nil
// lets the offset be committed.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message: log and skip so the partition keeps moving
		s.log().Warn("undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		telemetry.RecordAuditEvent("unknown", "malformed")
		return nil
	}
	orderID, ok := orderIDOf(env)
	if !ok {
		telemetry.RecordAuditEvent(env.EventType, "ignored")
		return nil
	}

	// 2) dedup via redis
	if s.Dedup != nil {
		fresh, err := s.Dedup.Claim(ctx, s.Consumer, env.EventID)
		if err != nil {
			s.log().Warn("dedup unavailable, relying on event_id key", zap.Error(err))
		} else if !fresh {
			telemetry.RecordAuditEvent(env.EventType, "duplicate")
			return nil
		}
	}

	// 3) append
	inserted, err := s.Store.AppendAudit(ctx, Entry{
		EventID:    env.EventID,
		OrderID:    orderID,
		EventType:  env.EventType,
		Producer:   env.Producer,
		OccurredAt: env.OccurredAt.UTC(),
		Payload:    env.Payload,
		RecordedAt: s.now().UTC(),
	})
	if err != nil {
		if s.Dedup != nil {
			_ = s.Dedup.Release(ctx, s.Consumer, env.EventID)
		}
		telemetry.RecordAuditEvent(env.EventType, "error")
		return fmt.Errorf("append audit %s: %w", env.EventID, err)
	}
	result := "recorded"
	if !inserted {
		result = "duplicate"
	}
	telemetry.RecordAuditEvent(env.EventType, result)
	s.log().Debug("audit event", zap.String("event_id", env.EventID), zap.String("type", env.EventType), zap.String("result", result))
	return nil
}

// History returns the trail of one order, oldest first. Organizer only.
func (s *Service) History(ctx context.Context, caller auth.Principal, orderID string) ([]Entry, error) {
	if !caller.IsOrganizer() {
		return nil, apperr.New(apperr.CodeForbidden, "organizer role required")
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.WithMetadata(apperr.CodeValidation, "malformed order id", map[string]string{"order_id": orderID})
	}
	entries, err := s.Store.History(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("audit history: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var errNoOrder = errors.New("payload has no order_id")

func orderIDOf(env orders.Envelope) (string, bool) {
	switch env.EventType {
	case orders.EventOrderSubmitted, orders.EventOrderRevised, orders.EventPaymentUpdated:
	default:
		return "", false
	}
	if env.EventID == "" {
		return "", false
	}
	if env.CorrelationID != "" {
		return env.CorrelationID, true
	}
	id, err := payloadOrderID(env.Payload)
	return id, err == nil
}

func payloadOrderID(raw json.RawMessage) (string, error) {
	p, err := kafkax.UnwrapPayload[struct {
		OrderID string `json:"order_id"`
	}](raw)
	if err != nil {
		return "", err
	}
	if p.OrderID == "" {
		return "", errNoOrder
	}
	return p.OrderID, nil
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
