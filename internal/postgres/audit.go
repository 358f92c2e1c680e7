package postgres

import (
	"context"

	"github.com/ariefcatur/go-round-orders/internal/audit"
)

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
INSERT INTO order_audit (event_id, order_id, event_type, producer, occurred_at, payload, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.OrderID, e.EventType, e.Producer, e.OccurredAt, string(e.Payload), e.RecordedAt)
	if err != nil {
		return false, classify("append audit", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) History(ctx context.Context, orderID string) ([]audit.Entry, error) {
	rows, err := s.DB.Query(ctx, `
SELECT event_id, order_id, event_type, producer, occurred_at, payload::text, recorded_at
  FROM order_audit
 WHERE order_id = $1
 ORDER BY occurred_at, recorded_at, event_id`, orderID)
	if err != nil {
		return nil, classify("audit history", err)
	}
	defer rows.Close()

	out := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			payload string
		)
		if err := rows.Scan(&e.EventID, &e.OrderID, &e.EventType, &e.Producer, &e.OccurredAt, &payload, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.OccurredAt = e.OccurredAt.UTC()
		e.RecordedAt = e.RecordedAt.UTC()
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ audit.Store = (*Store)(nil)
