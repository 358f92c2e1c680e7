package sqlite

import (
	"context"

	"github.com/ariefcatur/go-round-orders/internal/audit"
)

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO order_audit (event_id, order_id, event_type, producer, occurred_at, payload, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.OrderID, e.EventType, e.Producer, toMillis(e.OccurredAt), string(e.Payload), toMillis(e.RecordedAt))
	if err != nil {
		return false, classify("append audit", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) History(ctx context.Context, orderID string) ([]audit.Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_id, order_id, event_type, producer, occurred_at, payload, recorded_at
  FROM order_audit
 WHERE order_id = ?
 ORDER BY occurred_at, recorded_at, event_id`, orderID)
	if err != nil {
		return nil, classify("audit history", err)
	}
	defer rows.Close()

	out := []audit.Entry{}
	for rows.Next() {
		var (
			e                  audit.Entry
			occurred, recorded int64
			payload            string
		)
		if err := rows.Scan(&e.EventID, &e.OrderID, &e.EventType, &e.Producer, &occurred, &payload, &recorded); err != nil {
			return nil, err
		}
		e.OccurredAt = fromMillis(occurred)
		e.RecordedAt = fromMillis(recorded)
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ audit.Store = (*Store)(nil)
