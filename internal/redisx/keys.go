package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency submit order: idem:order:submit:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderSubmit = "idem:order:submit:%s:%s"

	// Dedup event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)

func IdemOrderSubmitKey(userID, key string) string {
	return fmt.Sprintf(KeyIdemOrderSubmit, userID, key)
}

func DedupKey(consumer, eventID string) string {
	return fmt.Sprintf(KeyDedup, consumer, eventID)
}
