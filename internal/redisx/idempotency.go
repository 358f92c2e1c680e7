package redisx

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Idempotency maps a caller-chosen Idempotency-Key to the order it created.
// The database stays the source of truth; this only short-circuits retries.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Lookup returns the order id remembered for (userID, key).
func (i *Idempotency) Lookup(ctx context.Context, userID, key string) (string, bool, error) {
	orderID, err := i.rdb.Get(ctx, IdemOrderSubmitKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orderID, true, nil
}

// Remember stores orderID unless the key already points somewhere.
func (i *Idempotency) Remember(ctx context.Context, userID, key, orderID string) error {
	return i.rdb.SetNX(ctx, IdemOrderSubmitKey(userID, key), orderID, TTLIdempotency).Err()
}

// Dedup records processed event ids per consumer.
type Dedup struct {
	rdb *redis.Client
}

func NewDedup(rdb *redis.Client) *Dedup {
	return &Dedup{rdb: rdb}
}

// Claim returns true the first time eventID is seen by consumer.
func (d *Dedup) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(consumer, eventID), "1", TTLDedup).Result()
}

// Release forgets a claim so a failed event can be processed again.
func (d *Dedup) Release(ctx context.Context, consumer, eventID string) error {
	return d.rdb.Del(ctx, DedupKey(consumer, eventID)).Err()
}
