package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "stkcb:"

// CallbackDedupe implements ports.CallbackDedupe. It is a best-effort fast
// path for redelivered callbacks; losing a key only costs one extra trip to
// the database, where the conditional transition still holds.
type CallbackDedupe struct {
	client *redis.Client
}

func NewCallbackDedupe(client *redis.Client) *CallbackDedupe {
	return &CallbackDedupe{client: client}
}

func (d *CallbackDedupe) Seen(ctx context.Context, checkoutRequestID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupeKeyPrefix+checkoutRequestID).Result()
	if err != nil {
		return false, fmt.Errorf("check callback dedupe key: %w", err)
	}
	return n > 0, nil
}

func (d *CallbackDedupe) Mark(ctx context.Context, checkoutRequestID string, ttl time.Duration) error {
	if err := d.client.Set(ctx, dedupeKeyPrefix+checkoutRequestID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("set callback dedupe key: %w", err)
	}
	return nil
}
