package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citaflow/citaflow/internal/channels"
)

const defaultDedupTTL = 24 * time.Hour

// Deduper suppresses provider redeliveries by remembering message ids for
// a bounded window, shared across every API replica through Redis.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduper builds a deduper. A non-positive TTL falls back to 24h.
func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

func dedupKey(channel channels.Channel, providerMessageID string) string {
	return fmt.Sprintf("dedup:%s:%s", channel, providerMessageID)
}

// Seen reports whether the (channel, provider message id) pair was marked
// inside the TTL window. Messages without a provider id are never
// deduplicated.
func (d *Deduper) Seen(ctx context.Context, channel channels.Channel, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, dedupKey(channel, providerMessageID)).Result()
	if err != nil {
		return false, fmt.Errorf("gateway: dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark remembers the pair for the TTL window. It is called only after the
// message has been durably handed off, so a failed hand-off leaves the id
// unmarked and the provider's redelivery goes through.
func (d *Deduper) Mark(ctx context.Context, channel channels.Channel, providerMessageID string) error {
	if providerMessageID == "" {
		return nil
	}
	if err := d.rdb.Set(ctx, dedupKey(channel, providerMessageID), 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("gateway: dedup mark: %w", err)
	}
	return nil
}
