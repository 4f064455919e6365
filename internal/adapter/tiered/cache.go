// Package tiered implements a two-level cache: an in-process L1 in front of
// a shared L2 that every replica reads and invalidates.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/grcplatform/grc/internal/port/cache"
)

// Cache combines an L1 and an L2 cache.
//
// An unreachable L2 degrades to L1-only operation: reads miss, writes are
// kept locally and the error is logged. Tenant lookups and idempotency
// replays then fall back to the store, which stays authoritative.
type Cache struct {
	l1    cache.Cache
	l2    cache.Cache
	l1TTL time.Duration
}

// New creates a tiered cache. Entries backfilled from L2 live at most l1TTL in L1.
func New(l1, l2 cache.Cache, l1TTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get checks L1, then L2, backfilling L1 on an L2 hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.l1.Get(ctx, key); err == nil && ok {
		return val, true, nil
	}

	val, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "l2 cache read failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1TTL)
	return val, true, nil
}

// Set writes L1 with min(ttl, l1TTL) and L2 with ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1 := ttl
	if c.l1TTL > 0 && (l1 <= 0 || c.l1TTL < l1) {
		l1 = c.l1TTL
	}
	if err := c.l1.Set(ctx, key, value, l1); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "l2 cache write failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes key from L2 first so no replica backfills it, then from L1.
// An L2 failure is returned after L1 is cleared.
func (c *Cache) Delete(ctx context.Context, key string) error {
	l2Err := c.l2.Delete(ctx, key)
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return l2Err
}
