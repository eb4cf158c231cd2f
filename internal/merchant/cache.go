package merchant

import (
	"context"
	"log"
	"sync"
	"time"
)

const DefaultSnapshotTTL = 2 * time.Minute

// CatalogSource is the read-only lookup the cache refreshes from, typically
// backed by the store.
type CatalogSource interface {
	ActiveProducts(ctx context.Context) ([]Product, error)
}

// SnapshotCache serves catalog snapshots with a short TTL so repeated
// interpretations do not refetch the catalog on every request. A snapshot
// handed out is never mutated; expiry swaps in a whole new one.
type SnapshotCache struct {
	source CatalogSource
	ttl    time.Duration

	mu       sync.Mutex
	snapshot *CatalogSnapshot
	now      func() time.Time
}

func NewSnapshotCache(source CatalogSource, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{source: source, ttl: ttl, now: time.Now}
}

// Snapshot returns the cached snapshot, refreshing it when the TTL has
// elapsed. If a refresh fails but a previous snapshot exists, the stale
// snapshot is returned rather than failing the interpretation.
func (c *SnapshotCache) Snapshot(ctx context.Context) (CatalogSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.snapshot.TakenAt) < c.ttl {
		return *c.snapshot, nil
	}
	products, err := c.source.ActiveProducts(ctx)
	if err != nil {
		if c.snapshot != nil {
			log.Printf("merchant snapshot_refresh_failed serving_stale=true age=%s err=%q", c.now().Sub(c.snapshot.TakenAt), err.Error())
			return *c.snapshot, nil
		}
		return CatalogSnapshot{}, err
	}
	snap := CatalogSnapshot{Products: products, TakenAt: c.now()}
	c.snapshot = &snap
	return snap, nil
}

// Invalidate drops the cached snapshot so the next read refetches, used after
// the merchant edits the catalog.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}
