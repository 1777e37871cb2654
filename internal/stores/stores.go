// Package stores supplies the read-only store snapshot the engine resolves
// each sample against. Lists and items are owned elsewhere; providers only
// read them and reduce each list to its count of unchecked items.
package stores

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/albapepper/nearlist/internal/zone"
)

// ErrNotFound is returned when a requested store does not exist.
var ErrNotFound = errors.New("store not found")

// Provider returns the current store set.
type Provider interface {
	Stores(ctx context.Context) ([]zone.Store, error)
}

// Static is a fixed store set.
type Static []zone.Store

// Stores returns a copy of the set.
func (s Static) Stores(context.Context) ([]zone.Store, error) {
	return append([]zone.Store(nil), s...), nil
}

// Find returns the store with the given ID from a snapshot.
func Find(snapshot []zone.Store, id string) (zone.Store, error) {
	for _, s := range snapshot {
		if s.ID == id {
			return s, nil
		}
	}
	return zone.Store{}, ErrNotFound
}

// Cached keeps the last snapshot from another provider for a TTL.
// Invalidate drops it early, e.g. when the database reports a change.
type Cached struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	snapshot []zone.Store
	expires  time.Time
}

// NewCached wraps next with a snapshot cache.
func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now}
}

// Stores returns the cached snapshot or refreshes it from the wrapped
// provider. On refresh failure the error is returned and the stale
// snapshot is kept for the next call to retry.
func (c *Cached) Stores(ctx context.Context) ([]zone.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Before(c.expires) {
		return append([]zone.Store(nil), c.snapshot...), nil
	}

	fresh, err := c.next.Stores(ctx)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		fresh = []zone.Store{}
	}
	c.snapshot = fresh
	c.expires = c.now().Add(c.ttl)
	return append([]zone.Store(nil), fresh...), nil
}

// Invalidate forces the next Stores call to refresh.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
}
