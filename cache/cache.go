// Package cache puts a read-through record cache in front of a snapshot
// store, so review pages do not hit the database on every refresh.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/store"
)

// Store wraps a store.Store. Only complete records are cached: placeholders
// are about to be replaced. ReplaceRecord invalidates the cached copy.
// It is safe for concurrent use.
type Store struct {
	store.Store
	records    *gocache.Cache
	maxEntries int
}

// New wraps s with a cache of at most maxEntries records kept for ttl.
// Expired entries are purged every ttl/2.
func New(s store.Store, ttl time.Duration, maxEntries int) *Store {
	return &Store{
		Store:      s,
		records:    gocache.New(ttl, ttl/2),
		maxEntries: maxEntries,
	}
}

// FetchRecord serves complete records from the cache when possible.
func (c *Store) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	if v, ok := c.records.Get(id); ok {
		return v.(*models.Record).Clone(), nil
	}

	rec, err := c.Store.FetchRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Complete() {
		c.set(id, rec.Clone())
	}
	return rec, nil
}

// ReplaceRecord writes through and drops any cached copy.
func (c *Store) ReplaceRecord(ctx context.Context, id string, rec *models.Record) error {
	c.records.Delete(id)
	return c.Store.ReplaceRecord(ctx, id, rec)
}

// size reports the number of cached records.
func (c *Store) size() int {
	return c.records.ItemCount()
}

func (c *Store) set(id string, rec *models.Record) {
	// Evict one arbitrary entry at capacity (map iteration is random in Go).
	if c.maxEntries > 0 && c.records.ItemCount() >= c.maxEntries {
		for k := range c.records.Items() {
			c.records.Delete(k)
			break
		}
	}
	c.records.SetDefault(id, rec)
}

var _ store.Store = (*Store)(nil)
