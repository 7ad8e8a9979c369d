package cache

import (
	"context"
	"time"

	"depictor/pkg/store"
)

// Cacher defines the caching interface used by the request layer.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// StoreCache adapts a store.CacheStore with a fixed max entry age.
type StoreCache struct {
	store  store.CacheStore
	maxAge time.Duration
}

// NewStoreCache creates a cache over the sqlite cache table. maxAge of 0
// disables expiry.
func NewStoreCache(s store.CacheStore, maxAge time.Duration) *StoreCache {
	return &StoreCache{store: s, maxAge: maxAge}
}

func (c *StoreCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	return c.store.GetCache(ctx, key, c.maxAge)
}

func (c *StoreCache) SetCache(ctx context.Context, key string, val []byte) error {
	return c.store.SetCache(ctx, key, val)
}

// Null is a cache that never hits. Useful in tests and one-shot runs.
type Null struct{}

func (Null) GetCache(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (Null) SetCache(ctx context.Context, key string, val []byte) error {
	return nil
}
