package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Querier is the graph query dependency.
type Querier interface {
	SelectIDs(ctx context.Context, query, cacheKey string) ([]string, error)
}

// Set is a set of entity IDs.
type Set map[string]struct{}

// Contains reports set membership.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

type direction string

const (
	dirDescendants direction = "descendants"
	dirAncestors   direction = "ancestors"
)

type entry struct {
	set     Set
	fetched time.Time
}

// Closures resolves and caches taxonomy closure sets.
// Entries are immutable once computed and expire after the TTL; there is
// no explicit invalidation.
type Closures struct {
	querier Querier
	ttl     time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry

	// Collapses concurrent lookups for the same key into one upstream query
	group singleflight.Group

	now func() time.Time // Overridable for tests
}

// NewClosures creates a closure cache. ttl <= 0 falls back to 120s.
func NewClosures(q Querier, ttl time.Duration, logger *slog.Logger) *Closures {
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &Closures{
		querier: q,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// DescendantsOf returns the set of entities that are transitively an
// instance or subclass of rootID (the narrower concepts).
func (c *Closures) DescendantsOf(ctx context.Context, rootID string) (Set, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT ?item WHERE { { ?item wdt:P31/wdt:P279* wd:%s } UNION { ?item wdt:P279+ wd:%s } }`,
		rootID, rootID)
	return c.lookup(ctx, dirDescendants, rootID, query)
}

// AncestorsOf returns the set of entities that rootID is transitively a
// subclass of (the broader concepts).
func (c *Closures) AncestorsOf(ctx context.Context, rootID string) (Set, error) {
	query := fmt.Sprintf(`SELECT DISTINCT ?item WHERE { wd:%s wdt:P279+ ?item }`, rootID)
	return c.lookup(ctx, dirAncestors, rootID, query)
}

func (c *Closures) lookup(ctx context.Context, dir direction, rootID, query string) (Set, error) {
	if rootID == "" {
		return nil, fmt.Errorf("empty root entity id")
	}

	key := fmt.Sprintf("closure:%s:%s", dir, rootID)

	if set, ok := c.cached(key); ok {
		return set, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under singleflight; a concurrent caller may have
		// just populated the entry
		if set, ok := c.cached(key); ok {
			return set, nil
		}

		ids, err := c.querier.SelectIDs(ctx, query, "")
		if err != nil {
			return nil, err
		}

		set := make(Set, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}

		c.mu.Lock()
		c.entries[key] = entry{set: set, fetched: c.now()}
		c.mu.Unlock()

		c.logger.Debug("Closure computed", "key", key, "size", len(set))
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Set), nil
}

func (c *Closures) cached(key string) (Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetched) > c.ttl {
		return nil, false
	}
	return e.set, true
}
