package permission

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"voluntra.org/internal/auth"
	"voluntra.org/internal/obs"
)

const (
	defaultMaxEntries = 8192
	// Soft TTL as a safety net against missed invalidations; correctness is
	// generation-based, not time-based.
	defaultSoftTTL = 5 * time.Minute
	// A miss fetch carries its own deadline so a hung source fails the
	// permission check instead of holding the request open.
	defaultFetchTimeout = 2 * time.Second
)

type cacheEntry struct {
	role auth.Role
	gen  uint64
}

// Cache is the process-wide read-through cache in front of the template
// store. Hits with a current generation return immediately; misses and stale
// generations fall through to the store, with concurrent misses for the same
// (org, key) collapsed into a single upstream fetch.
type Cache struct {
	store        *Store
	entries      *lru.LRU[string, cacheEntry]
	group        singleflight.Group
	fetchTimeout time.Duration
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	maxEntries   int
	softTTL      time.Duration
	fetchTimeout time.Duration
}

// WithMaxEntries bounds the number of cached (org, key) pairs.
func WithMaxEntries(n int) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithSoftTTL overrides the safety-net expiry on cached entries.
func WithSoftTTL(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if d > 0 {
			c.softTTL = d
		}
	}
}

// WithFetchTimeout overrides the deadline applied to upstream miss fetches.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// NewCache constructs a Cache over a Store.
func NewCache(store *Store, opts ...CacheOption) (*Cache, error) {
	if store == nil {
		return nil, errors.New("permission: store is required")
	}
	cfg := cacheConfig{
		maxEntries:   defaultMaxEntries,
		softTTL:      defaultSoftTTL,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		store:        store,
		entries:      lru.NewLRU[string, cacheEntry](cfg.maxEntries, nil, cfg.softTTL),
		fetchTimeout: cfg.fetchTimeout,
	}, nil
}

var _ auth.PermissionSource = (*Cache)(nil)

// Effective returns the effective minimum role for (orgID, key), serving
// from cache when the entry's generation is current.
func (c *Cache) Effective(ctx context.Context, orgID, key string) (auth.Role, error) {
	cacheKey := orgID + "\x00" + key
	gen := c.store.CurrentGeneration(orgID)

	if entry, ok := c.entries.Get(cacheKey); ok {
		if entry.gen >= gen {
			obs.CacheHit()
			return entry.role, nil
		}
		obs.CacheStale()
	} else {
		obs.CacheMiss()
	}

	v, err, _ := c.group.Do(cacheKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()

		// Generation observed before the fetch: a write racing this read
		// leaves the entry tagged stale and it is refreshed on next access.
		observed := c.store.CurrentGeneration(orgID)
		role, err := c.store.FetchEffective(fetchCtx, orgID, key)
		if err != nil {
			return nil, err
		}
		entry := cacheEntry{role: role, gen: observed}
		c.entries.Add(cacheKey, entry)
		return entry, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(cacheEntry).role, nil
}

// Invalidate bumps the store generation for (orgID, keys...). Existing
// entries become stale rather than being evicted; the next read refreshes
// them through the single-flight group.
func (c *Cache) Invalidate(orgID string, keys ...string) {
	c.store.Invalidate(orgID, keys...)
}

// Len reports the number of resident cache entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
