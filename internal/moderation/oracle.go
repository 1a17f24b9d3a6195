package moderation

import (
	"context"
	"sync"
)

// Oracle is an external judge of caption acceptability.
type Oracle interface {
	Approve(ctx context.Context, caption string) (bool, error)
}

// AllowAll approves every caption. It is used when no oracle is configured.
type AllowAll struct{}

// Approve implements Oracle.
func (AllowAll) Approve(context.Context, string) (bool, error) {
	return true, nil
}

// Cache stores oracle verdicts keyed by caption.
type Cache interface {
	Get(caption string) (approved, ok bool)
	Set(caption string, approved bool)
}

// MapCache is an unbounded in-memory Cache, safe for concurrent use.
type MapCache struct {
	mu       sync.RWMutex
	verdicts map[string]bool
}

// NewMapCache creates an empty cache.
func NewMapCache() *MapCache {
	return &MapCache{verdicts: make(map[string]bool)}
}

// Get implements Cache.
func (c *MapCache) Get(caption string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.verdicts[caption]
	return v, ok
}

// Set implements Cache.
func (c *MapCache) Set(caption string, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[caption] = approved
}

// Len returns the number of cached verdicts.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.verdicts)
}

// CachedOracle memoises verdicts so the same caption is judged at most once
// per process. Errors are not cached.
type CachedOracle struct {
	oracle Oracle
	cache  Cache
}

// NewCachedOracle wraps oracle. A nil cache selects a new MapCache.
func NewCachedOracle(oracle Oracle, cache Cache) *CachedOracle {
	if cache == nil {
		cache = NewMapCache()
	}
	return &CachedOracle{oracle: oracle, cache: cache}
}

// Approve implements Oracle.
func (o *CachedOracle) Approve(ctx context.Context, caption string) (bool, error) {
	if v, ok := o.cache.Get(caption); ok {
		return v, nil
	}

	v, err := o.oracle.Approve(ctx, caption)
	if err != nil {
		return false, err
	}
	o.cache.Set(caption, v)
	return v, nil
}
