package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
)

// decisionCache is an LRU-backed implementation of rulelist.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[rulelist.CacheKey, domain.Decision]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a new DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (rulelist.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// NewWithEvict observes evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ rulelist.CacheKey, _ domain.Decision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

// Get looks up a decision. When found, increments hits; otherwise increments misses.
func (c *decisionCache) Get(key rulelist.CacheKey) (domain.Decision, bool) {
	if val, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.Decision{}, false
}

func (c *decisionCache) Put(key rulelist.CacheKey, d domain.Decision) {
	c.lru.Add(key, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() rulelist.CacheStats {
	return rulelist.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// disabledCache implementation

func (d *disabledCache) Get(rulelist.CacheKey) (domain.Decision, bool) {
	return domain.Decision{}, false
}

func (d *disabledCache) Put(rulelist.CacheKey, domain.Decision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() rulelist.CacheStats { return rulelist.CacheStats{} }

var _ rulelist.DecisionCache = (*decisionCache)(nil)
var _ rulelist.DecisionCache = (*disabledCache)(nil)
