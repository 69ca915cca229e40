package cost

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// ResultCache remembers previously computed costs keyed by CacheKey output.
// Hits refresh recency and the least recently used entry is evicted once the
// capacity is reached. It is not safe for concurrent use; hosts sharing one
// across requests must serialize access themselves.
type ResultCache struct {
	entries *simplelru.LRU[string, int]
}

// NewResultCache returns a cache bounded to capacity entries. A capacity of
// zero or less disables retention entirely: every Get misses and Set keeps
// nothing, which callers can use to switch caching off without special
// casing.
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		return &ResultCache{}
	}
	entries, err := simplelru.NewLRU[string, int](capacity, nil)
	if err != nil {
		// NewLRU fails only for non-positive sizes, handled above.
		panic(err)
	}
	return &ResultCache{entries: entries}
}

// Get returns the cost stored under key and marks it most recently used.
func (c *ResultCache) Get(key string) (int, bool) {
	if c.entries == nil {
		return 0, false
	}
	return c.entries.Get(key)
}

// Set stores a cost under key, evicting the least recently used entry if the
// cache is full. Storing an existing key refreshes its recency.
func (c *ResultCache) Set(key string, cost int) {
	if c.entries == nil {
		return
	}
	c.entries.Add(key, cost)
}

// Len reports the number of retained entries.
func (c *ResultCache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
