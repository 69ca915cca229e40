package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCacheStoresAndReturns(t *testing.T) {
	cache := NewResultCache(4)
	cache.Set("k1", 42)

	got, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = cache.Get("k2")
	assert.False(t, ok)
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewResultCache(2)
	cache.Set("a", 1)
	cache.Set("b", 2)

	// Touch a so b becomes the eviction candidate.
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Set("c", 3)

	_, ok = cache.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestResultCacheSetRefreshesExistingKey(t *testing.T) {
	cache := NewResultCache(2)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 10)
	cache.Set("c", 3)

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestResultCacheZeroCapacityNeverRetains(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		cache := NewResultCache(capacity)
		cache.Set("a", 1)

		_, ok := cache.Get("a")
		assert.False(t, ok)
		assert.Zero(t, cache.Len())
	}
}
