package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestCache returns a memory cache with a controllable clock
func newTestCache[K comparable, V any]() (*memoryCache[K, V], *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache[K, V](nil).(*memoryCache[K, V])
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCache_BasicOperations(t *testing.T) {
	c := NewMemoryCache[int, string](nil)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, "Dune", 0)
	c.Set(2, "Emma", time.Minute)

	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "Dune", v)
	assert.Equal(t, 2, c.Len())

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Expiration(t *testing.T) {
	c, now := newTestCache[string, int]()

	c.Set("short", 1, time.Second)
	c.Set("forever", 2, 0)

	*now = now.Add(500 * time.Millisecond)
	v, ok := c.Get("short")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	*now = now.Add(time.Second)
	_, ok = c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entry is evicted on read")

	*now = now.Add(24 * time.Hour)
	v, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestWithTTL(t *testing.T) {
	base, now := newTestCache[int, string]()
	c := WithTTL[int, string](base, time.Minute)

	c.Set(1, "Dune", 0)

	*now = now.Add(30 * time.Second)
	_, ok := c.Get(1)
	assert.True(t, ok)

	*now = now.Add(time.Minute)
	_, ok = c.Get(1)
	assert.False(t, ok)

	c.Set(2, "Emma", time.Hour)
	assert.Equal(t, 1, c.Len())
	c.Delete(2)
	assert.Equal(t, 0, c.Len())
	c.Set(3, "Persuasion", 0)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache[int, int](nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i, i*i, time.Minute)
			v, ok := c.Get(i)
			assert.True(t, ok)
			assert.Equal(t, i*i, v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
}
