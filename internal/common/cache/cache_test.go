package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_GetSet(t *testing.T) {
	c := New(10, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestSnapshot_TTLExpiry(t *testing.T) {
	c := New(10, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestSnapshot_BoundedEviction(t *testing.T) {
	c := New(3, time.Minute)

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	assert.LessOrEqual(t, c.Len(), 3)

	// The most recent write always survives.
	got, ok := c.Get("k9")
	assert.True(t, ok)
	assert.Equal(t, 9, got)
}

func TestSnapshot_RefreshDropsExpiredFirst(t *testing.T) {
	c := New(2, time.Minute)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("old", 1)
	now = now.Add(2 * time.Minute)
	c.Set("fresh", 2)

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestSnapshot_ConcurrentAccess(t *testing.T) {
	c := New(100, time.Minute)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				if i%3 == 0 {
					c.Set(key, w)
				} else {
					c.Get(key)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
}
