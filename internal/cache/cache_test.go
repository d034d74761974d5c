package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/tsxlive/internal/types"
)

func TestCacheLRUEviction(t *testing.T) {
	t.Run("evicts least recently used", func(t *testing.T) {
		cache := New(30, time.Hour) // five 6-byte values

		for i := 1; i <= 5; i++ {
			cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
		}
		for i := 1; i <= 5; i++ {
			_, found := cache.Get(fmt.Sprintf("key%d", i))
			assert.True(t, found, "key%d should be present", i)
		}

		cache.Set("key6", "value6")

		_, found := cache.Get("key1")
		assert.False(t, found, "key1 should be evicted as LRU")
		for i := 2; i <= 6; i++ {
			_, found := cache.Get(fmt.Sprintf("key%d", i))
			assert.True(t, found, "key%d should still be present", i)
		}
	})

	t.Run("access refreshes recency", func(t *testing.T) {
		cache := New(24, time.Hour)
		for i := 1; i <= 4; i++ {
			cache.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))
		}

		cache.Get("key1")
		cache.Set("key5", "value5")

		_, found := cache.Get("key1")
		assert.True(t, found)
		_, found = cache.Get("key2")
		assert.False(t, found)
		assert.Equal(t, int64(1), cache.Stats().Evictions)
	})

	t.Run("oversized values are skipped", func(t *testing.T) {
		cache := New(4, time.Hour)
		cache.Set("big", "0123456789")
		_, found := cache.Get("big")
		assert.False(t, found)
		assert.Zero(t, cache.Stats().Size)
	})
}

func TestCacheUpdateAdjustsSize(t *testing.T) {
	cache := New(100, time.Hour)
	cache.Set("a", "12345")
	cache.Set("a", "12")

	value, found := cache.Get("a")
	assert.True(t, found)
	assert.Equal(t, "12", value)
	assert.Equal(t, int64(2), cache.Stats().Size)
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestCacheTTL(t *testing.T) {
	cache := New(100, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("a", "value")
	_, found := cache.Get("a")
	assert.True(t, found)

	now = now.Add(2 * time.Minute)
	_, found = cache.Get("a")
	assert.False(t, found)
	assert.Zero(t, cache.Stats().Entries)
}

func TestCacheStatsAndClear(t *testing.T) {
	cache := New(100, 0)
	cache.Set("a", "1")
	cache.Get("a")
	cache.Get("missing")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)

	cache.Clear()
	stats = cache.Stats()
	assert.Zero(t, stats.Entries)
	assert.Zero(t, stats.Hits)
}

func TestKey(t *testing.T) {
	a := Key("fp", types.LanguageTSX, "<div />")
	b := Key("fp", types.LanguageTSX, "<div />")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Key("fp2", types.LanguageTSX, "<div />"))
	assert.NotEqual(t, a, Key("fp", types.LanguageJSX, "<div />"))
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := New(1024, time.Hour)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k%d", (id+j)%10)
				cache.Set(key, "value")
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.Size, int64(1024))
	assert.LessOrEqual(t, stats.Entries, 10)
}
