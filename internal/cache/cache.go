// Package cache provides the compile-output cache with LRU eviction and TTL
// expiry. Keys are content hashes, so identical sources compiled under the
// same preset share one entry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/tsxlive/internal/types"
)

// Cache caches compiled code with LRU eviction and TTL
type Cache struct {
	entries     map[string]*entry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	ttl         time.Duration
	now         func() time.Time
	// LRU doubly-linked list with sentinel head and tail
	head *entry
	tail *entry

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

type entry struct {
	key       string
	value     string
	createdAt time.Time
	size      int64
	prev      *entry
	next      *entry
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Entries   int     `json:"entries"`
	Size      int64   `json:"size"`
	MaxSize   int64   `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// New creates a cache bounded to maxSize bytes of compiled code. A zero ttl
// disables expiry.
func New(maxSize int64, ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		head:    &entry{},
		tail:    &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Key derives the cache key for a source under a preset fingerprint.
func Key(fingerprint string, lang types.Language, source string) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a value from the cache
func (c *Cache) Get(key string) (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}

	if c.expired(e) {
		c.remove(e)
		atomic.AddInt64(&c.misses, 1)
		return "", false
	}

	c.moveToFront(e)
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// Set stores a value in the cache. Values larger than the whole cache are
// not stored.
func (c *Cache) Set(key, value string) {
	size := int64(len(value))

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if size > c.maxSize {
		return
	}

	if existing, exists := c.entries[key]; exists {
		c.currentSize += size - existing.size
		existing.value = value
		existing.size = size
		existing.createdAt = c.now()
		c.moveToFront(existing)
		c.evictIfNeeded(0)
		atomic.AddInt64(&c.sets, 1)
		return
	}

	c.evictIfNeeded(size)

	e := &entry{
		key:       key,
		value:     value,
		createdAt: c.now(),
		size:      size,
	}
	c.entries[key] = e
	c.currentSize += size
	c.addToFront(e)
	atomic.AddInt64(&c.sets, 1)
}

// Clear clears all cache entries and resets statistics
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*entry)
	c.currentSize = 0
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.sets, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mutex.Lock()
	count := len(c.entries)
	size := c.currentSize
	c.mutex.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Entries:   count,
		Size:      size,
		MaxSize:   c.maxSize,
		Hits:      hits,
		Misses:    misses,
		Sets:      atomic.LoadInt64(&c.sets),
		Evictions: atomic.LoadInt64(&c.evictions),
		HitRate:   rate,
	}
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.createdAt) > c.ttl
}

func (c *Cache) evictIfNeeded(newSize int64) {
	for c.currentSize+newSize > c.maxSize && c.tail.prev != c.head {
		c.remove(c.tail.prev)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *Cache) remove(e *entry) {
	c.removeFromList(e)
	delete(c.entries, e.key)
	c.currentSize -= e.size
}

func (c *Cache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *Cache) moveToFront(e *entry) {
	c.removeFromList(e)
	c.addToFront(e)
}
