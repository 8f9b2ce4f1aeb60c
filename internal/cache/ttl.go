package cache

import (
	"sync"
	"time"

	"github.com/smallbiznis/matchhub/internal/clock"
)

// Cache is a keyed store whose entries expire after their own TTL.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	clock clock.Clock
	mu    sync.Mutex
	items map[K]entry[V]
	sets  int
}

// purgeEvery is how many Sets pass between full scans for expired entries.
const purgeEvery = 256

// NewTTLCache returns an in-memory cache. Expired entries are dropped on read
// and by a periodic scan on write.
func NewTTLCache[K comparable, V any](clk clock.Clock) Cache[K, V] {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &ttlCache[K, V]{clock: clk, items: make(map[K]entry[V])}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		c.Delete(key)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.items[key] = entry[V]{value: value, expiresAt: now.Add(ttl)}
	c.sets++
	if c.sets%purgeEvery == 0 {
		for k, e := range c.items {
			if !now.Before(e.expiresAt) {
				delete(c.items, k)
			}
		}
	}
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts entries including expired ones not yet purged.
func (c *ttlCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
