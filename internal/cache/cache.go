package cache

import (
	"sync"
	"time"
)

// TimedCache is a bounded set of values that expire after a fixed TTL.
// When full, the oldest entry is evicted to make room.
type TimedCache[T comparable] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[T]time.Time
	order    []T
	now      func() time.Time
}

func NewTimedCache[T comparable](ttl time.Duration, capacity int) *TimedCache[T] {
	return &TimedCache[T]{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[T]time.Time, capacity),
		now:      time.Now,
	}
}

func (c *TimedCache[T]) Insert(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()
	if _, ok := c.entries[value]; ok {
		c.remove(value)
	}
	for len(c.order) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[value] = c.now().Add(c.ttl)
	c.order = append(c.order, value)
}

// GetAndRemove reports whether value was present and unexpired, removing it
// either way.
func (c *TimedCache[T]) GetAndRemove(value T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt, ok := c.entries[value]
	if !ok {
		var zero T
		return zero, false
	}
	c.remove(value)
	if !c.now().Before(expiresAt) {
		var zero T
		return zero, false
	}
	return value, true
}

func (c *TimedCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
	return len(c.order)
}

func (c *TimedCache[T]) evictExpired() {
	now := c.now()
	kept := c.order[:0]
	for _, v := range c.order {
		if now.Before(c.entries[v]) {
			kept = append(kept, v)
		} else {
			delete(c.entries, v)
		}
	}
	c.order = kept
}

func (c *TimedCache[T]) remove(value T) {
	delete(c.entries, value)
	for i, v := range c.order {
		if v == value {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
