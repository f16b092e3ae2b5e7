// Package dedupe remembers recently answered report request IDs so that a
// redelivered request does not trigger a second analysis run.
package dedupe

import (
	"sync"
	"time"
)

type mark struct {
	id string
	at time.Time
}

// Cache is a bounded, TTL-limited set of request IDs. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	marked   map[string]time.Time
	queue    []mark
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache holding at most capacity IDs for ttl each.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		marked:   make(map[string]time.Time, capacity),
		queue:    make([]mark, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether the request ID was marked within the ttl window.
func (c *Cache) IsSeen(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.marked[id]
	return ok && c.now().Sub(at) <= c.ttl
}

// MarkSeen records a request ID as answered. Empty IDs are ignored.
func (c *Cache) MarkSeen(id string) {
	if id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.marked[id] = now
	c.queue = append(c.queue, mark{id: id, at: now})
	c.evict(now)
}

// Len returns the number of IDs currently remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evict(c.now())
	return len(c.marked)
}

func (c *Cache) evict(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.queue) > 0 && (len(c.marked) > c.capacity || c.queue[0].at.Before(cutoff)) {
		oldest := c.queue[0]
		c.queue = c.queue[1:]

		// a re-marked ID has a newer queue entry
		if at, ok := c.marked[oldest.id]; ok && at.Equal(oldest.at) {
			delete(c.marked, oldest.id)
		}
	}
}
