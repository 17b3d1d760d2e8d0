package limiter

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is a process-local Counter for single-instance deployments
// and tests. Expired entries are dropped lazily on access and swept when the
// map grows past a threshold.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

const sweepThreshold = 4096

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]*memoryEntry)}
}

func (c *MemoryCounter) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > sweepThreshold {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}

	e, ok := c.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &memoryEntry{expiresAt: now.Add(ttl)}
		c.entries[key] = e
	}
	e.count++
	return e.count, nil
}
