package chat

import "sync"

// senderCache is the read-through cache of sender display info. It is
// bounded: at capacity an arbitrary entry is evicted before the new one is
// stored. Entries are otherwise kept for the cache's lifetime; a profile
// changing mid-session may be served stale, which is acceptable.
type senderCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]SenderInfo
}

func newSenderCache(capacity int) *senderCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &senderCache{
		capacity: capacity,
		entries:  make(map[string]SenderInfo, capacity),
	}
}

func (c *senderCache) get(userID string) (SenderInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[userID]
	return info, ok
}

func (c *senderCache) put(userID string, info SenderInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[userID]; !ok && len(c.entries) >= c.capacity {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[userID] = info
}

func (c *senderCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
