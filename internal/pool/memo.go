package pool

// memoCache is a bounded per-worker result cache. Insertion order is kept so
// the oldest entry is evicted once capacity is exceeded. Each worker owns
// exactly one cache, so no locking is needed.
type memoCache struct {
	capacity int
	entries  map[string]any
	order    []string
}

func newMemoCache(capacity int) *memoCache {
	return &memoCache{
		capacity: capacity,
		entries:  make(map[string]any, capacity),
	}
}

func (c *memoCache) get(key string) (any, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *memoCache) put(key string, val any) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = val
		return
	}
	c.entries[key] = val
	c.order = append(c.order, key)
	for len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *memoCache) len() int {
	return len(c.entries)
}
