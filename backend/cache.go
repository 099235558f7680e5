package backend

import "sync"

// blobCache is a bounded read cache keyed by "<segment>/<path>". Eviction is
// approximate FIFO via insertion order; blobs are small and the cache exists
// to absorb repeated reads within one operation, not to be a real LRU.
type blobCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string][]byte
	order   []string
}

func newBlobCache(maxSize int) *blobCache {
	return &blobCache{
		maxSize: maxSize,
		items:   make(map[string][]byte, maxSize),
	}
}

func (c *blobCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.items[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, true
}

func (c *blobCache) add(key string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		for len(c.items) >= c.maxSize && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	c.items[key] = stored
}

func (c *blobCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *blobCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string][]byte, c.maxSize)
	c.order = nil
}
