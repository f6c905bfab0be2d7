package conversation

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of task histories held in memory.
const DefaultCacheSize = 256

// Loader rebuilds a task history from durable storage on a cache miss.
type Loader func(taskID string) (History, error)

// Cache keeps recent task histories in memory. It is volatile: any entry can
// be evicted and later rebuilt from persisted messages through the loader.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, History]
	load    Loader
}

// NewCache creates a history cache of the given size.
func NewCache(size int, load Loader) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, History](size)
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}
	return &Cache{entries: entries, load: load}, nil
}

// Get returns the history for taskID, loading it on a miss.
func (c *Cache) Get(taskID string) (History, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(taskID)
}

// Append adds entries to the task history and returns the result.
func (c *Cache) Append(taskID string, entries ...Entry) (History, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.getLocked(taskID)
	if err != nil {
		return nil, err
	}
	h = h.Append(entries...)
	c.entries.Add(taskID, h)
	return h, nil
}

// Put replaces the cached history for taskID.
func (c *Cache) Put(taskID string, h History) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(taskID, h)
}

// Invalidate drops taskID so the next Get reloads it.
func (c *Cache) Invalidate(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(taskID)
}

// Len returns the number of cached histories.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) getLocked(taskID string) (History, error) {
	if h, ok := c.entries.Get(taskID); ok {
		return h, nil
	}
	var h History
	if c.load != nil {
		loaded, err := c.load(taskID)
		if err != nil {
			return nil, fmt.Errorf("load history for task %s: %w", taskID, err)
		}
		h = loaded
	}
	c.entries.Add(taskID, h)
	return h, nil
}
