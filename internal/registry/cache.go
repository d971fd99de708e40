package registry

import (
	"container/list"
	"sync"
)

// schemaCache is a thread-safe LRU cache for schema-by-id lookups. Schemas
// are immutable, so entries never need invalidation, only eviction.
type schemaCache struct {
	mu       sync.Mutex
	capacity int
	cache    map[int64]*list.Element
	order    *list.List
}

type cacheEntry struct {
	id     int64
	schema *Schema
}

func newSchemaCache(capacity int) *schemaCache {
	return &schemaCache{
		capacity: capacity,
		cache:    make(map[int64]*list.Element),
		order:    list.New(),
	}
}

// get retrieves a schema from cache. Returns nil if not found.
func (c *schemaCache) get(id int64) *Schema {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[id]
	if !exists {
		return nil
	}

	c.order.MoveToFront(elem)
	entry := elem.Value.(*cacheEntry)

	copy := *entry.schema
	return &copy
}

// put adds a schema to the cache, evicting the least recently used if full.
func (c *schemaCache) put(schema *Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[schema.ID]; exists {
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			delete(c.cache, entry.id)
			c.order.Remove(oldest)
		}
	}

	copy := *schema
	elem := c.order.PushFront(&cacheEntry{id: schema.ID, schema: &copy})
	c.cache[schema.ID] = elem
}
