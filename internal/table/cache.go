package table

import (
	"container/list"

	"github.com/reajuria/bindb/internal/codec"
	"github.com/reajuria/bindb/internal/ident"
)

// Cache is a bounded, strictly-LRU cache of parsed rows keyed by id. All
// operations are O(1) amortized. It is owned by exactly one table and relies
// on the table's serialization for safety.
type Cache struct {
	capacity int
	order    *list.List // front = most recently used
	items    map[ident.ID]*list.Element
}

type cacheEntry struct {
	id  ident.ID
	row codec.Row
}

// NewCache returns a cache holding at most capacity rows. A capacity of zero
// or less disables caching entirely.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[ident.ID]*list.Element),
	}
}

// Get returns the cached row for id and promotes it to most recent. The
// second return value distinguishes a miss from a cached null.
func (c *Cache) Get(id ident.ID) (codec.Row, bool) {
	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).row, true
}

// Set inserts or updates the row for id, promoting it and evicting the
// least-recently-used entry on overflow.
func (c *Cache) Set(id ident.ID, row codec.Row) {
	if c.capacity <= 0 {
		return
	}
	if el, ok := c.items[id]; ok {
		el.Value.(*cacheEntry).row = row
		c.order.MoveToFront(el)
		return
	}
	c.items[id] = c.order.PushFront(&cacheEntry{id: id, row: row})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).id)
	}
}

// Delete evicts the entry for id, if present.
func (c *Cache) Delete(id ident.ID) {
	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
	}
}

// Len returns the number of cached rows.
func (c *Cache) Len() int { return c.order.Len() }

// Clear drops every entry.
func (c *Cache) Clear() {
	c.order.Init()
	clear(c.items)
}
