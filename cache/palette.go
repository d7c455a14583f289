package cache

import (
	"container/list"
	"sync"

	"github.com/argonlabs/imageload/core"
)

// DefaultPaletteCapacity bounds the palette cache when no capacity is given.
const DefaultPaletteCapacity = 20

type paletteEntry struct {
	key     uint64
	palette core.Palette
}

// PaletteCache is a fixed-capacity store of extracted colour summaries with
// strict least-recently-used eviction.  Both Get (on hit) and Put refresh
// recency; size never exceeds capacity after any operation.  Get and Put are
// O(1) amortized.
//
// The cache holds at most a couple dozen small palettes, so a single mutex
// is not a contention concern the way it would be for the bitmap cache.
type PaletteCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[uint64]*list.Element
}

// NewPaletteCache returns a PaletteCache bounded to capacity entries.
// Non-positive capacities fall back to DefaultPaletteCapacity.
func NewPaletteCache(capacity int) *PaletteCache {
	if capacity <= 0 {
		capacity = DefaultPaletteCapacity
	}
	return &PaletteCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[uint64]*list.Element, capacity),
	}
}

// Get returns the palette for key, refreshing its recency on hit.
func (c *PaletteCache) Get(key uint64) (core.Palette, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return core.Palette{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*paletteEntry).palette, true
}

// Put inserts or replaces the palette for key and refreshes its recency.
// Inserting beyond capacity evicts the least-recently-used entry.
func (c *PaletteCache) Put(key uint64, p core.Palette) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*paletteEntry).palette = p
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&paletteEntry{key: key, palette: p})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*paletteEntry).key)
	}
}

// Len returns the current number of cached palettes.
func (c *PaletteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

var _ core.PaletteCache = (*PaletteCache)(nil)
