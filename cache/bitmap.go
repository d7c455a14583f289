// Package cache provides the process-wide bitmap and palette caches.
//
// The bitmap cache holds weak references only: it never keeps a decoded
// bitmap alive by itself.  The displaying layer holds the owning reference;
// once that is dropped and the runtime reclaims the buffer, Get reports a
// miss.  Reclamation races are designed out structurally: every read
// re-validates liveness before returning a handle, so a dangling bitmap is
// never observable.
package cache

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/argonlabs/imageload/core"
)

// shardCount spreads keys across independent locks so unrelated decode
// requests never contend on a single mutex.
const shardCount = 16

type bitmapEntry struct {
	ref        weak.Pointer[core.Bitmap]
	gen        uint64
	insertedAt time.Time
}

type bitmapShard struct {
	mu      sync.RWMutex
	entries map[uint64]bitmapEntry
}

// BitmapCache is a sharded, weak-valued map from decode key to bitmap.
// All methods are safe for concurrent use.
type BitmapCache struct {
	shards [shardCount]bitmapShard
	gen    atomic.Uint64
}

// NewBitmapCache returns an empty BitmapCache.
func NewBitmapCache() *BitmapCache {
	c := &BitmapCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[uint64]bitmapEntry)
	}
	return c
}

func (c *BitmapCache) shard(key uint64) *bitmapShard {
	return &c.shards[key%shardCount]
}

// Get returns the cached bitmap for key when it is still live.  A miss and a
// reclaimed entry are indistinguishable to the caller; both mean "decode
// again".  Reclaimed entries are tombstoned out on sight.
func (c *BitmapCache) Get(key uint64) (*core.Bitmap, bool) {
	s := c.shard(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	// Liveness check and handle recovery are a single atomic step: Value
	// either resurrects a strong reference or reports reclamation.
	if bm := e.ref.Value(); bm != nil {
		return bm, true
	}

	s.mu.Lock()
	if cur, ok := s.entries[key]; ok && cur.gen == e.gen {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return nil, false
}

// Put stores a weak association from key to bm.  Storing never extends the
// bitmap's lifetime.  A cleanup removes the tombstone once the runtime
// reclaims the buffer, keyed by generation so a newer entry under the same
// key is never clobbered.
func (c *BitmapCache) Put(key uint64, bm *core.Bitmap) {
	if bm == nil {
		return
	}
	s := c.shard(key)
	gen := c.gen.Add(1)
	s.mu.Lock()
	s.entries[key] = bitmapEntry{ref: weak.Make(bm), gen: gen, insertedAt: time.Now()}
	s.mu.Unlock()

	runtime.AddCleanup(bm, func(k uint64) {
		s.mu.Lock()
		if cur, ok := s.entries[k]; ok && cur.gen == gen {
			delete(s.entries, k)
		}
		s.mu.Unlock()
	}, key)
}

// Remove drops the entry for key, if any.
func (c *BitmapCache) Remove(key uint64) {
	s := c.shard(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len reports the number of entries whose bitmaps are still live.  Dead
// entries encountered along the way are pruned.
func (c *BitmapCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			if e.ref.Value() == nil {
				delete(s.entries, k)
				continue
			}
			n++
		}
		s.mu.Unlock()
	}
	return n
}

var _ core.BitmapCache = (*BitmapCache)(nil)
