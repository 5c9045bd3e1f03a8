package engine

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/positionid"
)

// Cache constants
const (
	DefaultCacheSize = 1 << 16
	CacheHit         = ^uint32(0)
)

// CacheEntry stores a cached evaluation result
type CacheEntry struct {
	Key    positionid.Key
	Valid  bool
	Output bearoff.Output
	Source Source
}

// EvalCache is a thread-safe position evaluation cache.
// Two-way associative: a new entry pushes the slot's primary to secondary.
type EvalCache struct {
	entries  []cacheNode
	size     uint32
	hashMask uint32

	lookups atomic.Uint64
	hits    atomic.Uint64
	adds    atomic.Uint64

	mu sync.RWMutex
}

type cacheNode struct {
	primary   CacheEntry
	secondary CacheEntry
}

// NewEvalCache creates a new evaluation cache with the given size.
// Size is rounded up to a power of 2, minimum 2.
func NewEvalCache(size int) *EvalCache {
	if size > 1<<30 {
		size = 1 << 30
	}
	p := uint32(2)
	for int(p) < size {
		p <<= 1
	}

	return &EvalCache{
		entries:  make([]cacheNode, p/2),
		size:     p,
		hashMask: p/2 - 1,
	}
}

// Size returns the number of entries the cache can hold.
func (c *EvalCache) Size() int {
	return int(c.size)
}

// Flush clears all entries from the cache
func (c *EvalCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.lookups.Store(0)
	c.hits.Store(0)
	c.adds.Store(0)
}

func (c *EvalCache) hash(key positionid.Key) uint32 {
	return uint32(xxhash.Sum64(key[:])) & c.hashMask
}

// Lookup checks if a position is in the cache.
// Returns CacheHit if found (entry filled), otherwise the slot for Add.
func (c *EvalCache) Lookup(key positionid.Key, entry *CacheEntry) uint32 {
	slot := c.hash(key)
	c.lookups.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	node := &c.entries[slot]
	for _, e := range [2]*CacheEntry{&node.primary, &node.secondary} {
		if e.Valid && e.Key == key {
			*entry = *e
			c.hits.Add(1)
			return CacheHit
		}
	}
	return slot
}

// Add stores an evaluation in slot, which must come from a Lookup miss.
func (c *EvalCache) Add(key positionid.Key, out bearoff.Output, src Source, slot uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := &c.entries[slot]
	node.secondary = node.primary
	node.primary = CacheEntry{Key: key, Valid: true, Output: out, Source: src}

	c.adds.Add(1)
}

// Stats returns cache statistics
func (c *EvalCache) Stats() (lookups, hits, adds uint64) {
	return c.lookups.Load(), c.hits.Load(), c.adds.Load()
}

// HitRate returns the cache hit rate as a percentage
func (c *EvalCache) HitRate() float64 {
	lookups := c.lookups.Load()
	if lookups == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(lookups) * 100
}
