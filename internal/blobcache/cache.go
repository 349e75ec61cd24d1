// Package blobcache holds compiled shader blobs keyed by a content hash.
//
// Compiling WGSL through naga is the slowest step of pipeline creation, and
// the same source is often compiled for several pipelines. The cache keeps
// the SPIR-V of recently used sources under a byte budget and evicts the
// least recently used blobs first.
//
//	c := blobcache.New[uint64, []uint32](1<<20, func(b []uint32) int { return 4 * len(b) })
//	c.Set(key, spirv)
//	spirv, ok := c.Get(key)
//
// Cache is safe for concurrent use and must not be copied after creation.
package blobcache

import "sync"

// SizeFunc reports the cost of a value against the budget.
type SizeFunc[V any] func(V) int

// Cache is a thread-safe LRU cache bounded by total value size.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	lru     lruList[K, V]
	sizeOf  SizeFunc[V]
	budget  int
	used    int

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache that evicts once the summed size of its values
// exceeds budget. A budget of 0 means unlimited. A nil sizeOf counts every
// value as 1, which turns the budget into an entry limit.
func New[K comparable, V any](budget int, sizeOf SizeFunc[V]) *Cache[K, V] {
	if sizeOf == nil {
		sizeOf = func(V) int { return 1 }
	}
	return &Cache[K, V]{
		entries: make(map[K]*lruNode[K, V]),
		sizeOf:  sizeOf,
		budget:  budget,
	}
}

// Get retrieves a value from the cache.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.lru.moveToFront(node)
	return node.value, true
}

// Set stores a value, replacing any previous value for key. A value larger
// than the whole budget is not stored.
func (c *Cache[K, V]) Set(key K, value V) {
	size := c.sizeOf(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.entries[key]; ok {
		c.removeLocked(node)
	}
	if c.budget > 0 && size > c.budget {
		return
	}
	node := &lruNode[K, V]{key: key, value: value, size: size}
	c.entries[key] = node
	c.lru.pushFront(node)
	c.used += size

	for c.budget > 0 && c.used > c.budget {
		oldest := c.lru.back()
		if oldest == nil || oldest == node {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// Delete removes an entry from the cache.
// Returns true if the entry was found and removed.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if ok {
		c.removeLocked(node)
	}
	return ok
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*lruNode[K, V])
	c.lru = lruList[K, V]{}
	c.used = 0
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Used:      c.used,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// removeLocked drops node. Caller must hold c.mu.
func (c *Cache[K, V]) removeLocked(node *lruNode[K, V]) {
	c.lru.unlink(node)
	delete(c.entries, node.key)
	c.used -= node.size
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Used is the summed size of all values.
	Used int
	// Budget is the size limit, 0 for unlimited.
	Budget    int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}
