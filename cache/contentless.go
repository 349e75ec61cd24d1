package cache

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgcore/internal/telemetry"
	"github.com/gogpu/wgcore/ref"
)

// Entry is implemented by objects stored in a ContentLess cache.
type Entry interface {
	ref.WeakObject
	CacheLink() *Cacheable
}

// eraser is the view of a cache held by its entries.
type eraser interface {
	ref.WeakObject
	erase(obj ref.WeakObject, hash uint64)
}

// Cacheable is embedded by objects that can be stored in a ContentLess
// cache. It holds a weak back reference to the cache the object was
// inserted into.
type Cacheable struct {
	cache ref.WeakRef[eraser]
	hash  uint64
}

// CacheLink returns the embedded link. It lets cached types satisfy Entry.
func (c *Cacheable) CacheLink() *Cacheable { return c }

// IsCached reports whether the object was inserted into a cache.
func (c *Cacheable) IsCached() bool { return !c.cache.IsNil() }

// Uncache removes obj from the cache it was inserted into. It is meant to be
// called from obj's Finalize method and is a no-op for objects that were
// never inserted or whose cache is already gone.
func (c *Cacheable) Uncache(obj ref.WeakObject) {
	if c.cache.IsNil() {
		return
	}
	owner := c.cache.Promote()
	c.cache.Reset()
	if owner.IsNil() {
		return
	}
	owner.Get().erase(obj, c.hash)
	owner.Reset()
}

// HashFunc hashes the content of a cached object.
type HashFunc[T any] func(T) uint64

// EqualFunc compares the content of two cached objects.
type EqualFunc[T any] func(a, b T) bool

type slot[T Entry] struct {
	weak ref.WeakRef[T]
	hash uint64
}

// Stats holds cache statistics.
type Stats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Inserts   uint64
	Dedups    uint64
	Evictions uint64
	Erases    uint64
}

// ContentLess is a weak, content-addressed set of objects.
//
// Hashes are stored with each slot at insert time, so entries whose objects
// are being destroyed can still be found and removed without being
// promoted.
type ContentLess[T Entry] struct {
	ref.WeakRefCounted

	name  string
	hash  HashFunc[T]
	equal EqualFunc[T]

	mu      sync.Mutex
	buckets map[uint64][]slot[T]
	count   int

	hits      atomic.Uint64
	misses    atomic.Uint64
	inserts   atomic.Uint64
	dedups    atomic.Uint64
	evictions atomic.Uint64
	erases    atomic.Uint64
}

// NewContentLess creates an empty cache. The caller owns the returned
// cache's initial reference and releases it with ref.Release once every
// cached object is gone.
func NewContentLess[T Entry](name string, hash HashFunc[T], equal EqualFunc[T]) *ContentLess[T] {
	c := &ContentLess[T]{
		name:    name,
		hash:    hash,
		equal:   equal,
		buckets: make(map[uint64][]slot[T]),
	}
	ref.InitWeak(c)
	return c
}

// Name returns the cache name used in metrics.
func (c *ContentLess[T]) Name() string { return c.name }

// Insert adds obj to the cache unless a value-equal live object is already
// present. It returns a new reference to the object that is in the cache
// afterwards and whether that object is obj. Entries whose objects are being
// destroyed never match and are evicted on the way.
func (c *ContentLess[T]) Insert(obj T) (ref.Ref[T], bool) {
	h := c.hash(obj)

	var pending []ref.Ref[T]
	defer func() { releaseAll(pending) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[h]
	for i := 0; i < len(bucket); {
		s := bucket[i]
		if s.weak.Refers(obj) {
			c.storeBucket(h, bucket)
			return ref.NewRef(obj), false
		}
		live := s.weak.Promote()
		if live.IsNil() {
			s.weak.Reset()
			bucket = removeSlot(bucket, i)
			c.count--
			c.evictions.Add(1)
			telemetry.CacheOp(c.name, "evict")
			continue
		}
		if c.equal(obj, live.Get()) {
			c.storeBucket(h, bucket)
			c.dedups.Add(1)
			telemetry.CacheOp(c.name, "dedup")
			return live, false
		}
		pending = append(pending, live)
		i++
	}

	bucket = append(bucket, slot[T]{weak: ref.GetWeakRef(obj), hash: h})
	c.storeBucket(h, bucket)
	c.count++

	self := ref.GetWeakRef(c)
	link := obj.CacheLink()
	link.cache.Reset()
	link.cache = ref.Upcast(self, func(c *ContentLess[T]) eraser { return c })
	link.hash = h
	self.Reset()

	c.inserts.Add(1)
	telemetry.CacheOp(c.name, "insert")
	return ref.NewRef(obj), true
}

// Find returns a reference to the live cached object equal to blueprint, or
// a nil Ref. The blueprint is only used for hashing and comparison.
func (c *ContentLess[T]) Find(blueprint T) ref.Ref[T] {
	h := c.hash(blueprint)

	var pending []ref.Ref[T]
	defer func() { releaseAll(pending) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.buckets[h] {
		live := s.weak.Promote()
		if live.IsNil() {
			continue
		}
		if c.equal(blueprint, live.Get()) {
			c.hits.Add(1)
			telemetry.CacheOp(c.name, "hit")
			return live
		}
		pending = append(pending, live)
	}
	c.misses.Add(1)
	telemetry.CacheOp(c.name, "miss")
	return ref.Ref[T]{}
}

// Erase removes obj if it is the very object stored in the cache. Erasing an
// equal but distinct object is a no-op.
func (c *ContentLess[T]) Erase(obj T) {
	h := c.hash(obj)
	if link := obj.CacheLink(); link.IsCached() {
		h = link.hash
	}
	c.erase(obj, h)
}

func (c *ContentLess[T]) erase(obj ref.WeakObject, h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[h]
	for i, s := range bucket {
		if !s.weak.Refers(obj) {
			continue
		}
		s.weak.Reset()
		c.storeBucket(h, removeSlot(bucket, i))
		c.count--
		c.erases.Add(1)
		telemetry.CacheOp(c.name, "erase")
		return
	}
}

// Empty reports whether the cache holds no entries.
func (c *ContentLess[T]) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count == 0
}

// Len returns the number of entries, including entries whose objects are
// being destroyed.
func (c *ContentLess[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Stats returns current cache statistics.
func (c *ContentLess[T]) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Inserts:   c.inserts.Load(),
		Dedups:    c.dedups.Load(),
		Evictions: c.evictions.Load(),
		Erases:    c.erases.Load(),
	}
}

// Finalize runs when the last reference to the cache is released. A cache
// that still holds entries at that point has outlived objects that failed to
// uncache themselves.
func (c *ContentLess[T]) Finalize() {
	if !c.Empty() {
		panic("cache: " + c.name + " destroyed while not empty")
	}
}

func (c *ContentLess[T]) storeBucket(h uint64, bucket []slot[T]) {
	if len(bucket) == 0 {
		delete(c.buckets, h)
		return
	}
	c.buckets[h] = bucket
}

func removeSlot[T Entry](bucket []slot[T], i int) []slot[T] {
	last := len(bucket) - 1
	bucket[i] = bucket[last]
	bucket[last] = slot[T]{}
	return bucket[:last]
}

// releaseAll drops references promoted while the cache lock was held. It runs
// after the lock is released because a drop may destroy an object, which then
// erases itself from this cache.
func releaseAll[T ref.Object](refs []ref.Ref[T]) {
	for i := range refs {
		refs[i].Reset()
	}
}
