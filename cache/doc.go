// Package cache deduplicates GPU objects by content.
//
// [ContentLess] is a set of weak references keyed by the value of the
// objects it holds. Creating a second object equal to a live cached one
// returns the cached one instead, while the cache itself never keeps an
// object alive: each cached object removes itself from the cache when its
// last reference is released.
//
// Cached types embed [Cacheable] next to ref.WeakRefCounted and call
// [Cacheable.Uncache] from their Finalize method:
//
//	type Sampler struct {
//	    ref.WeakRefCounted
//	    cache.Cacheable
//	    desc SamplerDescriptor
//	}
//
//	func (s *Sampler) Finalize() { s.Uncache(s) }
//
// All operations of one cache are serialized by a single mutex.
package cache
