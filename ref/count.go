package ref

import "sync/atomic"

// Count is an atomic intrusive reference count.
//
// The zero value holds one reference. Internally the counter stores the
// number of references minus one, so a count that reached zero reads as -1
// and can never be revived by TryIncrement.
type Count struct {
	extra   atomic.Int64
	payload uint64
}

// SetPayload stores the extra bits carried alongside the count. It must be
// called before the count is shared with other goroutines.
func (c *Count) SetPayload(payload uint64) { c.payload = payload }

// Payload returns the extra bits set with SetPayload.
func (c *Count) Payload() uint64 { return c.payload }

// Value returns the current number of references. The result is only a
// snapshot and must not be used for ownership decisions.
func (c *Count) Value() uint64 {
	v := c.extra.Load() + 1
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Increment adds one reference. The caller must already own a reference.
func (c *Count) Increment() {
	if c.extra.Add(1) <= 0 {
		panic("ref: Increment on a released object")
	}
}

// TryIncrement adds one reference unless the count already reached zero.
func (c *Count) TryIncrement() bool {
	for {
		v := c.extra.Load()
		if v < 0 {
			return false
		}
		if c.extra.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// Decrement drops one reference and reports whether it was the last one.
// It returns true exactly once over the lifetime of the count.
func (c *Count) Decrement() bool {
	v := c.extra.Add(-1)
	if v < -1 {
		panic("ref: Decrement below zero")
	}
	return v == -1
}
