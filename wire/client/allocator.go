package client

import (
	"fmt"

	"github.com/gogpu/wgcore/wire"
)

// ObjectAllocator hands out wire handles for one object type. ID 0 is never
// allocated. Freed ids are reused most-recent-first, and each reuse bumps
// the id's serial so replies addressed to the previous object are stale.
type ObjectAllocator[T comparable] struct {
	create  func(h wire.ObjectHandle) T
	objects []slot[T]
	free    []uint32
}

type slot[T comparable] struct {
	obj    T
	serial uint32
}

// NewObjectAllocator creates an allocator whose New builds objects with
// create.
func NewObjectAllocator[T comparable](create func(h wire.ObjectHandle) T) *ObjectAllocator[T] {
	// Slot 0 is the reserved null id.
	return &ObjectAllocator[T]{create: create, objects: make([]slot[T], 1)}
}

// New allocates an id and creates the object for it.
func (a *ObjectAllocator[T]) New() (T, wire.ObjectHandle) {
	var h wire.ObjectHandle
	if n := len(a.free); n > 0 {
		h.ID = a.free[n-1]
		a.free = a.free[:n-1]
		a.objects[h.ID].serial++
		h.Serial = a.objects[h.ID].serial
	} else {
		h.ID = uint32(len(a.objects))
		a.objects = append(a.objects, slot[T]{})
	}
	obj := a.create(h)
	a.objects[h.ID].obj = obj
	return obj, h
}

// Free returns id to the free list. The serial is kept so the next New for
// id continues from it.
func (a *ObjectAllocator[T]) Free(id uint32) {
	var zero T
	if id == 0 || int(id) >= len(a.objects) || a.objects[id].obj == zero {
		panic(fmt.Sprintf("wire/client: free of unallocated id %d", id))
	}
	a.objects[id].obj = zero
	a.free = append(a.free, id)
}

// GetObject returns the live object with id, or the zero T.
func (a *ObjectAllocator[T]) GetObject(id uint32) T {
	if int(id) >= len(a.objects) {
		var zero T
		return zero
	}
	return a.objects[id].obj
}

// GetSerial returns the current serial of id, or 0 when id was never
// allocated.
func (a *ObjectAllocator[T]) GetSerial(id uint32) uint32 {
	if int(id) >= len(a.objects) {
		return 0
	}
	return a.objects[id].serial
}

// lookup returns the object h names, or false when h is stale.
func (a *ObjectAllocator[T]) lookup(h wire.ObjectHandle) (T, bool) {
	var zero T
	obj := a.GetObject(h.ID)
	if obj == zero || a.GetSerial(h.ID) != h.Serial {
		return zero, false
	}
	return obj, true
}

// live returns the live objects in id order.
func (a *ObjectAllocator[T]) live() []T {
	var zero T
	var out []T
	for _, s := range a.objects[1:] {
		if s.obj != zero {
			out = append(out, s.obj)
		}
	}
	return out
}
