package ref

// Object is implemented by every reference-counted type, usually by
// embedding RefCounted.
type Object interface {
	Refs() *RefCounted
}

// Finalizer is implemented by objects that need cleanup once their last
// strong reference is dropped, such as leaving a cache or breaking a cycle
// with their owner. Finalize runs exactly once.
type Finalizer interface {
	Finalize()
}

// DestroyLocker is implemented by objects whose destruction must be
// serialized with an external lock. APIRelease holds the lock while the
// object is finalized.
type DestroyLocker interface {
	LockForDestroy() (unlock func())
}

// RefCounted is the embeddable base of reference-counted objects.
type RefCounted struct {
	count Count
}

// Refs returns the embedded reference count. It lets any struct embedding
// RefCounted satisfy Object.
func (r *RefCounted) Refs() *RefCounted { return r }

// Reference adds a reference. The caller must already hold one.
func (r *RefCounted) Reference() { r.count.Increment() }

// TryReference adds a reference unless the object is being destroyed.
func (r *RefCounted) TryReference() bool { return r.count.TryIncrement() }

// RefCountValue returns a snapshot of the number of references.
func (r *RefCounted) RefCountValue() uint64 { return r.count.Value() }

// RefCountPayload returns the payload bits of the count.
func (r *RefCounted) RefCountPayload() uint64 { return r.count.Payload() }

// SetRefCountPayload sets the payload bits of the count.
func (r *RefCounted) SetRefCountPayload(payload uint64) { r.count.SetPayload(payload) }

// Release drops one reference held by internal code and destroys obj when it
// was the last one.
func Release(obj Object) {
	if obj.Refs().count.Decrement() {
		deleteThis(obj)
	}
}

// APIRelease drops one reference held by API callers. When it was the last
// reference, obj is destroyed under its DestroyLocker lock if it has one.
func APIRelease(obj Object) {
	if obj.Refs().count.Decrement() {
		lockAndDeleteThis(obj)
	}
}

func lockAndDeleteThis(obj Object) {
	if l, ok := obj.(DestroyLocker); ok {
		unlock := l.LockForDestroy()
		defer unlock()
	}
	deleteThis(obj)
}

// deleteThis invalidates weak observers and drops the object's own reference
// to its control block before running the finalizer, so no promotion can
// succeed once cleanup started.
func deleteThis(obj Object) {
	if w, ok := obj.(WeakObject); ok {
		if d := w.WeakRefs().data; d != nil {
			d.invalidate()
			Release(d)
		}
	}
	if f, ok := obj.(Finalizer); ok {
		f.Finalize()
	}
}
