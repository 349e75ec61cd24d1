package ref

import "sync"

// WeakRefData is the control block shared by an object and its weak
// references. It is reference counted on its own so it can outlive the
// object it points to.
type WeakRefData struct {
	RefCounted

	mu    sync.Mutex
	value Object
}

// TryGetRef returns the referent with an added reference, or nil once the
// referent started its destruction.
func (d *WeakRefData) TryGetRef() Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.value == nil || !d.value.Refs().TryReference() {
		return nil
	}
	return d.value
}

// Valid reports whether the referent has not been invalidated yet.
func (d *WeakRefData) Valid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value != nil
}

func (d *WeakRefData) invalidate() {
	d.mu.Lock()
	d.value = nil
	d.mu.Unlock()
}

// WeakObject is implemented by objects that support weak references,
// usually by embedding WeakRefCounted.
type WeakObject interface {
	Object
	WeakRefs() *WeakRefCounted
}

// WeakRefCounted is the embeddable base of objects that can be weakly
// referenced.
type WeakRefCounted struct {
	RefCounted
	data *WeakRefData
}

// WeakRefs returns the embedded weak base.
func (w *WeakRefCounted) WeakRefs() *WeakRefCounted { return w }

// InitWeak creates obj's weak control block. It must be called once, from
// obj's constructor, before any weak reference is taken.
func InitWeak(obj WeakObject) {
	w := obj.WeakRefs()
	if w.data != nil {
		panic("ref: InitWeak called twice")
	}
	w.data = &WeakRefData{value: obj}
}

// WeakRef is a non-owning reference that can be promoted to a Ref while the
// referent is alive.
type WeakRef[T WeakObject] struct {
	data Ref[*WeakRefData]
}

// GetWeakRef returns a weak reference to obj.
func GetWeakRef[T WeakObject](obj T) WeakRef[T] {
	d := obj.WeakRefs().data
	if d == nil {
		panic("ref: weak reference to an object without InitWeak")
	}
	return WeakRef[T]{data: NewRef(d)}
}

// Upcast converts a weak reference to a more general type. The conversion
// function is never called; its signature proves at compile time that D is
// assignable to B.
//
//	var w ref.WeakRef[Node] = ref.Upcast(weakBuffer, func(b *Buffer) Node { return b })
func Upcast[B, D WeakObject](w WeakRef[D], _ func(D) B) WeakRef[B] {
	return WeakRef[B]{data: w.data.Clone()}
}

// Promote returns a strong reference to the referent, or a nil Ref if it is
// gone or being destroyed.
func (w WeakRef[T]) Promote() Ref[T] {
	if w.data.IsNil() {
		return Ref[T]{}
	}
	obj := w.data.Get().TryGetRef()
	if obj == nil {
		return Ref[T]{}
	}
	t, ok := obj.(T)
	if !ok {
		Release(obj)
		panic("ref: weak reference holds an object of another type")
	}
	return AcquireRef(t)
}

// IsNil reports whether the weak reference is empty. An expired reference
// is not nil.
func (w WeakRef[T]) IsNil() bool { return w.data.IsNil() }

// Expired reports whether promotion is known to fail.
func (w WeakRef[T]) Expired() bool {
	return w.data.IsNil() || !w.data.Get().Valid()
}

// Refers reports whether w was taken from obj. It compares identities
// without promoting, so it still works while obj is being destroyed.
func (w WeakRef[T]) Refers(obj WeakObject) bool {
	return !w.data.IsNil() && w.data.Get() == obj.WeakRefs().data
}

// Clone returns another weak reference to the same referent.
func (w WeakRef[T]) Clone() WeakRef[T] {
	return WeakRef[T]{data: w.data.Clone()}
}

// Reset drops the weak reference.
func (w *WeakRef[T]) Reset() { w.data.Reset() }

// Data returns the shared control block, mainly for diagnostics.
func (w WeakRef[T]) Data() *WeakRefData { return w.data.Get() }
