package ref

// Ref is an owning handle to a reference-counted object.
//
// Go has no copy constructors, so sharing is explicit: Clone adds a
// reference, Reset drops it and Detach moves it out. A Ref is not safe for
// concurrent mutation, but the count it manages is.
type Ref[T Object] struct {
	obj T
	set bool
}

// AcquireRef adopts the reference the caller already owns, typically the
// initial reference of a freshly allocated object. obj must not be nil.
func AcquireRef[T Object](obj T) Ref[T] {
	return Ref[T]{obj: obj, set: true}
}

// NewRef adds a reference to obj and returns a handle owning it.
func NewRef[T Object](obj T) Ref[T] {
	obj.Refs().Reference()
	return Ref[T]{obj: obj, set: true}
}

// Get returns the referenced object, or the zero T for a nil Ref.
func (r Ref[T]) Get() T { return r.obj }

// IsNil reports whether the handle is empty.
func (r Ref[T]) IsNil() bool { return !r.set }

// Clone returns a new handle sharing the object.
func (r Ref[T]) Clone() Ref[T] {
	if !r.set {
		return Ref[T]{}
	}
	return NewRef(r.obj)
}

// Assign makes r share other's object. The new reference is taken before the
// old one is dropped, so assigning a handle to itself never destroys the
// object.
func (r *Ref[T]) Assign(other Ref[T]) {
	if other.set {
		other.obj.Refs().Reference()
	}
	old, hadOld := r.obj, r.set
	r.obj, r.set = other.obj, other.set
	if hadOld {
		Release(old)
	}
}

// Reset drops the reference and empties the handle.
func (r *Ref[T]) Reset() {
	if !r.set {
		return
	}
	obj := r.obj
	var zero T
	r.obj, r.set = zero, false
	Release(obj)
}

// Detach empties the handle and returns the object without dropping the
// reference, which now belongs to the caller.
func (r *Ref[T]) Detach() T {
	obj := r.obj
	var zero T
	r.obj, r.set = zero, false
	return obj
}

// Take moves the reference into a new handle and empties r.
func (r *Ref[T]) Take() Ref[T] {
	if !r.set {
		return Ref[T]{}
	}
	return AcquireRef(r.Detach())
}
