// Package ref implements intrusive reference counting and weak references
// for GPU objects.
//
// A type becomes reference counted by embedding [RefCounted]; the zero value
// already holds the creator's reference. Ownership is passed around with
// [Ref] handles, and the last release runs the object's [Finalizer] hook
// exactly once.
//
// Types that must be observable without being kept alive embed
// [WeakRefCounted] instead and call [InitWeak] from their constructor. A
// [WeakRef] obtained from [GetWeakRef] can later be promoted back to a strong
// [Ref]; promotion fails once the last strong reference is gone, and it never
// yields a reference to an object whose destruction has started.
//
// Typical use:
//
//	type Device struct {
//	    ref.WeakRefCounted
//	    // ...
//	}
//
//	func NewDevice() ref.Ref[*Device] {
//	    d := &Device{}
//	    ref.InitWeak(d)
//	    return ref.AcquireRef(d)
//	}
//
//	weak := ref.GetWeakRef(device.Get())
//	if strong := weak.Promote(); !strong.IsNil() {
//	    defer strong.Reset()
//	    // use strong.Get()
//	}
package ref
