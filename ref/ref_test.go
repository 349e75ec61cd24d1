package ref

import (
	"sync"
	"sync/atomic"
	"testing"
)

// trackedObject counts its finalizations and records destruction.
type trackedObject struct {
	WeakRefCounted
	value     int
	destroyed atomic.Bool
	finalized *atomic.Int32
}

func newTrackedObject(value int, finalized *atomic.Int32) *trackedObject {
	o := &trackedObject{value: value, finalized: finalized}
	InitWeak(o)
	return o
}

func (o *trackedObject) Finalize() {
	o.destroyed.Store(true)
	o.finalized.Add(1)
}

type plainObject struct {
	RefCounted
	finalized int
}

func (o *plainObject) Finalize() { o.finalized++ }

// =============================================================================
// Count Tests
// =============================================================================

func TestCount_ZeroValueHoldsOneReference(t *testing.T) {
	var c Count
	if c.Value() != 1 {
		t.Errorf("Value() = %d, want 1", c.Value())
	}
	if !c.Decrement() {
		t.Error("Decrement() of the only reference should report last")
	}
	if c.Value() != 0 {
		t.Errorf("Value() after last Decrement = %d, want 0", c.Value())
	}
}

func TestCount_DecrementReportsLastOnce(t *testing.T) {
	var c Count
	c.Increment()
	c.Increment()

	results := []bool{c.Decrement(), c.Decrement(), c.Decrement()}
	want := []bool{false, false, true}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("Decrement #%d = %v, want %v", i, results[i], want[i])
		}
	}
}

func TestCount_TryIncrement(t *testing.T) {
	var c Count
	if !c.TryIncrement() {
		t.Fatal("TryIncrement on a live count should succeed")
	}
	if c.Value() != 2 {
		t.Errorf("Value() = %d, want 2", c.Value())
	}
	c.Decrement()
	c.Decrement()

	if c.TryIncrement() {
		t.Error("TryIncrement on a released count should fail")
	}
	if c.Value() != 0 {
		t.Errorf("Value() after failed TryIncrement = %d, want 0", c.Value())
	}
}

func TestCount_Payload(t *testing.T) {
	var c Count
	c.SetPayload(0b101)
	c.Increment()
	c.Decrement()
	if c.Payload() != 0b101 {
		t.Errorf("Payload() = %b, want 101", c.Payload())
	}
}

func TestCount_IncrementAfterReleasePanics(t *testing.T) {
	var c Count
	c.Decrement()
	defer func() {
		if recover() == nil {
			t.Error("Increment on a released count should panic")
		}
	}()
	c.Increment()
}

func TestCount_DecrementBelowZeroPanics(t *testing.T) {
	var c Count
	c.Decrement()
	defer func() {
		if recover() == nil {
			t.Error("Decrement below zero should panic")
		}
	}()
	c.Decrement()
}

// =============================================================================
// Release Tests
// =============================================================================

func TestRelease_FinalizesOnLastReference(t *testing.T) {
	o := &plainObject{}
	o.Reference()

	Release(o)
	if o.finalized != 0 {
		t.Fatalf("finalized = %d after first Release, want 0", o.finalized)
	}
	Release(o)
	if o.finalized != 1 {
		t.Errorf("finalized = %d after last Release, want 1", o.finalized)
	}
}

type lockedObject struct {
	RefCounted
	locked   bool
	sawLock  bool
	unlocked bool
}

func (o *lockedObject) LockForDestroy() func() {
	o.locked = true
	return func() { o.unlocked = true; o.locked = false }
}

func (o *lockedObject) Finalize() { o.sawLock = o.locked }

func TestAPIRelease_FinalizesUnderLock(t *testing.T) {
	o := &lockedObject{}
	APIRelease(o)
	if !o.sawLock {
		t.Error("Finalize should run while the destroy lock is held")
	}
	if !o.unlocked {
		t.Error("destroy lock should be released after Finalize")
	}
}

func TestRelease_SkipsDestroyLock(t *testing.T) {
	o := &lockedObject{}
	Release(o)
	if o.sawLock || o.unlocked {
		t.Error("Release should not take the destroy lock")
	}
}

// =============================================================================
// Ref Tests
// =============================================================================

func TestRef_NilHandle(t *testing.T) {
	var r Ref[*plainObject]
	if !r.IsNil() {
		t.Error("zero Ref should be nil")
	}
	r.Reset()
	if c := r.Clone(); !c.IsNil() {
		t.Error("Clone of a nil Ref should be nil")
	}
	if m := r.Take(); !m.IsNil() {
		t.Error("Take of a nil Ref should be nil")
	}
}

func TestRef_CloneAndReset(t *testing.T) {
	o := &plainObject{}
	a := AcquireRef(o)
	b := a.Clone()
	if o.RefCountValue() != 2 {
		t.Fatalf("RefCountValue() = %d, want 2", o.RefCountValue())
	}

	a.Reset()
	if !a.IsNil() {
		t.Error("Reset should empty the handle")
	}
	if o.finalized != 0 {
		t.Fatal("object finalized while a clone is alive")
	}
	b.Reset()
	if o.finalized != 1 {
		t.Errorf("finalized = %d, want 1", o.finalized)
	}
}

func TestRef_TakeMovesWithoutCounting(t *testing.T) {
	o := &plainObject{}
	a := AcquireRef(o)
	b := a.Take()
	if !a.IsNil() {
		t.Error("source should be nil after Take")
	}
	if o.RefCountValue() != 1 {
		t.Errorf("RefCountValue() = %d, want 1", o.RefCountValue())
	}
	b.Reset()
	if o.finalized != 1 {
		t.Errorf("finalized = %d, want 1", o.finalized)
	}
}

func TestRef_AssignSelf(t *testing.T) {
	o := &plainObject{}
	a := AcquireRef(o)
	a.Assign(a)
	if o.finalized != 0 {
		t.Fatal("self-assignment destroyed the object")
	}
	if o.RefCountValue() != 1 {
		t.Errorf("RefCountValue() = %d, want 1", o.RefCountValue())
	}
	a.Reset()
	if o.finalized != 1 {
		t.Errorf("finalized = %d, want 1", o.finalized)
	}
}

func TestRef_AssignReplaces(t *testing.T) {
	first, second := &plainObject{}, &plainObject{}
	a := AcquireRef(first)
	b := AcquireRef(second)

	a.Assign(b)
	if first.finalized != 1 {
		t.Errorf("first.finalized = %d, want 1", first.finalized)
	}
	if second.RefCountValue() != 2 {
		t.Errorf("second.RefCountValue() = %d, want 2", second.RefCountValue())
	}
	a.Reset()
	b.Reset()
	if second.finalized != 1 {
		t.Errorf("second.finalized = %d, want 1", second.finalized)
	}
}

func TestRef_DetachTransfersOwnership(t *testing.T) {
	o := &plainObject{}
	r := AcquireRef(o)
	raw := r.Detach()
	if !r.IsNil() {
		t.Error("Detach should empty the handle")
	}
	if raw.RefCountValue() != 1 {
		t.Errorf("RefCountValue() = %d, want 1", raw.RefCountValue())
	}
	Release(raw)
	if o.finalized != 1 {
		t.Errorf("finalized = %d, want 1", o.finalized)
	}
}

// =============================================================================
// WeakRef Tests
// =============================================================================

func TestWeakRef_PromoteWhileAlive(t *testing.T) {
	var finalized atomic.Int32
	o := newTrackedObject(7, &finalized)
	w := GetWeakRef(o)
	defer w.Reset()

	p := w.Promote()
	if p.IsNil() {
		t.Fatal("Promote of a live object returned nil")
	}
	if p.Get().value != 7 {
		t.Errorf("value = %d, want 7", p.Get().value)
	}
	p.Reset()
	Release(o)

	if finalized.Load() != 1 {
		t.Errorf("finalized = %d, want 1", finalized.Load())
	}
}

func TestWeakRef_PromoteAfterRelease(t *testing.T) {
	var finalized atomic.Int32
	o := newTrackedObject(1, &finalized)
	w := GetWeakRef(o)
	defer w.Reset()

	Release(o)

	if !w.Expired() {
		t.Error("Expired() should be true after the last release")
	}
	if p := w.Promote(); !p.IsNil() {
		t.Error("Promote after the last release should return nil")
	}
}

func TestWeakRef_DoesNotKeepAlive(t *testing.T) {
	var finalized atomic.Int32
	o := newTrackedObject(1, &finalized)
	w1 := GetWeakRef(o)
	w2 := w1.Clone()

	Release(o)
	if finalized.Load() != 1 {
		t.Errorf("finalized = %d, want 1 with weak references alive", finalized.Load())
	}

	data := w1.Data()
	if data.RefCountValue() != 2 {
		t.Errorf("control block refs = %d, want 2", data.RefCountValue())
	}
	w1.Reset()
	w2.Reset()
	if data.RefCountValue() != 0 {
		t.Errorf("control block refs = %d, want 0", data.RefCountValue())
	}
}

func TestWeakRef_Refers(t *testing.T) {
	var finalized atomic.Int32
	a := newTrackedObject(1, &finalized)
	b := newTrackedObject(1, &finalized)
	w := GetWeakRef(a)
	defer w.Reset()

	if !w.Refers(a) {
		t.Error("Refers(a) = false, want true")
	}
	if w.Refers(b) {
		t.Error("Refers(b) = true, want false")
	}
	Release(a)
	if !w.Refers(a) {
		t.Error("Refers should keep working after the referent is gone")
	}
	Release(b)
}

func TestWeakRef_NoPromotionDuringFinalize(t *testing.T) {
	var promoted bool
	o := &selfObserver{}
	InitWeak(o)
	o.self = GetWeakRef(o)
	o.onFinalize = func() {
		p := o.self.Promote()
		promoted = !p.IsNil()
		o.self.Reset()
	}
	Release(o)
	if promoted {
		t.Error("Promote inside Finalize should fail")
	}
}

type selfObserver struct {
	WeakRefCounted
	self       WeakRef[*selfObserver]
	onFinalize func()
}

func (o *selfObserver) Finalize() { o.onFinalize() }

// node and leaf exercise Upcast across an interface boundary.
type node interface {
	WeakObject
	kind() string
}

type leaf struct {
	WeakRefCounted
}

func (*leaf) kind() string { return "leaf" }

func TestWeakRef_Upcast(t *testing.T) {
	l := &leaf{}
	InitWeak(l)
	wl := GetWeakRef(l)
	wn := Upcast(wl, func(l *leaf) node { return l })
	defer wl.Reset()
	defer wn.Reset()

	p := wn.Promote()
	if p.IsNil() {
		t.Fatal("Promote through upcast returned nil")
	}
	if p.Get().kind() != "leaf" {
		t.Errorf("kind() = %q, want leaf", p.Get().kind())
	}
	p.Reset()
	Release(l)
	if q := wn.Promote(); !q.IsNil() {
		t.Error("upcast reference should expire with the referent")
	}
}

func TestGetWeakRef_WithoutInitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("GetWeakRef without InitWeak should panic")
		}
	}()
	GetWeakRef(&leaf{})
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestConcurrentIncrementDecrement(t *testing.T) {
	runIncrementDecrement(t, 8, 1000)
}

func TestConcurrentDropAndPromote(t *testing.T) {
	runDropAndPromote(t, 500)
}

// runIncrementDecrement hammers one object from several goroutines and
// checks that it is destroyed exactly once, when the initial reference goes.
func runIncrementDecrement(t *testing.T, goroutines, iterations int) {
	t.Helper()

	var finalized atomic.Int32
	o := newTrackedObject(0, &finalized)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := range goroutines {
		go func() {
			defer wg.Done()
			for i := range iterations {
				if (i+g)%3 == 0 {
					if !o.TryReference() {
						t.Error("TryReference failed on a live object")
						return
					}
				} else {
					o.Reference()
				}
				Release(o)
			}
		}()
	}
	wg.Wait()

	if finalized.Load() != 0 {
		t.Fatalf("finalized = %d before the last release, want 0", finalized.Load())
	}
	if o.RefCountValue() != 1 {
		t.Fatalf("RefCountValue() = %d, want 1", o.RefCountValue())
	}
	Release(o)
	if finalized.Load() != 1 {
		t.Errorf("finalized = %d, want 1", finalized.Load())
	}
}

// runDropAndPromote races the last release against promotion and checks that
// promotion never returns an object whose destruction started.
func runDropAndPromote(t *testing.T, iterations int) {
	t.Helper()

	for i := range iterations {
		var finalized atomic.Int32
		o := newTrackedObject(i, &finalized)
		w := GetWeakRef(o)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			Release(o)
		}()
		go func() {
			defer wg.Done()
			<-start
			p := w.Promote()
			if p.IsNil() {
				return
			}
			if p.Get().destroyed.Load() {
				t.Errorf("iteration %d: promoted a destroyed object", i)
			}
			p.Reset()
		}()
		close(start)
		wg.Wait()

		if p := w.Promote(); !p.IsNil() {
			t.Fatalf("iteration %d: Promote succeeded after destruction", i)
		}
		if finalized.Load() != 1 {
			t.Fatalf("iteration %d: finalized = %d, want 1", i, finalized.Load())
		}
		w.Reset()
	}
}
