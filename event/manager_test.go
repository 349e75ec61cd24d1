package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/wgcore/osevent"
)

// recorder counts callback invocations per completion type.
type recorder struct {
	ready    atomic.Int32
	shutdown atomic.Int32
}

func (r *recorder) callback(t CompletionType) {
	if t == CompletionShutdown {
		r.shutdown.Add(1)
		return
	}
	r.ready.Add(1)
}

func (r *recorder) total() int32 { return r.ready.Load() + r.shutdown.Load() }

// newPipeEvent returns an event backed by a fresh pipe.
func newPipeEvent(t *testing.T, mode CallbackMode, rec *recorder) (*Event, *osevent.Pipe) {
	t.Helper()
	p, err := osevent.NewPipe()
	if err != nil {
		t.Fatalf("NewPipe() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return New(mode, Source{Receiver: p.TakeReceiver()}, rec.callback), p
}

// fakeDevice drives events by serial.
type fakeDevice struct {
	mu    sync.Mutex
	done  map[uint64]bool
	calls int
}

func newFakeDevice() *fakeDevice { return &fakeDevice{done: make(map[uint64]bool)} }

func (d *fakeDevice) complete(serial uint64) {
	d.mu.Lock()
	d.done[serial] = true
	d.mu.Unlock()
}

func (d *fakeDevice) WaitAnyImpl(futures []WaitInfo, _ time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	found := false
	for i := range futures {
		if d.done[futures[i].Event.Serial()] {
			futures[i].Ready = true
			found = true
		}
	}
	return found
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(opts...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s should panic", name)
		}
	}()
	fn()
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewManager_MaxCount(t *testing.T) {
	if _, err := NewManager(WithTimedWaitAny(true, TimedWaitAnyMaxCountDefault+1)); !errors.Is(err, ErrTimedWaitMaxCount) {
		t.Errorf("NewManager(max+1) error = %v, want ErrTimedWaitMaxCount", err)
	}

	m := newManager(t, WithTimedWaitAny(true, 0))
	if m.TimedWaitAnyMaxCount() != TimedWaitAnyMaxCountDefault {
		t.Errorf("TimedWaitAnyMaxCount() = %d, want %d", m.TimedWaitAnyMaxCount(), TimedWaitAnyMaxCountDefault)
	}
	if !m.TimedWaitAnyEnabled() {
		t.Error("TimedWaitAnyEnabled() = false, want true")
	}
}

func TestCallbackMode_Validate(t *testing.T) {
	tests := []struct {
		mode  CallbackMode
		valid bool
	}{
		{ModeWaitAnyOnly, true},
		{ModeAllowProcessEvents, true},
		{ModeAllowSpontaneous, true},
		{0, false},
		{ModeWaitAnyOnly | ModeAllowProcessEvents, false},
	}
	for _, tt := range tests {
		err := tt.mode.Validate()
		if (err == nil) != tt.valid {
			t.Errorf("%v.Validate() error = %v, want valid=%v", tt.mode, err, tt.valid)
		}
	}
}

// =============================================================================
// Track Tests
// =============================================================================

func TestTrack_FutureIDs(t *testing.T) {
	m := newManager(t)
	var rec recorder

	a, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	b, _ := newPipeEvent(t, ModeAllowProcessEvents, &rec)
	c, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	s, _ := newPipeEvent(t, ModeAllowSpontaneous, &rec)

	if id := m.Track(a); id != 1 {
		t.Errorf("first future ID = %d, want 1", id)
	}
	if id := m.Track(b); id != NullFutureID {
		t.Errorf("poll event ID = %d, want 0", id)
	}
	if id := m.Track(c); id != 3 {
		t.Errorf("third tracked ID = %d, want 3", id)
	}
	if id := m.Track(s); id != NullFutureID {
		t.Errorf("spontaneous event ID = %d, want 0", id)
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
	m.ShutDown()
}

// =============================================================================
// WaitAny Tests
// =============================================================================

func TestWaitAny_Empty(t *testing.T) {
	m := newManager(t)
	if s := m.WaitAny(nil, time.Second); s != WaitStatusSuccess {
		t.Errorf("WaitAny(nil) = %v, want Success", s)
	}
}

func TestWaitAny_SignaledAndUnsignaled(t *testing.T) {
	m := newManager(t)
	var recA, recB recorder

	a, pa := newPipeEvent(t, ModeWaitAnyOnly, &recA)
	b, _ := newPipeEvent(t, ModeWaitAnyOnly, &recB)
	if err := pa.Signal(); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	idA, idB := m.Track(a), m.Track(b)

	infos := []FutureWaitInfo{{Future: idA}, {Future: idB}}
	if s := m.WaitAny(infos, 0); s != WaitStatusSuccess {
		t.Fatalf("WaitAny([A, B], 0) = %v, want Success", s)
	}
	if !infos[0].Completed || infos[1].Completed {
		t.Errorf("completed = [%v %v], want [true false]", infos[0].Completed, infos[1].Completed)
	}
	if recA.ready.Load() != 1 || recB.total() != 0 {
		t.Errorf("callbacks = (%d, %d), want (1, 0)", recA.ready.Load(), recB.total())
	}

	onlyB := []FutureWaitInfo{{Future: idB}}
	if s := m.WaitAny(onlyB, 0); s != WaitStatusTimedOut {
		t.Errorf("WaitAny([B], 0) = %v, want TimedOut", s)
	}
	if onlyB[0].Completed {
		t.Error("B should not be completed")
	}
	m.ShutDown()
	if recB.shutdown.Load() != 1 {
		t.Errorf("B shutdown callbacks = %d, want 1", recB.shutdown.Load())
	}
}

func TestWaitAny_ReusedSliceClearsCompleted(t *testing.T) {
	m := newManager(t)
	var rec recorder
	b, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)

	// Completed left over from an earlier call must not survive.
	infos := []FutureWaitInfo{{Future: m.Track(b), Completed: true}}
	if s := m.WaitAny(infos, 0); s != WaitStatusTimedOut {
		t.Fatalf("WaitAny([B], 0) = %v, want TimedOut", s)
	}
	if infos[0].Completed {
		t.Error("Completed = true for a pending future, want false")
	}
	if rec.total() != 0 {
		t.Errorf("callbacks = %d, want 0", rec.total())
	}
}

func TestWaitAny_AlreadyCompletedElsewhere(t *testing.T) {
	m := newManager(t)
	var rec recorder
	a, pa := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	b, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	_ = pa.Signal()
	idA, idB := m.Track(a), m.Track(b)

	if s := m.WaitAny([]FutureWaitInfo{{Future: idA}}, 0); s != WaitStatusSuccess {
		t.Fatalf("WaitAny([A]) = %v, want Success", s)
	}

	// A is no longer tracked, so it is reported without waiting on B, even
	// with a timeout that is not enabled.
	infos := []FutureWaitInfo{{Future: idA}, {Future: idB}}
	if s := m.WaitAny(infos, time.Hour); s != WaitStatusSuccess {
		t.Fatalf("WaitAny([A, B]) = %v, want Success", s)
	}
	if !infos[0].Completed || infos[1].Completed {
		t.Errorf("completed = [%v %v], want [true false]", infos[0].Completed, infos[1].Completed)
	}
	if rec.ready.Load() != 1 {
		t.Errorf("ready callbacks = %d, want 1", rec.ready.Load())
	}
	m.ShutDown()
}

func TestWaitAny_UnissuedFuturePanics(t *testing.T) {
	m := newManager(t)
	expectPanic(t, "WaitAny on ID 0", func() {
		m.WaitAny([]FutureWaitInfo{{Future: 0}}, 0)
	})
	expectPanic(t, "WaitAny on a future ID", func() {
		m.WaitAny([]FutureWaitInfo{{Future: 99}}, 0)
	})
}

func TestWaitAny_DoubleWaitPanics(t *testing.T) {
	m := newManager(t)
	var rec recorder
	a, pa := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	id := m.Track(a)

	expectPanic(t, "waiting twice on one future", func() {
		m.WaitAny([]FutureWaitInfo{{Future: id}, {Future: id}}, 0)
	})

	// The wait reference taken before the panic must have been released.
	_ = pa.Signal()
	if s := m.WaitAny([]FutureWaitInfo{{Future: id}}, 0); s != WaitStatusSuccess {
		t.Errorf("WaitAny after recovered panic = %v, want Success", s)
	}
}

func TestWaitAny_UnsupportedTimeout(t *testing.T) {
	m := newManager(t)
	var rec recorder
	a, pa := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	_ = pa.Signal()
	id := m.Track(a)

	infos := []FutureWaitInfo{{Future: id}}
	if s := m.WaitAny(infos, time.Millisecond); s != WaitStatusUnsupportedTimeout {
		t.Errorf("WaitAny with timeout = %v, want UnsupportedTimeout", s)
	}
	if infos[0].Completed || rec.total() != 0 {
		t.Error("rejected WaitAny must not complete anything")
	}
	m.ShutDown()
}

func TestWaitAny_UnsupportedCount(t *testing.T) {
	m := newManager(t, WithTimedWaitAny(true, 1))
	var rec recorder
	a, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	b, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	infos := []FutureWaitInfo{{Future: m.Track(a)}, {Future: m.Track(b)}}

	if s := m.WaitAny(infos, time.Millisecond); s != WaitStatusUnsupportedCount {
		t.Errorf("WaitAny over the max count = %v, want UnsupportedCount", s)
	}
	m.ShutDown()
}

func TestWaitAny_MixedSources(t *testing.T) {
	m := newManager(t, WithTimedWaitAny(true, 0))
	var rec recorder
	d1, d2 := newFakeDevice(), newFakeDevice()
	d1.complete(1)
	d2.complete(1)

	a := New(ModeWaitAnyOnly, Source{Device: d1, Serial: 1}, rec.callback)
	b := New(ModeWaitAnyOnly, Source{Device: d2, Serial: 1}, rec.callback)
	infos := []FutureWaitInfo{{Future: m.Track(a)}, {Future: m.Track(b)}}

	start := time.Now()
	if s := m.WaitAny(infos, time.Hour); s != WaitStatusUnsupportedMixedSources {
		t.Fatalf("WaitAny across devices = %v, want UnsupportedMixedSources", s)
	}
	if time.Since(start) > time.Second {
		t.Error("mixed-source rejection should not block")
	}
	if infos[0].Completed || infos[1].Completed || rec.total() != 0 {
		t.Error("mixed-source rejection must not complete anything")
	}
	if d1.calls != 0 || d2.calls != 0 {
		t.Error("mixed-source rejection must not wait on any device")
	}

	// A zero timeout polls each device separately.
	if s := m.WaitAny(infos, 0); s != WaitStatusSuccess {
		t.Fatalf("WaitAny across devices with zero timeout = %v, want Success", s)
	}
	if !infos[0].Completed || !infos[1].Completed {
		t.Errorf("completed = [%v %v], want both", infos[0].Completed, infos[1].Completed)
	}
}

func TestWaitAny_DeviceAndReceiverGroups(t *testing.T) {
	m := newManager(t)
	var rec recorder
	dev := newFakeDevice()

	a := New(ModeWaitAnyOnly, Source{Device: dev, Serial: 5}, rec.callback)
	b, pb := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	c := New(ModeWaitAnyOnly, Source{Device: dev, Serial: 6}, rec.callback)
	infos := []FutureWaitInfo{{Future: m.Track(a)}, {Future: m.Track(b)}, {Future: m.Track(c)}}

	dev.complete(6)
	_ = pb.Signal()
	if s := m.WaitAny(infos, 0); s != WaitStatusSuccess {
		t.Fatalf("WaitAny = %v, want Success", s)
	}
	want := []bool{false, true, true}
	for i := range want {
		if infos[i].Completed != want[i] {
			t.Errorf("infos[%d].Completed = %v, want %v", i, infos[i].Completed, want[i])
		}
	}
	if dev.calls != 1 {
		t.Errorf("device waited %d times, want once for its group", dev.calls)
	}
	m.ShutDown()
}

func TestWaitAny_TimedWaitWakes(t *testing.T) {
	m := newManager(t, WithTimedWaitAny(true, 0))
	var rec recorder
	a, pa := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	infos := []FutureWaitInfo{{Future: m.Track(a)}}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = pa.Signal()
	}()
	if s := m.WaitAny(infos, 5*time.Second); s != WaitStatusSuccess {
		t.Fatalf("timed WaitAny = %v, want Success", s)
	}
	if !infos[0].Completed {
		t.Error("future should be completed")
	}
}

func TestWaitAny_TimeoutKeepsFutureWaitable(t *testing.T) {
	m := newManager(t, WithTimedWaitAny(true, 0))
	var rec recorder
	a, pa := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	infos := []FutureWaitInfo{{Future: m.Track(a)}}

	if s := m.WaitAny(infos, 5*time.Millisecond); s != WaitStatusTimedOut {
		t.Fatalf("WaitAny = %v, want TimedOut", s)
	}
	_ = pa.Signal()
	if s := m.WaitAny(infos, osevent.Infinite); s != WaitStatusSuccess {
		t.Fatalf("WaitAny after signal = %v, want Success", s)
	}
	if rec.ready.Load() != 1 {
		t.Errorf("ready callbacks = %d, want 1", rec.ready.Load())
	}
}

// =============================================================================
// ProcessPollEvents Tests
// =============================================================================

func TestProcessPollEvents(t *testing.T) {
	m := newManager(t)
	var recA, recB recorder
	a, pa := newPipeEvent(t, ModeAllowProcessEvents, &recA)
	b, _ := newPipeEvent(t, ModeAllowProcessEvents, &recB)
	m.Track(a)
	m.Track(b)

	m.ProcessPollEvents()
	if recA.total() != 0 || recB.total() != 0 {
		t.Fatal("nothing is ready yet")
	}

	_ = pa.Signal()
	m.ProcessPollEvents()
	if recA.ready.Load() != 1 || recB.total() != 0 {
		t.Errorf("callbacks = (%d, %d), want (1, 0)", recA.ready.Load(), recB.total())
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	m.ProcessPollEvents()
	if recA.ready.Load() != 1 {
		t.Errorf("ready callbacks = %d after a second poll, want 1", recA.ready.Load())
	}
	m.ShutDown()
}

func TestProcessPollEvents_Reentrant(t *testing.T) {
	m := newManager(t)
	var inner recorder

	r, err := osevent.NewSignaledReceiver()
	if err != nil {
		t.Fatalf("NewSignaledReceiver() error = %v", err)
	}
	var outerCalls atomic.Int32
	outer := New(ModeAllowProcessEvents, Source{Receiver: r}, func(CompletionType) {
		outerCalls.Add(1)
		ev, err := NewReady(ModeAllowProcessEvents, inner.callback)
		if err != nil {
			t.Errorf("NewReady() error = %v", err)
			return
		}
		m.Track(ev)
		m.ProcessPollEvents()
	})
	m.Track(outer)

	done := make(chan struct{})
	go func() {
		m.ProcessPollEvents()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reentrant ProcessPollEvents deadlocked")
	}
	if outerCalls.Load() != 1 || inner.ready.Load() != 1 {
		t.Errorf("callbacks = (%d, %d), want (1, 1)", outerCalls.Load(), inner.ready.Load())
	}
}

// =============================================================================
// Spontaneous and Shutdown Tests
// =============================================================================

func TestCompleteIfSpontaneous(t *testing.T) {
	var rec recorder
	s, ps := newPipeEvent(t, ModeAllowSpontaneous, &rec)
	f, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)

	if f.CompleteIfSpontaneous() {
		t.Error("future-mode events must not complete spontaneously")
	}
	if s.IsReady() {
		t.Error("IsReady() = true before signal")
	}
	_ = ps.Signal()
	if !s.IsReady() {
		t.Error("IsReady() = false after signal")
	}
	if !s.CompleteIfSpontaneous() {
		t.Error("CompleteIfSpontaneous should complete a ready spontaneous event")
	}
	if s.CompleteIfSpontaneous() {
		t.Error("second completion should be a no-op")
	}
	if rec.ready.Load() != 1 {
		t.Errorf("ready callbacks = %d, want 1", rec.ready.Load())
	}
}

func TestShutDown(t *testing.T) {
	m := newManager(t)
	var rec recorder
	a, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	b, _ := newPipeEvent(t, ModeAllowProcessEvents, &rec)
	m.Track(a)
	m.Track(b)

	m.ShutDown()
	if rec.shutdown.Load() != 2 {
		t.Errorf("shutdown callbacks = %d, want 2", rec.shutdown.Load())
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}

	late, _ := newPipeEvent(t, ModeWaitAnyOnly, &rec)
	id := m.Track(late)
	if rec.shutdown.Load() != 3 {
		t.Errorf("event tracked after shutdown should complete at once")
	}
	if id == NullFutureID {
		t.Errorf("Track() of a future after shutdown = %d, want a fresh id", id)
	}
	latePoll, _ := newPipeEvent(t, ModeAllowProcessEvents, &rec)
	if got := m.Track(latePoll); got != NullFutureID {
		t.Errorf("Track() of a poll event after shutdown = %d, want %d", got, NullFutureID)
	}
	infos := []FutureWaitInfo{{Future: id}}
	if s := m.WaitAny(infos, 0); s != WaitStatusSuccess || !infos[0].Completed {
		t.Errorf("WaitAny after shutdown = %v completed=%v, want Success true", s, infos[0].Completed)
	}

	m.ShutDown()
	if rec.total() != 4 {
		t.Errorf("total callbacks = %d, want 4", rec.total())
	}
}

func TestEnsureComplete_Once(t *testing.T) {
	var rec recorder
	ev, err := NewReady(ModeWaitAnyOnly, rec.callback)
	if err != nil {
		t.Fatalf("NewReady() error = %v", err)
	}
	if !ev.EnsureComplete(CompletionReady) {
		t.Error("first EnsureComplete should run the callback")
	}
	if ev.EnsureComplete(CompletionShutdown) {
		t.Error("second EnsureComplete should be a no-op")
	}
	if rec.ready.Load() != 1 || rec.shutdown.Load() != 0 {
		t.Errorf("callbacks = (%d, %d), want (1, 0)", rec.ready.Load(), rec.shutdown.Load())
	}
	if ev.Receiver().Valid() {
		t.Error("receiver should be closed after completion")
	}
}

func TestNew_InvalidSourcePanics(t *testing.T) {
	expectPanic(t, "New without a source", func() {
		New(ModeWaitAnyOnly, Source{}, func(CompletionType) {})
	})
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestExactlyOnceCompletion(t *testing.T) {
	runExactlyOnce(t, 200)
}

// runExactlyOnce resolves n events of mixed modes from racing goroutines and
// checks that every callback ran exactly once.
func runExactlyOnce(t *testing.T, n int) {
	t.Helper()
	m := newManager(t, WithTimedWaitAny(true, 0))

	modes := []CallbackMode{ModeWaitAnyOnly, ModeAllowProcessEvents, ModeAllowSpontaneous}
	recs := make([]recorder, n)
	events := make([]*Event, n)
	pipes := make([]*osevent.Pipe, n)
	ids := make([]FutureID, n)
	for i := range n {
		events[i], pipes[i] = newPipeEvent(t, modes[i%len(modes)], &recs[i])
		ids[i] = m.Track(events[i])
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Signalers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, p := range pipes {
			_ = p.Signal()
		}
	}()

	// Pollers.
	var pollers sync.WaitGroup
	for range 2 {
		pollers.Add(1)
		go func() {
			defer pollers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.ProcessPollEvents()
				}
			}
		}()
	}

	// Spontaneous completers race each other.
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, ev := range events {
				if ev.Mode() != ModeAllowSpontaneous {
					continue
				}
				for !recs[i].completedOnce() {
					if ev.IsReady() {
						ev.CompleteIfSpontaneous()
					}
				}
			}
		}()
	}

	// One waiter per future.
	for i, id := range ids {
		if id == NullFutureID {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			infos := []FutureWaitInfo{{Future: id}}
			if s := m.WaitAny(infos, 10*time.Second); s != WaitStatusSuccess || !infos[0].Completed {
				t.Errorf("WaitAny(future %d) = %v completed=%v", i, s, infos[0].Completed)
			}
		}()
	}

	wg.Wait()
	for m.Len() > 0 {
		m.ProcessPollEvents()
	}
	close(stop)
	pollers.Wait()

	var total int32
	for i := range recs {
		if got := recs[i].total(); got != 1 {
			t.Errorf("event %d completed %d times, want 1", i, got)
		}
		total += recs[i].total()
	}
	if int(total) != n {
		t.Errorf("total completions = %d, want %d", total, n)
	}
}

func (r *recorder) completedOnce() bool { return r.total() > 0 }
