package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgcore/internal/telemetry"
	"github.com/gogpu/wgcore/osevent"
)

// WaitDevice waits on events whose readiness is driven by a backend rather
// than by an OS receiver. Implementations must be comparable, typically a
// pointer, because WaitAny groups events by device.
type WaitDevice interface {
	// WaitAnyImpl waits up to timeout until at least one of the events is
	// ready, sets Ready on every ready entry and reports whether any was.
	WaitAnyImpl(futures []WaitInfo, timeout time.Duration) bool
}

// Source describes where an event's readiness comes from. Exactly one of
// Receiver and Device is set.
type Source struct {
	Receiver *osevent.Receiver
	Device   WaitDevice
	// Serial is the execution serial a Device source waits for.
	Serial uint64
}

// WaitInfo is one entry of a grouped wait.
type WaitInfo struct {
	ID    FutureID
	Event *Event
	// Index is the position of the future in the caller's WaitAny slice.
	Index int
	Ready bool
}

// FutureWaitInfo is one entry of a WaitAny call.
type FutureWaitInfo struct {
	Future    FutureID
	Completed bool
}

// Event is one pending asynchronous completion.
type Event struct {
	mode     CallbackMode
	source   Source
	callback func(CompletionType)

	completed atomic.Bool
	waiting   atomic.Bool

	// mu guards the receiver, which is closed once the event is completed
	// and no wait is using it.
	mu     sync.Mutex
	closed bool
}

// New creates an event. callback runs exactly once, with CompletionReady
// once source is ready or with CompletionShutdown on teardown.
func New(mode CallbackMode, source Source, callback func(CompletionType)) *Event {
	if (source.Receiver == nil) == (source.Device == nil) {
		panic("event: source needs exactly one of Receiver and Device")
	}
	return &Event{mode: mode, source: source, callback: callback}
}

// NewReady creates an event whose source is ready from the start. It backs
// failures detected synchronously at issue time, which still complete
// through the normal callback path.
func NewReady(mode CallbackMode, callback func(CompletionType)) (*Event, error) {
	r, err := osevent.NewSignaledReceiver()
	if err != nil {
		return nil, err
	}
	return New(mode, Source{Receiver: r}, callback), nil
}

// Mode returns the callback mode.
func (e *Event) Mode() CallbackMode { return e.mode }

// Receiver returns the OS receiver, or nil for device-driven events.
func (e *Event) Receiver() *osevent.Receiver { return e.source.Receiver }

// WaitDevice returns the device that drives the event, or nil when the OS
// receiver suffices.
func (e *Event) WaitDevice() WaitDevice { return e.source.Device }

// Serial returns the execution serial of a device-driven event.
func (e *Event) Serial() uint64 { return e.source.Serial }

// Completed reports whether the callback already ran.
func (e *Event) Completed() bool { return e.completed.Load() }

// IsReady polls the event's source without blocking. It may be called
// concurrently with completion.
func (e *Event) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return true
	}
	infos := []WaitInfo{{Event: e}}
	return waitGroup(infos, 0)
}

// EnsureComplete runs the callback unless it already ran, and reports
// whether this call ran it.
func (e *Event) EnsureComplete(t CompletionType) bool {
	if !e.completed.CompareAndSwap(false, true) {
		return false
	}
	e.callback(t)
	telemetry.EventCompleted(t.String())
	e.closeReceiverIfIdle()
	return true
}

// CompleteIfSpontaneous completes a spontaneous-mode event inline and
// reports whether it did.
func (e *Event) CompleteIfSpontaneous() bool {
	if e.mode != ModeAllowSpontaneous {
		return false
	}
	return e.EnsureComplete(CompletionReady)
}

// takeWaitRef marks the event as being waited on. Waiting on the same event
// from two places at once is a usage error.
func (e *Event) takeWaitRef() {
	if e.waiting.Swap(true) {
		panic("event: future is already being waited on")
	}
}

func (e *Event) releaseWaitRef() {
	e.waiting.Store(false)
	e.closeReceiverIfIdle()
}

func (e *Event) closeReceiverIfIdle() {
	if e.source.Receiver == nil || !e.completed.Load() || e.waiting.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		_ = e.source.Receiver.Close()
	}
}
