package wgcore

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/ref"
)

// Queue submits work to its device's timeline. Each submission gets the
// next serial, and work-done events wait for the newest serial submitted
// before they were created.
//
// The queue holds only a weak reference to its device, so a queue kept by
// the caller does not keep a released device alive.
type Queue struct {
	ref.RefCounted

	instance *Instance
	device   ref.WeakRef[*Device]

	mu            sync.Mutex
	lastSubmitted uint64
}

func newQueue(d *Device) *Queue {
	return &Queue{instance: d.instance, device: ref.GetWeakRef(d)}
}

// Finalize drops the weak device reference.
func (q *Queue) Finalize() { q.device.Reset() }

// Submit submits one batch of work and returns its serial.
func (q *Queue) Submit() (uint64, error) {
	dev := q.device.Promote()
	if dev.IsNil() {
		return 0, ErrDeviceLost
	}
	defer releaseDevice(&dev)
	d := dev.Get()
	if d.IsDestroyed() {
		return 0, ErrDeviceLost
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	serial := q.lastSubmitted + 1
	if err := d.backend.Submit(serial); err != nil {
		return 0, fmt.Errorf("wgcore: submit %d: %w", serial, err)
	}
	q.lastSubmitted = serial
	Logger().Debug("wgcore: queue submit", "device", d.label, "serial", serial)
	return serial, nil
}

// LastSubmittedSerial returns the serial of the newest submission.
func (q *Queue) LastSubmittedSerial() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSubmitted
}

// CompletedSerial returns the newest serial the device has retired, or 0
// once the device is gone.
func (q *Queue) CompletedSerial() uint64 {
	dev := q.device.Promote()
	if dev.IsNil() {
		return 0
	}
	defer releaseDevice(&dev)
	return dev.Get().backend.CompletedSerial()
}

// WorkDoneSource returns the event source that becomes ready once every
// submission made so far has completed.
func (q *Queue) WorkDoneSource() (event.Source, error) {
	dev := q.device.Promote()
	if dev.IsNil() {
		return event.Source{}, ErrDeviceLost
	}
	defer releaseDevice(&dev)
	return backend.CreateWorkDoneEvent(dev.Get().backend, q.LastSubmittedSerial())
}

// OnSubmittedWorkDone calls back once every submission made before the
// call has completed.
func (q *Queue) OnSubmittedWorkDone(info QueueWorkDoneCallbackInfo) Future {
	cb := info.Callback
	if cb == nil {
		cb = func(QueueWorkDoneStatus) {}
	}

	dev := q.device.Promote()
	if dev.IsNil() || dev.Get().IsDestroyed() {
		releaseDevice(&dev)
		return q.instance.issueReady(info.Mode, func(c event.CompletionType) {
			if c == event.CompletionShutdown {
				cb(QueueWorkDoneStatusInstanceDropped)
				return
			}
			cb(QueueWorkDoneStatusDeviceLost)
		})
	}
	defer releaseDevice(&dev)
	d := dev.Get()

	src, err := backend.CreateWorkDoneEvent(d.backend, q.LastSubmittedSerial())
	if err != nil {
		Logger().Warn("wgcore: work-done event", "device", d.label, "err", err)
		return q.instance.issueReady(info.Mode, func(c event.CompletionType) {
			if c == event.CompletionShutdown {
				cb(QueueWorkDoneStatusInstanceDropped)
				return
			}
			cb(QueueWorkDoneStatusError)
		})
	}

	return q.instance.issue(info.Mode, src, d, func(c event.CompletionType) {
		switch {
		case c == event.CompletionShutdown:
			cb(QueueWorkDoneStatusInstanceDropped)
		case d.IsDestroyed():
			cb(QueueWorkDoneStatusDeviceLost)
		default:
			cb(QueueWorkDoneStatusSuccess)
		}
	})
}
