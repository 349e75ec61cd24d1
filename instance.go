package wgcore

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/ref"

	// The CPU timeline is always available as a fallback.
	_ "github.com/gogpu/wgcore/backend/null"
)

// Instance is the entry point of wgcore. It owns the event manager that
// tracks every future issued by its adapters and devices.
//
// Thread safety: Instance is safe for concurrent use.
type Instance struct {
	opts    instanceOptions
	events  *event.Manager
	backend backend.Backend

	mu      sync.Mutex
	devices []ref.WeakRef[*Device]

	released atomic.Bool
}

// NewInstance creates an instance on the configured backend.
func NewInstance(opts ...InstanceOption) (*Instance, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	events, err := event.NewManager(event.WithTimedWaitAny(o.timedWaitAny, o.timedWaitMaxCount))
	if err != nil {
		return nil, fmt.Errorf("wgcore: %w", err)
	}

	b := o.backend
	if b != nil {
		if err := b.Init(); err != nil {
			return nil, fmt.Errorf("wgcore: init backend %s: %w", b.Name(), err)
		}
	} else {
		b, err = backend.Open(o.backendName)
		if err != nil {
			return nil, fmt.Errorf("wgcore: %w", err)
		}
	}

	Logger().Info("wgcore: instance created",
		"backend", b.Name(),
		"timedWaitAny", o.timedWaitAny,
		"timedWaitMaxCount", events.TimedWaitAnyMaxCount())

	return &Instance{opts: o, events: events, backend: b}, nil
}

// BackendName returns the name of the backend devices are opened on.
func (i *Instance) BackendName() string { return i.backend.Name() }

// Events returns the instance's event manager.
func (i *Instance) Events() *event.Manager { return i.events }

// ProcessEvents ticks every live device and completes the events issued
// with CallbackModeAllowProcessEvents that are ready. It never blocks.
func (i *Instance) ProcessEvents() {
	i.tickDevices()
	i.events.ProcessPollEvents()
}

// WaitAny waits until at least one of the futures completes or the timeout
// expires. A non-zero timeout needs WithTimedWaitAny.
func (i *Instance) WaitAny(futures []FutureWaitInfo, timeout time.Duration) WaitStatus {
	i.tickDevices()
	return i.events.WaitAny(futures, timeout)
}

// RequestAdapter requests an adapter of the instance's backend. The result
// is known at once and is delivered through the normal callback path.
func (i *Instance) RequestAdapter(opts AdapterOptions, info RequestAdapterCallbackInfo) Future {
	status, message := RequestAdapterStatusSuccess, ""
	var adapter *Adapter
	switch {
	case i.released.Load():
		status, message = RequestAdapterStatusInstanceDropped, ErrInstanceReleased.Error()
	case opts.ForceFallbackAdapter && i.backend.Name() != backend.BackendNull:
		status, message = RequestAdapterStatusUnavailable, "no fallback adapter on backend "+i.backend.Name()
	default:
		adapter = &Adapter{instance: i}
	}

	cb := info.Callback
	return i.issueReady(info.Mode, func(c event.CompletionType) {
		if cb == nil {
			return
		}
		if c == event.CompletionShutdown {
			cb(RequestAdapterStatusInstanceDropped, nil, ErrInstanceReleased.Error())
			return
		}
		cb(status, adapter, message)
	})
}

// Release shuts the instance down. Pending futures complete with their
// instance-dropped status, live devices are lost and the backend is closed.
// Release is idempotent.
func (i *Instance) Release() {
	if !i.released.CompareAndSwap(false, true) {
		return
	}

	i.events.ShutDown()

	i.mu.Lock()
	weak := i.devices
	i.devices = nil
	i.mu.Unlock()

	for _, w := range weak {
		d := w.Promote()
		w.Reset()
		if d.IsNil() {
			continue
		}
		d.Get().lose(DeviceLostReasonInstanceDropped, "instance released")
		releaseDevice(&d)
	}

	i.backend.Close()
	Logger().Info("wgcore: instance released")
}

// addDevice registers d for ticking and for loss on release. It reports
// false once the instance is released.
func (i *Instance) addDevice(d *Device) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.released.Load() {
		return false
	}
	i.devices = append(i.devices, ref.GetWeakRef(d))
	return true
}

// liveDevices promotes every registered device and forgets the ones that
// are gone.
func (i *Instance) liveDevices() []ref.Ref[*Device] {
	i.mu.Lock()
	defer i.mu.Unlock()

	live := make([]ref.Ref[*Device], 0, len(i.devices))
	i.devices = slices.DeleteFunc(i.devices, func(w ref.WeakRef[*Device]) bool {
		d := w.Promote()
		if d.IsNil() {
			w.Reset()
			return true
		}
		live = append(live, d)
		return false
	})
	return live
}

func (i *Instance) tickDevices() {
	for _, d := range i.liveDevices() {
		if err := d.Get().Tick(); err != nil {
			Logger().Debug("wgcore: device tick", "device", d.Get().label, "err", err)
		}
		releaseDevice(&d)
	}
}

// issue wraps callback into an event on src and hands it to the event
// manager. Spontaneous events are completed inline when ready, otherwise
// parked on dev until one of its ticks sees them ready.
func (i *Instance) issue(mode CallbackMode, src event.Source, dev *Device, callback func(event.CompletionType)) Future {
	mustValidate(mode)
	ev := event.New(mode, src, callback)
	if mode != CallbackModeAllowSpontaneous {
		return i.events.Track(ev)
	}
	if ev.IsReady() {
		ev.CompleteIfSpontaneous()
		return event.NullFutureID
	}
	if dev == nil || !dev.addSpontaneous(ev) {
		ev.EnsureComplete(event.CompletionShutdown)
	}
	return event.NullFutureID
}

// issueReady issues an event whose outcome is already known, such as a
// validation error detected at call time.
func (i *Instance) issueReady(mode CallbackMode, callback func(event.CompletionType)) Future {
	mustValidate(mode)
	ev, err := event.NewReady(mode, callback)
	if err != nil {
		// Without an OS event the callback can only run inline.
		Logger().Warn("wgcore: early-ready event", "err", err)
		callback(event.CompletionReady)
		return event.NullFutureID
	}
	if mode == CallbackModeAllowSpontaneous {
		ev.CompleteIfSpontaneous()
		return event.NullFutureID
	}
	return i.events.Track(ev)
}

// mustValidate panics on a zero or combined callback mode.
func mustValidate(mode CallbackMode) {
	if err := mode.Validate(); err != nil {
		panic(fmt.Sprintf("wgcore: %v", err))
	}
}

// Adapter opens devices on the backend of its instance.
type Adapter struct {
	instance *Instance
}

// BackendName returns the name of the backend devices are opened on.
func (a *Adapter) BackendName() string { return a.instance.backend.Name() }

// RequestDevice opens a device. On success the callback receives a device
// carrying one reference, which the callee releases with Device.Release.
func (a *Adapter) RequestDevice(desc DeviceDescriptor, info RequestDeviceCallbackInfo) Future {
	i := a.instance
	status, message := RequestDeviceStatusSuccess, ""
	var dev *Device

	if i.released.Load() {
		status, message = RequestDeviceStatusInstanceDropped, ErrInstanceReleased.Error()
	} else if bd, err := i.backend.OpenDevice(); err != nil {
		status, message = RequestDeviceStatusError, err.Error()
	} else {
		dev = newDevice(i, bd, desc)
		if !i.addDevice(dev) {
			dev.Release()
			dev = nil
			status, message = RequestDeviceStatusInstanceDropped, ErrInstanceReleased.Error()
		}
	}

	cb := info.Callback
	return i.issueReady(info.Mode, func(c event.CompletionType) {
		if c == event.CompletionShutdown {
			if dev != nil {
				dev.Release()
			}
			if cb != nil {
				cb(RequestDeviceStatusInstanceDropped, nil, ErrInstanceReleased.Error())
			}
			return
		}
		if cb == nil {
			if dev != nil {
				dev.Release()
			}
			return
		}
		cb(status, dev, message)
	})
}
