package wgcore

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/cache"
	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/internal/parallel"
	"github.com/gogpu/wgcore/internal/shader"
	"github.com/gogpu/wgcore/ref"
)

// Device is an open GPU device. It deduplicates shader modules, bind group
// layouts and samplers by content and creates compute pipelines in the
// background.
//
// A Device is reference counted. Objects created from it hold a reference,
// so its resources are freed once Release was called and every child object
// is released too. Destroy loses the device immediately.
//
// Thread safety: Device is safe for concurrent use.
type Device struct {
	ref.WeakRefCounted

	instance *Instance
	backend  backend.Device
	label    string
	lost     func(DeviceLostReason, string)

	queue ref.Ref[*Queue]

	shaderModules    *cache.ContentLess[*ShaderModule]
	bindGroupLayouts *cache.ContentLess[*BindGroupLayout]
	samplers         *cache.ContentLess[*Sampler]

	compiler *shader.Compiler
	pool     *parallel.WorkerPool

	// mu serializes destruction. The final API release of the device runs
	// under it.
	mu        sync.Mutex
	destroyed atomic.Bool
	// Set by LockForDestroy. Finalize then leaves the lost completions in
	// finalLost for the unlock to run.
	destroyLocked bool
	finalLost     func()

	spMu        sync.Mutex
	spontaneous []*event.Event
}

func newDevice(i *Instance, bd backend.Device, desc DeviceDescriptor) *Device {
	d := &Device{
		instance:         i,
		backend:          bd,
		label:            desc.Label,
		lost:             desc.DeviceLost,
		shaderModules:    cache.NewContentLess("shader_module", hashShaderModule, equalShaderModule),
		bindGroupLayouts: cache.NewContentLess("bind_group_layout", hashBindGroupLayout, equalBindGroupLayout),
		samplers:         cache.NewContentLess("sampler", hashSampler, equalSampler),
		compiler:         shader.NewCompiler(i.opts.shaderCacheBudget),
		pool:             parallel.NewWorkerPool(i.opts.compileWorkers),
	}
	ref.InitWeak(d)
	d.queue = ref.AcquireRef(newQueue(d))

	info := bd.Info()
	Logger().Info("wgcore: device opened",
		"label", desc.Label,
		"adapter", info.Name,
		"backend", info.Backend,
		"type", info.DeviceType,
		"compileWorkers", d.pool.Workers())
	return d
}

// Label returns the device's debug label.
func (d *Device) Label() string { return d.label }

// AdapterInfo describes the adapter the device was opened on.
func (d *Device) AdapterInfo() backend.AdapterInfo { return d.backend.Info() }

// Queue returns the device's queue. The queue stays valid as long as the
// caller holds the device.
func (d *Device) Queue() *Queue { return d.queue.Get() }

// IsDestroyed reports whether the device was destroyed or lost.
func (d *Device) IsDestroyed() bool { return d.destroyed.Load() }

// Tick advances the backend timeline and completes spontaneous events that
// became ready.
func (d *Device) Tick() error {
	var err error
	if !d.destroyed.Load() {
		err = d.backend.Tick()
	}
	d.pollSpontaneous()
	return err
}

// Destroy loses the device. Pending work completes with a device-lost
// status and the DeviceLost callback runs once. Destroy is idempotent.
func (d *Device) Destroy() {
	d.lose(DeviceLostReasonDestroyed, "device destroyed")
}

// Release drops the caller's reference.
func (d *Device) Release() { ref.APIRelease(d) }

// LockForDestroy serializes the final release with a concurrent Destroy.
// The DeviceLost callback of the final release runs after d.mu is released.
func (d *Device) LockForDestroy() (unlock func()) {
	d.mu.Lock()
	d.destroyLocked = true
	return func() {
		finish := d.finalLost
		d.finalLost = nil
		d.destroyLocked = false
		d.mu.Unlock()
		if finish != nil {
			finish()
		}
	}
}

// Finalize runs once the last reference is gone. On the API release path
// d.mu is already held; releases by child objects take it here.
func (d *Device) Finalize() {
	if d.destroyLocked {
		d.finalLost = d.loseLocked(DeviceLostReasonDestroyed, "device released")
	} else {
		d.lose(DeviceLostReasonDestroyed, "device released")
	}
	d.pool.Close()
	d.queue.Reset()
	ref.Release(d.shaderModules)
	ref.Release(d.bindGroupLayouts)
	ref.Release(d.samplers)
}

func (d *Device) lose(reason DeviceLostReason, message string) {
	d.mu.Lock()
	finish := d.loseLocked(reason, message)
	d.mu.Unlock()
	if finish != nil {
		finish()
	}
}

// loseLocked destroys the backend device and returns the completions to run
// once d.mu is released, or nil when the device was already lost.
func (d *Device) loseLocked(reason DeviceLostReason, message string) (finish func()) {
	if !d.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	d.backend.Destroy()

	d.spMu.Lock()
	parked := d.spontaneous
	d.spontaneous = nil
	d.spMu.Unlock()

	completion := event.CompletionReady
	if reason == DeviceLostReasonInstanceDropped {
		completion = event.CompletionShutdown
	}
	Logger().Warn("wgcore: device lost", "label", d.label, "reason", reason.String(), "parked", len(parked))

	return func() {
		for _, ev := range parked {
			ev.EnsureComplete(completion)
		}
		if d.lost != nil {
			d.lost(reason, message)
		}
	}
}

// addSpontaneous parks a spontaneous event until a tick sees it ready. It
// reports false once the device is lost.
func (d *Device) addSpontaneous(ev *event.Event) bool {
	d.spMu.Lock()
	defer d.spMu.Unlock()
	if d.destroyed.Load() {
		return false
	}
	d.spontaneous = append(d.spontaneous, ev)
	return true
}

func (d *Device) pollSpontaneous() {
	d.spMu.Lock()
	parked := d.spontaneous
	d.spontaneous = nil
	d.spMu.Unlock()
	if len(parked) == 0 {
		return
	}

	var ready, waiting []*event.Event
	for _, ev := range parked {
		if ev.IsReady() {
			ready = append(ready, ev)
		} else {
			waiting = append(waiting, ev)
		}
	}

	if len(waiting) > 0 {
		d.spMu.Lock()
		if d.destroyed.Load() {
			// Lost while polling: loseLocked already took its snapshot.
			ready = append(ready, waiting...)
		} else {
			d.spontaneous = append(waiting, d.spontaneous...)
		}
		d.spMu.Unlock()
	}

	for _, ev := range ready {
		ev.CompleteIfSpontaneous()
	}
}

// PendingSpontaneous returns the number of spontaneous events waiting for
// a tick.
func (d *Device) PendingSpontaneous() int {
	d.spMu.Lock()
	defer d.spMu.Unlock()
	return len(d.spontaneous)
}

// owns reports whether dev refers to d.
func (d *Device) owns(dev ref.Ref[*Device]) bool {
	return !dev.IsNil() && dev.Get() == d
}

// releaseDevice drops a reference to a device through the API path, so the
// final release always runs under the device's destroy lock.
func releaseDevice(r *ref.Ref[*Device]) {
	if r.IsNil() {
		return
	}
	ref.APIRelease(r.Detach())
}
