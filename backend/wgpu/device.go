package wgpu

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/internal/logging"
	"github.com/gogpu/wgcore/internal/telemetry"
	"github.com/gogpu/wgcore/osevent"
)

// destroyTimeout bounds the wait for in-flight work when a device is
// destroyed.
const destroyTimeout = 5 * time.Second

// Device is a HAL device with a fence timeline. It is its own
// event.WaitDevice.
type Device struct {
	device hal.Device
	queue  hal.Queue
	fence  hal.Fence
	info   backend.AdapterInfo
	owned  bool
	poller gpucontext.Device

	// submitMu serializes queue submissions so fence values stay ordered.
	submitMu  sync.Mutex
	submitted atomic.Uint64
	completed atomic.Uint64
	destroyed atomic.Bool
}

func newDevice(device hal.Device, queue hal.Queue, info backend.AdapterInfo, owned bool) (*Device, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	return &Device{device: device, queue: queue, fence: fence, info: info, owned: owned}, nil
}

// NewDevice wraps an already opened HAL device and queue. The device is
// destroyed together with the returned Device.
func NewDevice(device hal.Device, queue hal.Queue) (*Device, error) {
	return newDevice(device, queue, backend.AdapterInfo{Backend: backend.BackendWGPU}, true)
}

// Info describes the adapter.
func (d *Device) Info() backend.AdapterInfo { return d.info }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.device }

// Submit signals the fence with serial once all previously submitted work
// has finished.
func (d *Device) Submit(serial uint64) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if d.destroyed.Load() {
		return backend.ErrDeviceDestroyed
	}
	if prev := d.submitted.Load(); serial <= prev {
		return fmt.Errorf("%w: %d after %d", backend.ErrSerialOrder, serial, prev)
	}
	if err := d.queue.Submit(nil, d.fence, serial); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	d.submitted.Store(serial)
	return nil
}

// CompletedSerial returns the newest serial known to have completed. Tick
// refreshes it.
func (d *Device) CompletedSerial() uint64 { return d.completed.Load() }

// Tick polls the shared device, if any, and refreshes the completed serial
// without blocking.
func (d *Device) Tick() error {
	if d.destroyed.Load() {
		return backend.ErrDeviceDestroyed
	}
	if d.poller != nil {
		d.poller.Poll(false)
	}
	target := d.submitted.Load()
	if d.waitSerial(target, 0) {
		return nil
	}
	for s := d.completed.Load() + 1; s < target; s++ {
		if !d.waitSerial(s, 0) {
			break
		}
	}
	return nil
}

// WaitDevice returns d.
func (d *Device) WaitDevice() event.WaitDevice { return d }

// InsertWorkDoneEvent is not supported: work-done events wait on the fence
// through WaitAnyImpl.
func (d *Device) InsertWorkDoneEvent(uint64) (*osevent.Receiver, error) {
	return nil, ErrWaitDeviceOnly
}

// WaitAnyImpl waits for the smallest pending serial with timeout, then
// polls the remaining serials without blocking. A serial that was never
// submitted cannot complete and is not waited on.
func (d *Device) WaitAnyImpl(futures []event.WaitInfo, timeout time.Duration) bool {
	if d.destroyed.Load() {
		for i := range futures {
			futures[i].Ready = true
		}
		return len(futures) > 0
	}

	pending := make([]int, 0, len(futures))
	done := false
	for i := range futures {
		if futures[i].Event.Serial() <= d.completed.Load() {
			futures[i].Ready = true
			done = true
		} else {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return done
	}
	slices.SortStableFunc(pending, func(a, b int) int {
		return cmp.Compare(futures[a].Event.Serial(), futures[b].Event.Serial())
	})
	if done {
		timeout = 0
	}

	first := futures[pending[0]].Event.Serial()
	if !d.waitSerial(first, timeout) {
		return done
	}
	for _, i := range pending {
		if !d.waitSerial(futures[i].Event.Serial(), 0) {
			break
		}
		futures[i].Ready = true
	}
	return true
}

// waitSerial reports whether serial has completed, waiting up to timeout.
func (d *Device) waitSerial(serial uint64, timeout time.Duration) bool {
	if serial <= d.completed.Load() {
		return true
	}
	if serial > d.submitted.Load() || d.destroyed.Load() {
		return false
	}
	ok, err := d.device.Wait(d.fence, serial, timeout)
	if err != nil {
		logging.Logger().Warn("wgpu: fence wait failed", "serial", serial, "err", err)
		return false
	}
	if ok {
		d.advance(serial)
	}
	return ok
}

func (d *Device) advance(serial uint64) {
	for {
		cur := d.completed.Load()
		if serial <= cur {
			return
		}
		if d.completed.CompareAndSwap(cur, serial) {
			telemetry.CompletedSerial(backend.BackendWGPU, serial)
			return
		}
	}
}

// Resource wraps one HAL object.
type Resource struct {
	owner    *Device
	label    string
	shader   hal.ShaderModule
	bgl      hal.BindGroupLayout
	sampler  hal.Sampler
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// Label returns the resource label.
func (r *Resource) Label() string { return r.label }

func (d *Device) resource(r backend.Resource) (*Resource, error) {
	hr, ok := r.(*Resource)
	if !ok || hr.owner != d {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResource, r)
	}
	return hr, nil
}

// CreateShaderModule creates a shader module from SPIR-V.
func (d *Device) CreateShaderModule(label string, spirv []uint32) (backend.Resource, error) {
	if d.destroyed.Load() {
		return nil, backend.ErrDeviceDestroyed
	}
	m, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader module %q: %w", label, err)
	}
	return &Resource{owner: d, label: label, shader: m}, nil
}

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(label string, entries []gputypes.BindGroupLayoutEntry) (backend.Resource, error) {
	if d.destroyed.Load() {
		return nil, backend.ErrDeviceDestroyed
	}
	l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group layout %q: %w", label, err)
	}
	return &Resource{owner: d, label: label, bgl: l}, nil
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc backend.SamplerDesc) (backend.Resource, error) {
	if d.destroyed.Load() {
		return nil, backend.ErrDeviceDestroyed
	}
	s, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler %q: %w", desc.Label, err)
	}
	return &Resource{owner: d, label: desc.Label, sampler: s}, nil
}

// CreateComputePipeline creates a pipeline layout from desc.Layouts and a
// compute pipeline on top of it.
func (d *Device) CreateComputePipeline(desc backend.ComputePipelineDesc) (backend.Resource, error) {
	if d.destroyed.Load() {
		return nil, backend.ErrDeviceDestroyed
	}
	module, err := d.resource(desc.Module)
	if err != nil || module.shader == nil {
		return nil, fmt.Errorf("%w: module of %q", ErrInvalidResource, desc.Label)
	}
	bgls := make([]hal.BindGroupLayout, 0, len(desc.Layouts))
	for _, l := range desc.Layouts {
		r, err := d.resource(l)
		if err != nil || r.bgl == nil {
			return nil, fmt.Errorf("%w: layout of %q", ErrInvalidResource, desc.Label)
		}
		bgls = append(bgls, r.bgl)
	}

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: bgls,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout %q: %w", desc.Label, err)
	}
	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module.shader,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("wgpu: create compute pipeline %q: %w", desc.Label, err)
	}
	return &Resource{owner: d, label: desc.Label, layout: layout, pipeline: pipeline}, nil
}

// DestroyResource destroys the HAL objects behind r.
func (d *Device) DestroyResource(r backend.Resource) {
	hr, err := d.resource(r)
	if err != nil || d.destroyed.Load() {
		return
	}
	if hr.pipeline != nil {
		d.device.DestroyComputePipeline(hr.pipeline)
		hr.pipeline = nil
	}
	if hr.layout != nil {
		d.device.DestroyPipelineLayout(hr.layout)
		hr.layout = nil
	}
	if hr.sampler != nil {
		d.device.DestroySampler(hr.sampler)
		hr.sampler = nil
	}
	if hr.bgl != nil {
		d.device.DestroyBindGroupLayout(hr.bgl)
		hr.bgl = nil
	}
	if hr.shader != nil {
		d.device.DestroyShaderModule(hr.shader)
		hr.shader = nil
	}
}

// Destroy waits briefly for in-flight work, then releases the fence and,
// for owned devices, the HAL device. Events still waiting on the device
// become ready.
func (d *Device) Destroy() {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if d.destroyed.Load() {
		return
	}
	last := d.submitted.Load()
	if last > d.completed.Load() {
		if ok, err := d.device.Wait(d.fence, last, destroyTimeout); err != nil || !ok {
			logging.Logger().Warn("wgpu: in-flight work did not finish before destroy",
				"serial", last, "err", err)
		}
	}
	d.destroyed.Store(true)
	d.advance(last)
	d.device.DestroyFence(d.fence)
	if d.owned {
		d.device.Destroy()
	}
}

var (
	_ backend.Device   = (*Device)(nil)
	_ event.WaitDevice = (*Device)(nil)
)
