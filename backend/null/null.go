// Package null provides a backend with a CPU-side execution timeline.
//
// Submitted serials retire on Tick, or only through CompleteUpTo when the
// device runs in manual mode. Work-done events are OS pipes signaled in
// serial order, so the null device needs no wait device of its own.
//
// The backend registers itself on import:
//
//	import _ "github.com/gogpu/wgcore/backend/null"
package null

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/internal/logging"
	"github.com/gogpu/wgcore/internal/telemetry"
	"github.com/gogpu/wgcore/osevent"
)

// Errors returned by null device resource creation.
var (
	ErrEmptyShader     = errors.New("null: shader module has no code")
	ErrInvalidResource = errors.New("null: resource does not belong to this device")
)

func init() {
	backend.Register(backend.BackendNull, func() backend.Backend { return New() })
}

// Option configures a null backend.
type Option func(*Backend)

// WithManualCompletion makes opened devices retire serials only through
// CompleteUpTo.
func WithManualCompletion() Option {
	return func(b *Backend) { b.manual = true }
}

// Backend opens null devices.
type Backend struct {
	manual      bool
	initialized bool
}

// New creates a null backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "null".
func (b *Backend) Name() string { return backend.BackendNull }

// Init marks the backend ready. It never fails.
func (b *Backend) Init() error {
	b.initialized = true
	return nil
}

// Close marks the backend unusable.
func (b *Backend) Close() { b.initialized = false }

// OpenDevice opens a new null device.
func (b *Backend) OpenDevice() (backend.Device, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return NewDevice(b.manual), nil
}

type workDone struct {
	serial uint64
	pipe   *osevent.Pipe
}

// Device is a null device. All methods are safe for concurrent use.
type Device struct {
	manual bool

	mu        sync.Mutex
	submitted uint64
	completed uint64
	pending   []workDone // sorted by serial
	destroyed bool
}

// NewDevice creates a null device directly, bypassing the registry.
func NewDevice(manual bool) *Device {
	return &Device{manual: manual}
}

// Info describes the null adapter.
func (d *Device) Info() backend.AdapterInfo {
	return backend.AdapterInfo{
		Name:       "null",
		Backend:    backend.BackendNull,
		DeviceType: gputypes.DeviceTypeCPU,
	}
}

// Submit records serial as submitted.
func (d *Device) Submit(serial uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return backend.ErrDeviceDestroyed
	}
	if serial <= d.submitted {
		return fmt.Errorf("%w: %d after %d", backend.ErrSerialOrder, serial, d.submitted)
	}
	d.submitted = serial
	return nil
}

// SubmittedSerial returns the newest submitted serial.
func (d *Device) SubmittedSerial() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

// CompletedSerial returns the newest retired serial.
func (d *Device) CompletedSerial() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed
}

// Tick retires every submitted serial unless the device is in manual mode.
func (d *Device) Tick() error {
	if d.manual {
		return nil
	}
	d.mu.Lock()
	target := d.submitted
	d.mu.Unlock()
	return d.CompleteUpTo(target)
}

// CompleteUpTo retires serials up to serial, capped at the newest submitted
// one, and signals their work-done receivers in order.
func (d *Device) CompleteUpTo(serial uint64) error {
	d.mu.Lock()
	serial = min(serial, d.submitted)
	if serial <= d.completed {
		d.mu.Unlock()
		return nil
	}
	d.completed = serial
	n := 0
	for n < len(d.pending) && d.pending[n].serial <= serial {
		n++
	}
	retired := slices.Clone(d.pending[:n])
	d.pending = slices.Delete(d.pending, 0, n)
	d.mu.Unlock()

	telemetry.CompletedSerial(backend.BackendNull, serial)
	logging.Logger().Debug("null: serials completed", "serial", serial, "signaled", len(retired))
	return signalAll(retired)
}

// WaitDevice returns nil: null events are resolved through OS receivers.
func (d *Device) WaitDevice() event.WaitDevice { return nil }

// InsertWorkDoneEvent returns a receiver that becomes ready when serial
// completes.
func (d *Device) InsertWorkDoneEvent(serial uint64) (*osevent.Receiver, error) {
	p, err := osevent.NewPipe()
	if err != nil {
		return nil, fmt.Errorf("null: work-done pipe: %w", err)
	}
	r := p.TakeReceiver()

	d.mu.Lock()
	if d.destroyed || serial <= d.completed {
		d.mu.Unlock()
		return r, signalAll([]workDone{{serial: serial, pipe: p}})
	}
	i, _ := slices.BinarySearchFunc(d.pending, serial, func(w workDone, s uint64) int {
		if w.serial <= s {
			return -1
		}
		return 1
	})
	d.pending = slices.Insert(d.pending, i, workDone{serial: serial, pipe: p})
	d.mu.Unlock()
	return r, nil
}

// Resource is a null backend object. It records only what created it.
type Resource struct {
	owner *Device
	kind  string
	label string
}

// Label returns the resource label.
func (r *Resource) Label() string { return r.label }

// Kind returns the resource kind, such as "shader_module".
func (r *Resource) Kind() string { return r.kind }

func (d *Device) newResource(kind, label string) (backend.Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, backend.ErrDeviceDestroyed
	}
	return &Resource{owner: d, kind: kind, label: label}, nil
}

func (d *Device) owns(r backend.Resource, kind string) bool {
	nr, ok := r.(*Resource)
	return ok && nr.owner == d && nr.kind == kind
}

// CreateShaderModule accepts any non-empty SPIR-V.
func (d *Device) CreateShaderModule(label string, spirv []uint32) (backend.Resource, error) {
	if len(spirv) == 0 {
		return nil, ErrEmptyShader
	}
	return d.newResource("shader_module", label)
}

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(label string, _ []gputypes.BindGroupLayoutEntry) (backend.Resource, error) {
	return d.newResource("bind_group_layout", label)
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc backend.SamplerDesc) (backend.Resource, error) {
	return d.newResource("sampler", desc.Label)
}

// CreateComputePipeline checks that the module and layouts came from this
// device.
func (d *Device) CreateComputePipeline(desc backend.ComputePipelineDesc) (backend.Resource, error) {
	if !d.owns(desc.Module, "shader_module") {
		return nil, fmt.Errorf("%w: module %v", ErrInvalidResource, desc.Module)
	}
	for _, l := range desc.Layouts {
		if !d.owns(l, "bind_group_layout") {
			return nil, fmt.Errorf("%w: layout %v", ErrInvalidResource, l)
		}
	}
	return d.newResource("compute_pipeline", desc.Label)
}

// DestroyResource is a no-op; null resources hold nothing.
func (d *Device) DestroyResource(backend.Resource) {}

// Destroy signals every pending receiver and rejects further submissions.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	if err := signalAll(pending); err != nil {
		logging.Logger().Warn("null: signal on destroy", "err", err)
	}
}

// PendingEvents returns the number of work-done receivers not yet signaled.
func (d *Device) PendingEvents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func signalAll(ws []workDone) error {
	var errs []error
	for _, w := range ws {
		if err := w.pipe.Signal(); err != nil {
			errs = append(errs, err)
		}
		if err := w.pipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ backend.Device = (*Device)(nil)
var _ backend.Backend = (*Backend)(nil)
