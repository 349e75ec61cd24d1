package backend

import (
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/osevent"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDeviceDestroyed is returned by operations on a destroyed device.
	ErrDeviceDestroyed = errors.New("backend: device destroyed")

	// ErrSerialOrder is returned when a submission serial does not increase.
	ErrSerialOrder = errors.New("backend: submission serial out of order")
)

// Backend opens devices on one kind of GPU implementation.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "null", "wgpu").
	Name() string

	// Init initializes the backend.
	// This should be called before any device is opened.
	Init() error

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()

	// OpenDevice opens a device on the best adapter the backend can find.
	OpenDevice() (Device, error)
}

// Resource is an opaque backend object such as a shader module or a
// pipeline. Only the device that created it may use or destroy it.
type Resource interface {
	Label() string
}

// ComputePipelineDesc describes a compute pipeline in backend terms.
type ComputePipelineDesc struct {
	Label      string
	Module     Resource
	EntryPoint string
	Layouts    []Resource
}

// SamplerDesc describes a sampler in backend terms.
type SamplerDesc struct {
	Label        string
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
}

// AdapterInfo describes the adapter a device was opened on.
type AdapterInfo struct {
	Name       string
	Backend    string
	DeviceType gputypes.DeviceType
}

// Device is an opened backend device with a monotonic execution timeline.
// Every submission carries a serial; the device retires serials in order.
type Device interface {
	Info() AdapterInfo

	// Submit records that all work up to serial has been handed to the GPU.
	// Serials must strictly increase.
	Submit(serial uint64) error

	// CompletedSerial returns the newest serial the GPU has finished.
	CompletedSerial() uint64

	// Tick advances the completed serial and signals work-done receivers.
	Tick() error

	// WaitDevice returns the device that resolves serial-based events, or
	// nil when the backend only signals through OS receivers.
	WaitDevice() event.WaitDevice

	// InsertWorkDoneEvent returns a receiver that becomes ready once serial
	// completes. Only backends without a wait device implement it.
	InsertWorkDoneEvent(serial uint64) (*osevent.Receiver, error)

	CreateShaderModule(label string, spirv []uint32) (Resource, error)
	CreateBindGroupLayout(label string, entries []gputypes.BindGroupLayoutEntry) (Resource, error)
	CreateSampler(desc SamplerDesc) (Resource, error)
	CreateComputePipeline(desc ComputePipelineDesc) (Resource, error)
	DestroyResource(r Resource)

	// Destroy releases the device. Pending work-done receivers are
	// signaled so waiters do not block forever.
	Destroy()
}

// CreateWorkDoneEvent returns the event source for "serial has completed".
// A serial that already completed gets a receiver that is ready at once.
func CreateWorkDoneEvent(d Device, serial uint64) (event.Source, error) {
	if wd := d.WaitDevice(); wd != nil {
		return event.Source{Device: wd, Serial: serial}, nil
	}
	if serial <= d.CompletedSerial() {
		r, err := osevent.NewSignaledReceiver()
		if err != nil {
			return event.Source{}, err
		}
		return event.Source{Receiver: r}, nil
	}
	r, err := d.InsertWorkDoneEvent(serial)
	if err != nil {
		return event.Source{}, err
	}
	return event.Source{Receiver: r}, nil
}
