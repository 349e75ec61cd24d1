package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/internal/logging"
)

// Errors returned by the wgpu backend.
var (
	ErrNoAdapters      = errors.New("wgpu: no GPU adapters found")
	ErrNilProvider     = errors.New("wgpu: nil DeviceProvider")
	ErrProviderNotHAL  = errors.New("wgpu: provider does not expose HAL types")
	ErrWaitDeviceOnly  = errors.New("wgpu: work-done events resolve through the wait device")
	ErrInvalidResource = errors.New("wgpu: resource does not belong to this device")
)

func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend { return New(nil) })
}

// API creates HAL instances. hal.GetBackend results and noop.API satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Backend opens devices through a HAL API, or hands out a shared device
// from a gpucontext.DeviceProvider.
type Backend struct {
	api      API
	provider gpucontext.DeviceProvider
	instance hal.Instance
	ready    bool
}

// New creates a backend on api. A nil api selects the Vulkan HAL backend
// at Init.
func New(api API) *Backend {
	return &Backend{api: api}
}

// NewShared creates a backend whose devices come from provider.
func NewShared(provider gpucontext.DeviceProvider) *Backend {
	return &Backend{provider: provider}
}

// Name returns "wgpu".
func (b *Backend) Name() string { return backend.BackendWGPU }

// Init creates the HAL instance.
func (b *Backend) Init() error {
	if b.ready {
		return nil
	}
	if b.provider != nil {
		b.ready = true
		return nil
	}
	if b.api == nil {
		hb, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return fmt.Errorf("%w: vulkan", backend.ErrBackendNotAvailable)
		}
		b.api = hb
	}
	instance, err := b.api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	b.instance = instance
	b.ready = true
	return nil
}

// Close destroys the HAL instance. Devices opened from it must be
// destroyed first.
func (b *Backend) Close() {
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	b.ready = false
}

// OpenDevice opens a device on the best adapter, preferring discrete and
// integrated GPUs.
func (b *Backend) OpenDevice() (backend.Device, error) {
	if !b.ready {
		return nil, backend.ErrNotInitialized
	}
	if b.provider != nil {
		return FromProvider(b.provider)
	}

	adapters := b.instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	info := backend.AdapterInfo{
		Name:       selected.Info.Name,
		Backend:    backend.BackendWGPU,
		DeviceType: selected.Info.DeviceType,
	}
	d, err := newDevice(openDev.Device, openDev.Queue, info, true)
	if err != nil {
		openDev.Device.Destroy()
		return nil, err
	}
	logging.Logger().Info("wgpu: device opened", "adapter", info.Name)
	return d, nil
}

// FromProvider adopts a host application's device. The provider must
// implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue. The returned device polls provider.Device() on every Tick and
// never destroys the shared device.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProviderNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProviderNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProviderNotHAL)
	}

	d, err := newDevice(device, queue, backend.AdapterInfo{Name: "shared", Backend: backend.BackendWGPU}, false)
	if err != nil {
		return nil, err
	}
	d.poller = provider.Device()
	logging.Logger().Info("wgpu: using shared device from provider")
	return d, nil
}

var _ backend.Backend = (*Backend)(nil)
