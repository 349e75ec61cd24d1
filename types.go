package wgcore

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/event"
)

// Future identifies an asynchronous operation that can be passed to
// Instance.WaitAny. Operations issued in a mode other than
// CallbackModeWaitAnyOnly return the zero Future.
type Future = event.FutureID

// FutureWaitInfo is one entry of an Instance.WaitAny call.
type FutureWaitInfo = event.FutureWaitInfo

// WaitStatus is the result of Instance.WaitAny.
type WaitStatus = event.WaitStatus

// CallbackMode selects how the callback of an asynchronous operation is
// delivered.
type CallbackMode = event.CallbackMode

// Callback modes.
const (
	CallbackModeWaitAnyOnly        = event.ModeWaitAnyOnly
	CallbackModeAllowProcessEvents = event.ModeAllowProcessEvents
	CallbackModeAllowSpontaneous   = event.ModeAllowSpontaneous
)

// WaitAny results.
const (
	WaitStatusSuccess                 = event.WaitStatusSuccess
	WaitStatusTimedOut                = event.WaitStatusTimedOut
	WaitStatusUnsupportedTimeout      = event.WaitStatusUnsupportedTimeout
	WaitStatusUnsupportedCount        = event.WaitStatusUnsupportedCount
	WaitStatusUnsupportedMixedSources = event.WaitStatusUnsupportedMixedSources
)

// RequestAdapterCallbackInfo delivers the result of Instance.RequestAdapter.
type RequestAdapterCallbackInfo struct {
	Mode     CallbackMode
	Callback func(status RequestAdapterStatus, adapter *Adapter, message string)
}

// RequestDeviceCallbackInfo delivers the result of Adapter.RequestDevice.
// The device passed on success carries one reference owned by the callee.
type RequestDeviceCallbackInfo struct {
	Mode     CallbackMode
	Callback func(status RequestDeviceStatus, device *Device, message string)
}

// QueueWorkDoneCallbackInfo delivers the result of Queue.OnSubmittedWorkDone.
type QueueWorkDoneCallbackInfo struct {
	Mode     CallbackMode
	Callback func(status QueueWorkDoneStatus)
}

// BufferMapCallbackInfo delivers the result of Buffer.MapAsync.
type BufferMapCallbackInfo struct {
	Mode     CallbackMode
	Callback func(status BufferMapAsyncStatus, message string)
}

// CreateComputePipelineAsyncCallbackInfo delivers the result of
// Device.CreateComputePipelineAsync. The pipeline passed on success carries
// one reference owned by the callee.
type CreateComputePipelineAsyncCallbackInfo struct {
	Mode     CallbackMode
	Callback func(status CreatePipelineAsyncStatus, pipeline *ComputePipeline, message string)
}

// AdapterOptions selects an adapter.
type AdapterOptions struct {
	// ForceFallbackAdapter requests the CPU timeline of the null backend.
	ForceFallbackAdapter bool
}

// DeviceDescriptor describes a device to open.
type DeviceDescriptor struct {
	Label string

	// DeviceLost is called once when the device is destroyed, released or
	// dropped with its instance.
	DeviceLost func(reason DeviceLostReason, message string)
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage

	// MappedAtCreation creates the buffer pre-mapped for writing.
	MappedAtCreation bool
}

// ShaderModuleDescriptor describes a shader module. Exactly one of WGSL and
// SPIRV is set.
type ShaderModuleDescriptor struct {
	Label string
	WGSL  string
	SPIRV []uint32
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []gputypes.BindGroupLayoutEntry
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label        string
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label      string
	Module     *ShaderModule
	EntryPoint string
	Layouts    []*BindGroupLayout
}
