package wgcore

import "fmt"

// RequestAdapterStatus is the result of Instance.RequestAdapter.
type RequestAdapterStatus int

const (
	// RequestAdapterStatusSuccess means an adapter was found.
	RequestAdapterStatusSuccess RequestAdapterStatus = iota
	// RequestAdapterStatusInstanceDropped means the instance was released first.
	RequestAdapterStatusInstanceDropped
	// RequestAdapterStatusUnavailable means no adapter matches the options.
	RequestAdapterStatusUnavailable
	// RequestAdapterStatusError means the request failed.
	RequestAdapterStatusError
)

// String returns the string representation of RequestAdapterStatus.
func (s RequestAdapterStatus) String() string {
	switch s {
	case RequestAdapterStatusSuccess:
		return "Success"
	case RequestAdapterStatusInstanceDropped:
		return "InstanceDropped"
	case RequestAdapterStatusUnavailable:
		return "Unavailable"
	case RequestAdapterStatusError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// RequestDeviceStatus is the result of Adapter.RequestDevice.
type RequestDeviceStatus int

const (
	// RequestDeviceStatusSuccess means the device was opened.
	RequestDeviceStatusSuccess RequestDeviceStatus = iota
	// RequestDeviceStatusInstanceDropped means the instance was released first.
	RequestDeviceStatusInstanceDropped
	// RequestDeviceStatusError means the backend could not open a device.
	RequestDeviceStatusError
)

// String returns the string representation of RequestDeviceStatus.
func (s RequestDeviceStatus) String() string {
	switch s {
	case RequestDeviceStatusSuccess:
		return "Success"
	case RequestDeviceStatusInstanceDropped:
		return "InstanceDropped"
	case RequestDeviceStatusError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// CreatePipelineAsyncStatus is the result of Device.CreateComputePipelineAsync.
type CreatePipelineAsyncStatus int

const (
	// CreatePipelineAsyncStatusSuccess means the pipeline was created.
	CreatePipelineAsyncStatusSuccess CreatePipelineAsyncStatus = iota
	// CreatePipelineAsyncStatusInstanceDropped means the instance was released first.
	CreatePipelineAsyncStatusInstanceDropped
	// CreatePipelineAsyncStatusValidationError means the descriptor or the
	// shader is invalid.
	CreatePipelineAsyncStatusValidationError
	// CreatePipelineAsyncStatusInternalError means the backend failed.
	CreatePipelineAsyncStatusInternalError
	// CreatePipelineAsyncStatusDeviceLost means the device was destroyed first.
	CreatePipelineAsyncStatusDeviceLost
)

// String returns the string representation of CreatePipelineAsyncStatus.
func (s CreatePipelineAsyncStatus) String() string {
	switch s {
	case CreatePipelineAsyncStatusSuccess:
		return "Success"
	case CreatePipelineAsyncStatusInstanceDropped:
		return "InstanceDropped"
	case CreatePipelineAsyncStatusValidationError:
		return "ValidationError"
	case CreatePipelineAsyncStatusInternalError:
		return "InternalError"
	case CreatePipelineAsyncStatusDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// QueueWorkDoneStatus is the result of Queue.OnSubmittedWorkDone.
type QueueWorkDoneStatus int

const (
	// QueueWorkDoneStatusSuccess means all work submitted before the call
	// has completed.
	QueueWorkDoneStatusSuccess QueueWorkDoneStatus = iota
	// QueueWorkDoneStatusInstanceDropped means the instance was released first.
	QueueWorkDoneStatusInstanceDropped
	// QueueWorkDoneStatusError means the backend could not track the work.
	QueueWorkDoneStatusError
	// QueueWorkDoneStatusDeviceLost means the device was destroyed first.
	QueueWorkDoneStatusDeviceLost
)

// String returns the string representation of QueueWorkDoneStatus.
func (s QueueWorkDoneStatus) String() string {
	switch s {
	case QueueWorkDoneStatusSuccess:
		return "Success"
	case QueueWorkDoneStatusInstanceDropped:
		return "InstanceDropped"
	case QueueWorkDoneStatusError:
		return "Error"
	case QueueWorkDoneStatusDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BufferMapState represents the mapping state of a buffer.
type BufferMapState int

const (
	// BufferMapStateUnmapped means the buffer is not mapped.
	BufferMapStateUnmapped BufferMapState = iota
	// BufferMapStatePending means a map operation is pending.
	BufferMapStatePending
	// BufferMapStateMapped means the buffer is mapped.
	BufferMapStateMapped
)

// String returns the string representation of BufferMapState.
func (s BufferMapState) String() string {
	switch s {
	case BufferMapStateUnmapped:
		return "Unmapped"
	case BufferMapStatePending:
		return "Pending"
	case BufferMapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BufferMapAsyncStatus represents the result of an async map operation.
type BufferMapAsyncStatus int

const (
	// BufferMapAsyncStatusSuccess indicates mapping completed successfully.
	BufferMapAsyncStatusSuccess BufferMapAsyncStatus = iota
	// BufferMapAsyncStatusValidationError indicates a validation error.
	BufferMapAsyncStatusValidationError
	// BufferMapAsyncStatusUnknown indicates an unknown error.
	BufferMapAsyncStatusUnknown
	// BufferMapAsyncStatusDeviceLost indicates the device was lost.
	BufferMapAsyncStatusDeviceLost
	// BufferMapAsyncStatusDestroyedBeforeCallback indicates buffer was destroyed.
	BufferMapAsyncStatusDestroyedBeforeCallback
	// BufferMapAsyncStatusUnmappedBeforeCallback indicates buffer was unmapped.
	BufferMapAsyncStatusUnmappedBeforeCallback
	// BufferMapAsyncStatusMappingAlreadyPending indicates another map is pending.
	BufferMapAsyncStatusMappingAlreadyPending
	// BufferMapAsyncStatusOffsetOutOfRange indicates offset is out of range.
	BufferMapAsyncStatusOffsetOutOfRange
	// BufferMapAsyncStatusSizeOutOfRange indicates size is out of range.
	BufferMapAsyncStatusSizeOutOfRange
	// BufferMapAsyncStatusInstanceDropped indicates the instance was released
	// before the mapping completed.
	BufferMapAsyncStatusInstanceDropped
)

// String returns the string representation of BufferMapAsyncStatus.
func (s BufferMapAsyncStatus) String() string {
	switch s {
	case BufferMapAsyncStatusSuccess:
		return "Success"
	case BufferMapAsyncStatusValidationError:
		return "ValidationError"
	case BufferMapAsyncStatusUnknown:
		return "Unknown"
	case BufferMapAsyncStatusDeviceLost:
		return "DeviceLost"
	case BufferMapAsyncStatusDestroyedBeforeCallback:
		return "DestroyedBeforeCallback"
	case BufferMapAsyncStatusUnmappedBeforeCallback:
		return "UnmappedBeforeCallback"
	case BufferMapAsyncStatusMappingAlreadyPending:
		return "MappingAlreadyPending"
	case BufferMapAsyncStatusOffsetOutOfRange:
		return "OffsetOutOfRange"
	case BufferMapAsyncStatusSizeOutOfRange:
		return "SizeOutOfRange"
	case BufferMapAsyncStatusInstanceDropped:
		return "InstanceDropped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DeviceLostReason tells a device-lost callback why the device went away.
type DeviceLostReason int

const (
	// DeviceLostReasonUnknown means the backend lost the device.
	DeviceLostReasonUnknown DeviceLostReason = iota
	// DeviceLostReasonDestroyed means Device.Destroy was called or the last
	// reference was released.
	DeviceLostReasonDestroyed
	// DeviceLostReasonInstanceDropped means the instance was released while
	// the device was alive.
	DeviceLostReasonInstanceDropped
)

// String returns the string representation of DeviceLostReason.
func (r DeviceLostReason) String() string {
	switch r {
	case DeviceLostReasonUnknown:
		return "Unknown"
	case DeviceLostReasonDestroyed:
		return "Destroyed"
	case DeviceLostReasonInstanceDropped:
		return "InstanceDropped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}
