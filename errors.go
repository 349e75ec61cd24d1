package wgcore

import "errors"

var (
	// ErrInstanceReleased is returned by operations on a released instance.
	ErrInstanceReleased = errors.New("wgcore: instance released")

	// ErrDeviceLost is returned by operations on a destroyed device.
	ErrDeviceLost = errors.New("wgcore: device lost")

	// ErrInvalidBufferSize is returned when buffer size is invalid.
	ErrInvalidBufferSize = errors.New("wgcore: invalid buffer size")

	// ErrInvalidBufferUsage is returned for an empty or conflicting usage.
	ErrInvalidBufferUsage = errors.New("wgcore: invalid buffer usage")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("wgcore: buffer has been destroyed")

	// ErrBufferNotMapped is returned when accessing unmapped buffer data.
	ErrBufferNotMapped = errors.New("wgcore: buffer is not mapped")

	// ErrBufferMapPending is returned when accessing a buffer with a pending
	// map operation.
	ErrBufferMapPending = errors.New("wgcore: buffer mapping is pending")

	// ErrInvalidMapRange is returned when a mapped range is out of bounds.
	ErrInvalidMapRange = errors.New("wgcore: map range out of bounds")

	// ErrInvalidShaderSource is returned unless exactly one of WGSL and
	// SPIR-V is given.
	ErrInvalidShaderSource = errors.New("wgcore: shader module needs exactly one of WGSL and SPIR-V")

	// ErrInvalidDescriptor is returned for a descriptor that fails validation.
	ErrInvalidDescriptor = errors.New("wgcore: invalid descriptor")

	// ErrForeignObject is returned when an object of another device is used.
	ErrForeignObject = errors.New("wgcore: object belongs to another device")
)
