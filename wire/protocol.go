package wire

import (
	"errors"
	"fmt"
)

// ErrProtocol reports a malformed or inconsistent command stream. Both
// sides stop processing a stream at the first protocol error.
var ErrProtocol = errors.New("wire: protocol error")

// ProtocolError returns an error wrapping ErrProtocol.
func ProtocolError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
}

// ObjectHandle names an object across the wire. The serial tells a reused
// ID apart from its earlier incarnations.
type ObjectHandle struct {
	ID     uint32
	Serial uint32
}

// IsNull reports whether h is the reserved null handle.
func (h ObjectHandle) IsNull() bool { return h.ID == 0 }

func (h ObjectHandle) String() string { return fmt.Sprintf("%d#%d", h.ID, h.Serial) }

// ObjectType is the kind of object a handle refers to.
type ObjectType uint32

const (
	ObjectTypeDevice ObjectType = iota + 1
	ObjectTypeQueue
	ObjectTypeBuffer
	ObjectTypeCommandEncoder
	ObjectTypeCommandBuffer
	ObjectTypeFence
)

// String returns the string representation of ObjectType.
func (t ObjectType) String() string {
	switch t {
	case ObjectTypeDevice:
		return "Device"
	case ObjectTypeQueue:
		return "Queue"
	case ObjectTypeBuffer:
		return "Buffer"
	case ObjectTypeCommandEncoder:
		return "CommandEncoder"
	case ObjectTypeCommandBuffer:
		return "CommandBuffer"
	case ObjectTypeFence:
		return "Fence"
	default:
		return fmt.Sprintf("ObjectType(%d)", uint32(t))
	}
}

// BuilderStatus is the result reported for a builder's product.
type BuilderStatus uint32

const (
	BuilderStatusSuccess BuilderStatus = iota
	BuilderStatusError
	BuilderStatusUnknown
	BuilderStatusDeviceLost
)

// String returns the string representation of BuilderStatus.
func (s BuilderStatus) String() string {
	switch s {
	case BuilderStatusSuccess:
		return "Success"
	case BuilderStatusError:
		return "Error"
	case BuilderStatusUnknown:
		return "Unknown"
	case BuilderStatusDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("BuilderStatus(%d)", uint32(s))
	}
}

// ErrorType classifies a device error.
type ErrorType uint32

const (
	ErrorTypeNoError ErrorType = iota
	ErrorTypeValidation
	ErrorTypeOutOfMemory
	ErrorTypeUnknown
	ErrorTypeDeviceLost
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNoError:
		return "NoError"
	case ErrorTypeValidation:
		return "Validation"
	case ErrorTypeOutOfMemory:
		return "OutOfMemory"
	case ErrorTypeUnknown:
		return "Unknown"
	case ErrorTypeDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("ErrorType(%d)", uint32(t))
	}
}
