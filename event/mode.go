package event

import (
	"errors"
	"fmt"
)

// FutureID identifies a tracked future. Zero means no future was requested.
type FutureID uint64

// NullFutureID is returned for events that cannot be waited on.
const NullFutureID FutureID = 0

// CallbackMode selects how an event's callback is delivered.
type CallbackMode uint32

const (
	// ModeWaitAnyOnly delivers the callback from WaitAny.
	ModeWaitAnyOnly CallbackMode = 1 << iota
	// ModeAllowProcessEvents delivers the callback from ProcessEvents.
	ModeAllowProcessEvents
	// ModeAllowSpontaneous delivers the callback from whichever internal
	// call first notices readiness.
	ModeAllowSpontaneous
)

// ErrInvalidMode is returned for a zero or combined callback mode.
var ErrInvalidMode = errors.New("event: callback mode must be exactly one of WaitAnyOnly, AllowProcessEvents, AllowSpontaneous")

// Validate checks that exactly one mode is selected.
func (m CallbackMode) Validate() error {
	switch m {
	case ModeWaitAnyOnly, ModeAllowProcessEvents, ModeAllowSpontaneous:
		return nil
	}
	return fmt.Errorf("%w: got %#x", ErrInvalidMode, uint32(m))
}

// String returns the mode name.
func (m CallbackMode) String() string {
	switch m {
	case ModeWaitAnyOnly:
		return "WaitAnyOnly"
	case ModeAllowProcessEvents:
		return "AllowProcessEvents"
	case ModeAllowSpontaneous:
		return "AllowSpontaneous"
	default:
		return fmt.Sprintf("CallbackMode(%#x)", uint32(m))
	}
}

// CompletionType tells a callback why it runs.
type CompletionType int

const (
	// CompletionReady means the operation finished, successfully or not.
	CompletionReady CompletionType = iota
	// CompletionShutdown means the owning instance or device went away first.
	CompletionShutdown
)

// String returns the completion type name.
func (c CompletionType) String() string {
	switch c {
	case CompletionReady:
		return "ready"
	case CompletionShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("CompletionType(%d)", int(c))
	}
}

// WaitStatus is the result of WaitAny.
type WaitStatus int

const (
	// WaitStatusSuccess means at least one future completed.
	WaitStatusSuccess WaitStatus = iota + 1
	// WaitStatusTimedOut means no future became ready in time.
	WaitStatusTimedOut
	// WaitStatusUnsupportedTimeout means a timed wait was requested but not
	// enabled on the instance.
	WaitStatusUnsupportedTimeout
	// WaitStatusUnsupportedCount means a timed wait covered more futures than
	// the instance allows.
	WaitStatusUnsupportedCount
	// WaitStatusUnsupportedMixedSources means a timed wait covered futures
	// driven by different wait devices.
	WaitStatusUnsupportedMixedSources
)

// String returns the status name.
func (s WaitStatus) String() string {
	switch s {
	case WaitStatusSuccess:
		return "Success"
	case WaitStatusTimedOut:
		return "TimedOut"
	case WaitStatusUnsupportedTimeout:
		return "UnsupportedTimeout"
	case WaitStatusUnsupportedCount:
		return "UnsupportedCount"
	case WaitStatusUnsupportedMixedSources:
		return "UnsupportedMixedSources"
	default:
		return fmt.Sprintf("WaitStatus(%d)", int(s))
	}
}
