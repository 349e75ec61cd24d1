//go:build windows

package osevent

import (
	"math"
	"time"

	"golang.org/x/sys/windows"
)

// SystemHandle is a manual-reset event handle.
type SystemHandle windows.Handle

const invalidHandle = SystemHandle(windows.InvalidHandle)

// maxWaitObjects is the WaitForMultipleObjects handle limit.
const maxWaitObjects = 64

func newPipe() (SystemHandle, SystemHandle, error) {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return invalidHandle, invalidHandle, err
	}
	var dup windows.Handle
	proc := windows.CurrentProcess()
	if err := windows.DuplicateHandle(proc, ev, proc, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS); err != nil {
		_ = windows.CloseHandle(ev)
		return invalidHandle, invalidHandle, err
	}
	return SystemHandle(ev), SystemHandle(dup), nil
}

func signal(w SystemHandle) error { return windows.SetEvent(windows.Handle(w)) }

func closeHandle(h SystemHandle) error { return windows.CloseHandle(windows.Handle(h)) }

func signaled(h windows.Handle) bool {
	ev, err := windows.WaitForSingleObject(h, 0)
	return err == nil && ev == windows.WAIT_OBJECT_0
}

func collect(receivers []*Receiver, ready []bool) bool {
	found := false
	for i, r := range receivers {
		if r.Valid() && signaled(windows.Handle(r.handle)) {
			ready[i] = true
			found = true
		}
	}
	return found
}

func wait(receivers []*Receiver, ready []bool, timeout time.Duration) bool {
	handles := make([]windows.Handle, 0, len(receivers))
	for _, r := range receivers {
		if r.Valid() {
			handles = append(handles, windows.Handle(r.handle))
		}
	}
	if len(handles) == 0 {
		return false
	}

	if len(handles) <= maxWaitObjects {
		ms := uint32(timeoutMillis(timeout, windows.INFINITE, math.MaxUint32-1))
		ev, err := windows.WaitForMultipleObjects(handles, false, ms)
		if err != nil || ev == uint32(windows.WAIT_TIMEOUT) {
			return false
		}
		return collect(receivers, ready)
	}

	// Too many handles for one call: poll until the deadline.
	deadline := time.Now().Add(timeout)
	for {
		if collect(receivers, ready) {
			return true
		}
		if timeout != Infinite && !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
