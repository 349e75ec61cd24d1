//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package osevent

import (
	"errors"
	"math"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gogpu/wgcore/internal/logging"
)

// SystemHandle is a pipe file descriptor.
type SystemHandle int

const invalidHandle SystemHandle = -1

func newPipe() (SystemHandle, SystemHandle, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return invalidHandle, invalidHandle, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return invalidHandle, invalidHandle, err
		}
	}
	return SystemHandle(fds[0]), SystemHandle(fds[1]), nil
}

func signal(w SystemHandle) error {
	_, err := unix.Write(int(w), []byte{0})
	if errors.Is(err, unix.EAGAIN) {
		// The pipe is already full of earlier signals.
		return nil
	}
	return err
}

func closeHandle(h SystemHandle) error { return unix.Close(int(h)) }

func wait(receivers []*Receiver, ready []bool, timeout time.Duration) bool {
	fds := make([]unix.PollFd, len(receivers))
	for i, r := range receivers {
		fd := int32(-1)
		if r.Valid() {
			fd = int32(r.handle)
		}
		fds[i] = unix.PollFd{Fd: fd, Events: unix.POLLIN}
	}

	var deadline time.Time
	if timeout != Infinite {
		deadline = time.Now().Add(timeout)
	}
	ms := timeoutMillis(timeout, -1, math.MaxInt32)

	for {
		n, err := unix.Poll(fds, int(ms))
		if errors.Is(err, unix.EINTR) {
			if timeout != Infinite {
				ms = max(timeoutMillis(time.Until(deadline), -1, math.MaxInt32), 0)
			}
			continue
		}
		if err != nil {
			logging.Logger().Warn("osevent: poll failed", "error", err)
			return false
		}
		if n == 0 {
			return false
		}
		break
	}

	found := false
	for i := range fds {
		if fds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready[i] = true
			found = true
		}
	}
	return found
}
