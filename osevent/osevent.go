// Package osevent wraps OS-level waitable one-shot signals.
//
// A [Pipe] is created unsignaled; calling Signal makes its [Receiver]
// permanently ready. [Wait] multiplexes many receivers with one system call:
// poll(2) over pipe file descriptors on Unix systems, WaitForMultipleObjects
// over manual-reset events on Windows, and a channel select elsewhere. All
// implementations share the same contract.
package osevent

import (
	"errors"
	"math"
	"time"
)

// Infinite makes Wait block until a receiver becomes ready.
const Infinite = time.Duration(math.MaxInt64)

// ErrClosed is returned when signaling a pipe that was already closed.
var ErrClosed = errors.New("osevent: pipe closed")

// Receiver is the waitable end of a Pipe.
type Receiver struct {
	handle SystemHandle
}

// Handle returns the underlying system handle.
func (r *Receiver) Handle() SystemHandle { return r.handle }

// Valid reports whether the receiver still owns a handle.
func (r *Receiver) Valid() bool { return r != nil && r.handle != invalidHandle }

// Close releases the handle. It is safe to call more than once.
func (r *Receiver) Close() error {
	if !r.Valid() {
		return nil
	}
	h := r.handle
	r.handle = invalidHandle
	return closeHandle(h)
}

// Signaled reports whether the receiver is ready, without blocking.
func (r *Receiver) Signaled() bool {
	ready := []bool{false}
	return Wait([]*Receiver{r}, ready, 0)
}

// Pipe is a one-shot signal made of a writer handle and a Receiver.
type Pipe struct {
	writer   SystemHandle
	receiver *Receiver
}

// NewPipe creates an unsignaled pipe.
func NewPipe() (*Pipe, error) {
	r, w, err := newPipe()
	if err != nil {
		return nil, err
	}
	return &Pipe{writer: w, receiver: &Receiver{handle: r}}, nil
}

// Signal makes the receiver permanently ready. Signaling twice is harmless.
func (p *Pipe) Signal() error {
	if p.writer == invalidHandle {
		return ErrClosed
	}
	return signal(p.writer)
}

// TakeReceiver moves the receiver out of the pipe. Subsequent calls return
// nil.
func (p *Pipe) TakeReceiver() *Receiver {
	r := p.receiver
	p.receiver = nil
	return r
}

// Close releases the writer, and the receiver if it was not taken. Closing
// an unsignaled pipe wakes its waiters on platforms where the receiver
// observes the hang-up.
func (p *Pipe) Close() error {
	var err error
	if p.writer != invalidHandle {
		err = closeHandle(p.writer)
		p.writer = invalidHandle
	}
	if p.receiver != nil {
		err = errors.Join(err, p.receiver.Close())
		p.receiver = nil
	}
	return err
}

// NewSignaledReceiver returns a receiver that is ready from the start. It
// backs completions that are known at issue time.
func NewSignaledReceiver() (*Receiver, error) {
	p, err := NewPipe()
	if err != nil {
		return nil, err
	}
	if err := p.Signal(); err != nil {
		_ = p.Close()
		return nil, err
	}
	r := p.TakeReceiver()
	if err := p.Close(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Wait blocks until at least one receiver is ready or the timeout expires,
// sets ready[i] for every ready receiver and reports whether any was. An
// empty list returns false immediately. ready must be at least as long as
// receivers; entries for receivers that are not ready are left untouched.
func Wait(receivers []*Receiver, ready []bool, timeout time.Duration) bool {
	if len(receivers) == 0 {
		return false
	}
	if len(ready) < len(receivers) {
		panic("osevent: ready slice shorter than receivers")
	}
	if timeout < 0 {
		timeout = 0
	}
	return wait(receivers, ready, timeout)
}

// timeoutMillis converts a timeout to whole milliseconds, rounding up so a
// short non-zero timeout still waits.
func timeoutMillis(timeout time.Duration, infinite, max int64) int64 {
	if timeout == Infinite {
		return infinite
	}
	ms := int64((timeout + time.Millisecond - 1) / time.Millisecond)
	if ms > max {
		ms = max
	}
	return ms
}
