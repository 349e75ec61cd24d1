package client

import (
	"fmt"
	"sort"

	"github.com/gogpu/wgcore/ref"
	"github.com/gogpu/wgcore/wire"
)

// FenceCompletionStatus is the result of Fence.OnCompletion.
type FenceCompletionStatus int

const (
	FenceCompletionStatusSuccess FenceCompletionStatus = iota
	FenceCompletionStatusError
	FenceCompletionStatusUnknown
	FenceCompletionStatusDeviceLost
)

// String returns the string representation of FenceCompletionStatus.
func (s FenceCompletionStatus) String() string {
	switch s {
	case FenceCompletionStatusSuccess:
		return "Success"
	case FenceCompletionStatusError:
		return "Error"
	case FenceCompletionStatusUnknown:
		return "Unknown"
	case FenceCompletionStatusDeviceLost:
		return "DeviceLost"
	default:
		return fmt.Sprintf("FenceCompletionStatus(%d)", int(s))
	}
}

// Fence tracks values signaled on a queue. The signaled value is what the
// client asked for; the completed value is what the server has reached.
type Fence struct {
	object

	signaled  uint64
	completed uint64

	// pending is ordered by value, then by registration.
	pending []fenceRequest
}

type fenceRequest struct {
	value uint64
	cb    func(FenceCompletionStatus)
}

// GetCompletedValue returns the last value the server reported.
func (f *Fence) GetCompletedValue() uint64 { return f.completed }

// SignaledValue returns the highest value signaled through Queue.Signal.
func (f *Fence) SignaledValue() uint64 { return f.signaled }

// OnCompletion calls cb once the completed value reaches value. A value
// that was never signaled fails at once with Error; a value already reached
// succeeds at once.
func (f *Fence) OnCompletion(value uint64, cb func(FenceCompletionStatus)) {
	if cb == nil {
		cb = func(FenceCompletionStatus) {}
	}
	if value > f.signaled {
		f.client.handleError(wire.ErrorTypeValidation, "wire/client: fence value greater than signaled value")
		cb(FenceCompletionStatusError)
		return
	}
	if value <= f.completed {
		cb(FenceCompletionStatusSuccess)
		return
	}
	if f.client.lost {
		cb(FenceCompletionStatusDeviceLost)
		return
	}
	i := sort.Search(len(f.pending), func(i int) bool { return f.pending[i].value > value })
	f.pending = append(f.pending, fenceRequest{})
	copy(f.pending[i+1:], f.pending[i:])
	f.pending[i] = fenceRequest{value: value, cb: cb}
}

// CheckPassedFences fires the callbacks whose value has been reached, in
// value order.
func (f *Fence) CheckPassedFences() {
	n := sort.Search(len(f.pending), func(i int) bool { return f.pending[i].value > f.completed })
	passed := f.pending[:n:n]
	f.pending = f.pending[n:]
	for _, r := range passed {
		r.cb(FenceCompletionStatusSuccess)
	}
}

// Release drops a reference.
func (f *Fence) Release() { ref.Release(f) }

// Finalize completes pending callbacks with Unknown and frees the handle.
func (f *Fence) Finalize() {
	f.clearRequests(FenceCompletionStatusUnknown)
	f.destroy(wire.ObjectTypeFence)
	f.client.fences.Free(f.handle.ID)
}

func (f *Fence) clearRequests(status FenceCompletionStatus) {
	pending := f.pending
	f.pending = nil
	for _, r := range pending {
		r.cb(status)
	}
}

func (c *Client) handleFenceUpdate(cmd *wire.FenceUpdateCompletedValue) error {
	f, ok := c.fences.lookup(cmd.Fence)
	if !ok {
		stale("fence", cmd.Fence)
		return nil
	}
	if cmd.Value > f.signaled {
		return wire.ProtocolError("fence %v completed %d past signaled %d", cmd.Fence, cmd.Value, f.signaled)
	}
	if cmd.Value > f.completed {
		f.completed = cmd.Value
	}
	f.CheckPassedFences()
	return nil
}

// Queue is the client proxy of the device queue.
type Queue struct {
	object
}

// CreateFence creates a fence whose signaled and completed values start at
// initial.
func (q *Queue) CreateFence(initial uint64) *Fence {
	f, h := q.client.fences.New()
	f.signaled = initial
	f.completed = initial
	q.client.serialize(&wire.QueueCreateFence{Queue: q.handle.ID, Result: h, InitialValue: initial})
	return f
}

// Signal sets f's signaled value to value once the work submitted so far
// retires. Values must increase.
func (q *Queue) Signal(f *Fence, value uint64) {
	if value <= f.signaled {
		q.client.handleError(wire.ErrorTypeValidation, "wire/client: fence value less than or equal to signaled value")
		return
	}
	f.signaled = value
	q.client.serialize(&wire.QueueSignal{Queue: q.handle.ID, Fence: f.handle.ID, Value: value})
}

// Submit submits command buffers.
func (q *Queue) Submit(buffers ...*CommandBuffer) {
	ids := make([]uint32, len(buffers))
	for i, b := range buffers {
		ids[i] = b.handle.ID
	}
	q.client.serialize(&wire.QueueSubmit{Queue: q.handle.ID, CommandBuffers: ids})
}

// Release drops a reference.
func (q *Queue) Release() { ref.Release(q) }

// Finalize frees the handle.
func (q *Queue) Finalize() {
	q.destroy(wire.ObjectTypeQueue)
	q.client.queues.Free(q.handle.ID)
}
