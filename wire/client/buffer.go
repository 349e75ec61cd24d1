package client

import (
	"maps"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/ref"
	"github.com/gogpu/wgcore/wire"
)

// MapCallback receives the result of a map request. On success data is the
// mapped range; for a write mapping it is zeroed and the caller's writes
// reach the server on Unmap.
type MapCallback func(status wgcore.BufferMapAsyncStatus, data []byte)

// Buffer is the client proxy of a server buffer.
type Buffer struct {
	object

	size  uint64
	usage gputypes.BufferUsage

	// requests holds the map requests the server has not answered, keyed by
	// request serial.
	requests      map[uint32]*mapRequest
	requestSerial uint32

	mapped      []byte
	mapOffset   uint64
	writeMapped bool
}

type mapRequest struct {
	offset  uint64
	size    uint64
	isWrite bool
	cb      MapCallback
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// MappedRange returns the mapped bytes, or nil when the buffer is not
// mapped.
func (b *Buffer) MappedRange() []byte { return b.mapped }

// PendingRequests returns the number of unanswered map requests.
func (b *Buffer) PendingRequests() int { return len(b.requests) }

// MapReadAsync requests a read mapping of [offset, offset+size).
// wgcore.WholeMapSize maps to the end of the buffer.
func (b *Buffer) MapReadAsync(offset, size uint64, cb MapCallback) {
	b.mapAsync(false, offset, size, cb)
}

// MapWriteAsync requests a write mapping of [offset, offset+size).
func (b *Buffer) MapWriteAsync(offset, size uint64, cb MapCallback) {
	b.mapAsync(true, offset, size, cb)
}

func (b *Buffer) mapAsync(isWrite bool, offset, size uint64, cb MapCallback) {
	if cb == nil {
		cb = func(wgcore.BufferMapAsyncStatus, []byte) {}
	}
	if b.client.lost {
		cb(wgcore.BufferMapAsyncStatusDeviceLost, nil)
		return
	}
	if size == wgcore.WholeMapSize && offset <= b.size {
		size = b.size - offset
	}

	b.requestSerial++
	serial := b.requestSerial
	b.requests[serial] = &mapRequest{offset: offset, size: size, isWrite: isWrite, cb: cb}
	b.client.serialize(&wire.BufferMapAsync{
		Buffer:        b.handle.ID,
		RequestSerial: serial,
		Offset:        offset,
		Size:          size,
		IsWrite:       isWrite,
	})
}

// Unmap unmaps the buffer. Writes to a write mapping are sent to the server
// first. Pending map requests complete with UnmappedBeforeCallback.
func (b *Buffer) Unmap() {
	if b.writeMapped && b.mapped != nil {
		b.client.serialize(&wire.BufferUpdateMappedData{
			Buffer: b.handle.ID,
			Offset: b.mapOffset,
			Data:   b.mapped,
		})
	}
	b.mapped = nil
	b.writeMapped = false
	b.clearRequests(wgcore.BufferMapAsyncStatusUnmappedBeforeCallback)
	b.client.serialize(&wire.BufferUnmap{Buffer: b.handle.ID})
}

// Destroy frees the server storage. Pending map requests complete with
// DestroyedBeforeCallback.
func (b *Buffer) Destroy() {
	b.mapped = nil
	b.writeMapped = false
	b.clearRequests(wgcore.BufferMapAsyncStatusDestroyedBeforeCallback)
	b.client.serialize(&wire.BufferDestroy{Buffer: b.handle.ID})
}

// Release drops a reference.
func (b *Buffer) Release() { ref.Release(b) }

// Finalize completes pending requests with Unknown and frees the handle.
func (b *Buffer) Finalize() {
	b.mapped = nil
	b.clearRequests(wgcore.BufferMapAsyncStatusUnknown)
	b.destroy(wire.ObjectTypeBuffer)
	b.client.buffers.Free(b.handle.ID)
}

// clearRequests fires every pending request with status in request order.
func (b *Buffer) clearRequests(status wgcore.BufferMapAsyncStatus) {
	reqs := b.requests
	b.requests = make(map[uint32]*mapRequest)
	for _, serial := range slices.Sorted(maps.Keys(reqs)) {
		reqs[serial].cb(status, nil)
	}
}

func (c *Client) handleMapAsyncCallback(cmd *wire.BufferMapAsyncCallback) error {
	b, ok := c.buffers.lookup(cmd.Buffer)
	if !ok {
		stale("buffer", cmd.Buffer)
		return nil
	}
	req, ok := b.requests[cmd.RequestSerial]
	if !ok {
		// Unmap or Destroy already answered it.
		stale("map-request", cmd.Buffer)
		return nil
	}
	if req.isWrite != cmd.IsWrite {
		return wire.ProtocolError("buffer %v request %d: reply write=%v for write=%v request",
			cmd.Buffer, cmd.RequestSerial, cmd.IsWrite, req.isWrite)
	}

	status := wgcore.BufferMapAsyncStatus(cmd.Status)
	var data []byte
	if status == wgcore.BufferMapAsyncStatusSuccess {
		if b.mapped != nil {
			return wire.ProtocolError("buffer %v mapped twice", cmd.Buffer)
		}
		if req.size > wgcore.MaxBufferSize {
			return wire.ProtocolError("buffer %v: mapped size %d", cmd.Buffer, req.size)
		}
		if req.isWrite {
			if len(cmd.Data) != 0 {
				return wire.ProtocolError("buffer %v: write mapping carries %d bytes", cmd.Buffer, len(cmd.Data))
			}
			data = make([]byte, req.size)
		} else {
			if uint64(len(cmd.Data)) != req.size {
				return wire.ProtocolError("buffer %v: read mapping of %d bytes carries %d", cmd.Buffer, req.size, len(cmd.Data))
			}
			data = cmd.Data
			if data == nil {
				data = []byte{}
			}
		}
		b.mapped, b.mapOffset, b.writeMapped = data, req.offset, req.isWrite
	}

	delete(b.requests, cmd.RequestSerial)
	req.cb(status, data)
	return nil
}
