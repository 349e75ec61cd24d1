package wgcore

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/ref"
)

// WholeMapSize maps from the offset to the end of the buffer.
const WholeMapSize = ^uint64(0)

// MaxBufferSize is the largest buffer CreateBuffer accepts.
const MaxBufferSize = 1 << 30

const (
	// mapAlignment is the required alignment of map offsets.
	mapAlignment uint64 = 8
	// copyBufferAlignment is the alignment of buffer sizes.
	copyBufferAlignment uint64 = 4
)

// Buffer is a block of memory shared with the device timeline. Its contents
// live in host memory; a map request completes once all work submitted
// before it has retired.
//
// Thread safety: Buffer is safe for concurrent use.
type Buffer struct {
	ref.RefCounted

	device ref.Ref[*Device]

	// descriptor holds the buffer configuration (immutable after creation).
	descriptor BufferDescriptor

	mu sync.Mutex

	data []byte

	mapState  BufferMapState
	mapMode   gputypes.MapMode
	mapOffset uint64
	mapSize   uint64

	// pending is the outstanding map request, if any.
	pending *mapRequest

	destroyed bool
}

// mapRequest is one MapAsync call. A request that was canceled by Unmap or
// Destroy keeps the status its callback reports.
type mapRequest struct {
	mode     gputypes.MapMode
	offset   uint64
	size     uint64
	canceled BufferMapAsyncStatus
}

// CreateBuffer creates a buffer.
func (d *Device) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if d.IsDestroyed() {
		return nil, ErrDeviceLost
	}
	if desc.Size == 0 || desc.Size > MaxBufferSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, desc.Size)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("%w: usage is empty", ErrInvalidBufferUsage)
	}
	const mapReadAllowed = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	const mapWriteAllowed = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	if desc.Usage.Contains(gputypes.BufferUsageMapRead) && desc.Usage&^mapReadAllowed != 0 {
		return nil, fmt.Errorf("%w: MapRead combines only with CopyDst", ErrInvalidBufferUsage)
	}
	if desc.Usage.Contains(gputypes.BufferUsageMapWrite) && desc.Usage&^mapWriteAllowed != 0 {
		return nil, fmt.Errorf("%w: MapWrite combines only with CopySrc", ErrInvalidBufferUsage)
	}
	if desc.MappedAtCreation && desc.Size%copyBufferAlignment != 0 {
		return nil, fmt.Errorf("%w: mapped at creation needs a multiple of %d", ErrInvalidBufferSize, copyBufferAlignment)
	}

	alignedSize := (desc.Size + copyBufferAlignment - 1) &^ (copyBufferAlignment - 1)
	b := &Buffer{
		device:     ref.NewRef(d),
		descriptor: desc,
		data:       make([]byte, alignedSize),
	}

	// If mapped at creation, set state to mapped
	if desc.MappedAtCreation {
		b.mapState = BufferMapStateMapped
		b.mapMode = gputypes.MapModeWrite
		b.mapSize = desc.Size
	}
	return b, nil
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	return b.descriptor.Label
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.descriptor.Size
}

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage {
	return b.descriptor.Usage
}

// MapState returns the current mapping state.
func (b *Buffer) MapState() BufferMapState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapState
}

// MapAsync maps a range of the buffer for the CPU. The callback reports
// the result; validation failures are delivered through it as well, in
// the requested mode.
//
// After MapAsync succeeds the map state is Pending until every submission
// made so far has completed. Unmap or Destroy before that completes the
// request with UnmappedBeforeCallback or DestroyedBeforeCallback.
func (b *Buffer) MapAsync(mode gputypes.MapMode, offset, size uint64, info BufferMapCallbackInfo) Future {
	cb := info.Callback
	if cb == nil {
		cb = func(BufferMapAsyncStatus, string) {}
	}
	d := b.device.Get()

	b.mu.Lock()
	if size == WholeMapSize && offset <= b.descriptor.Size {
		size = b.descriptor.Size - offset
	}
	status, err := b.validateMapLocked(mode, offset, size)
	if err != nil {
		b.mu.Unlock()
		return b.mapFailed(info.Mode, status, err.Error(), cb)
	}

	req := &mapRequest{mode: mode, offset: offset, size: size}
	src, err := d.Queue().WorkDoneSource()
	if err != nil {
		b.mu.Unlock()
		return b.mapFailed(info.Mode, BufferMapAsyncStatusUnknown, err.Error(), cb)
	}
	b.pending = req
	b.mapState = BufferMapStatePending
	b.mu.Unlock()

	return d.instance.issue(info.Mode, src, d, func(c event.CompletionType) {
		status := b.finishMap(req, c)
		cb(status, mapMessage(status))
	})
}

// validateMapLocked applies the MapAsync rules in order and returns the
// status of the first one that fails.
func (b *Buffer) validateMapLocked(mode gputypes.MapMode, offset, size uint64) (BufferMapAsyncStatus, error) {
	switch {
	case b.device.Get().IsDestroyed():
		return BufferMapAsyncStatusDeviceLost, ErrDeviceLost
	case b.destroyed:
		return BufferMapAsyncStatusValidationError, ErrBufferDestroyed
	case b.mapState != BufferMapStateUnmapped:
		return BufferMapAsyncStatusMappingAlreadyPending, fmt.Errorf("wgcore: buffer is %s", b.mapState)
	case mode != gputypes.MapModeRead && mode != gputypes.MapModeWrite:
		return BufferMapAsyncStatusValidationError, fmt.Errorf("wgcore: invalid map mode %d", mode)
	case mode == gputypes.MapModeRead && !b.descriptor.Usage.Contains(gputypes.BufferUsageMapRead):
		return BufferMapAsyncStatusValidationError, fmt.Errorf("%w: buffer does not have MapRead usage", ErrInvalidBufferUsage)
	case mode == gputypes.MapModeWrite && !b.descriptor.Usage.Contains(gputypes.BufferUsageMapWrite):
		return BufferMapAsyncStatusValidationError, fmt.Errorf("%w: buffer does not have MapWrite usage", ErrInvalidBufferUsage)
	case offset > b.descriptor.Size:
		return BufferMapAsyncStatusOffsetOutOfRange,
			fmt.Errorf("%w: offset %d > buffer size %d", ErrInvalidMapRange, offset, b.descriptor.Size)
	case size > b.descriptor.Size-offset:
		return BufferMapAsyncStatusSizeOutOfRange,
			fmt.Errorf("%w: offset %d + size %d > buffer size %d", ErrInvalidMapRange, offset, size, b.descriptor.Size)
	case offset%mapAlignment != 0:
		return BufferMapAsyncStatusValidationError,
			fmt.Errorf("%w: offset %d must be %d-byte aligned", ErrInvalidMapRange, offset, mapAlignment)
	case size%copyBufferAlignment != 0:
		return BufferMapAsyncStatusValidationError,
			fmt.Errorf("%w: size %d must be %d-byte aligned", ErrInvalidMapRange, size, copyBufferAlignment)
	}
	return BufferMapAsyncStatusSuccess, nil
}

func (b *Buffer) mapFailed(mode CallbackMode, status BufferMapAsyncStatus, message string, cb func(BufferMapAsyncStatus, string)) Future {
	return b.device.Get().instance.issueReady(mode, func(c event.CompletionType) {
		if c == event.CompletionShutdown {
			cb(BufferMapAsyncStatusInstanceDropped, mapMessage(BufferMapAsyncStatusInstanceDropped))
			return
		}
		cb(status, message)
	})
}

// finishMap resolves req once its event completes.
func (b *Buffer) finishMap(req *mapRequest, c event.CompletionType) BufferMapAsyncStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending != req {
		return req.canceled
	}
	b.pending = nil

	switch {
	case c == event.CompletionShutdown:
		b.mapState = BufferMapStateUnmapped
		return BufferMapAsyncStatusInstanceDropped
	case b.device.Get().IsDestroyed():
		b.mapState = BufferMapStateUnmapped
		return BufferMapAsyncStatusDeviceLost
	}
	b.mapState = BufferMapStateMapped
	b.mapMode = req.mode
	b.mapOffset = req.offset
	b.mapSize = req.size
	return BufferMapAsyncStatusSuccess
}

func mapMessage(status BufferMapAsyncStatus) string {
	switch status {
	case BufferMapAsyncStatusSuccess:
		return ""
	case BufferMapAsyncStatusUnmappedBeforeCallback:
		return "buffer was unmapped before the mapping completed"
	case BufferMapAsyncStatusDestroyedBeforeCallback:
		return "buffer was destroyed before the mapping completed"
	case BufferMapAsyncStatusDeviceLost:
		return ErrDeviceLost.Error()
	case BufferMapAsyncStatusInstanceDropped:
		return ErrInstanceReleased.Error()
	default:
		return status.String()
	}
}

// GetMappedRange returns the mapped data slice.
//
// The offset and size are relative to the buffer, not the mapped region.
// The returned slice is only valid while the buffer is mapped.
// Do not use the slice after calling Unmap().
func (b *Buffer) GetMappedRange(offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return nil, ErrBufferDestroyed
	}
	if b.mapState == BufferMapStatePending {
		return nil, ErrBufferMapPending
	}
	if b.mapState != BufferMapStateMapped {
		return nil, ErrBufferNotMapped
	}

	end := b.mapOffset + b.mapSize
	if size == WholeMapSize && offset <= end {
		size = end - offset
	}
	if offset < b.mapOffset {
		return nil, fmt.Errorf("%w: offset %d is before mapped region start %d",
			ErrInvalidMapRange, offset, b.mapOffset)
	}
	if offset > end || size > end-offset {
		return nil, fmt.Errorf("%w: offset %d + size %d exceeds mapped region end %d",
			ErrInvalidMapRange, offset, size, end)
	}
	return b.data[offset : offset+size : offset+size], nil
}

// Unmap unmaps the buffer. A pending map request completes with
// UnmappedBeforeCallback. If the buffer is already unmapped, this is a
// no-op.
func (b *Buffer) Unmap() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return ErrBufferDestroyed
	}
	if b.pending != nil {
		b.pending.canceled = BufferMapAsyncStatusUnmappedBeforeCallback
		b.pending = nil
	}
	b.mapState = BufferMapStateUnmapped
	b.mapOffset, b.mapSize = 0, 0
	return nil
}

// Destroy frees the buffer's memory. A pending map request completes with
// DestroyedBeforeCallback. This method is idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	if b.pending != nil {
		b.pending.canceled = BufferMapAsyncStatusDestroyedBeforeCallback
		b.pending = nil
	}
	b.mapState = BufferMapStateUnmapped
	b.data = nil
}

// IsDestroyed returns true if the buffer has been destroyed.
func (b *Buffer) IsDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// Release drops the caller's reference. The last release destroys the
// buffer.
func (b *Buffer) Release() { ref.APIRelease(b) }

// Finalize destroys the buffer and drops its device reference.
func (b *Buffer) Finalize() {
	b.Destroy()
	releaseDevice(&b.device)
}
