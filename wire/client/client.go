package client

import (
	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/internal/logging"
	"github.com/gogpu/wgcore/internal/telemetry"
	"github.com/gogpu/wgcore/ref"
	"github.com/gogpu/wgcore/wire"
)

// ErrorCallback receives device errors reported by the server and errors
// the client detects locally.
type ErrorCallback func(typ wire.ErrorType, message string)

// Client is the client half of one wire connection. It proxies a single
// device on the server.
//
// Thread safety: Client and the objects it creates are not safe for
// concurrent use. Callbacks run on the goroutine calling HandleCommands or
// the method that completes them.
type Client struct {
	ser     wire.Serializer
	onError ErrorCallback
	lost    bool

	buffers        *ObjectAllocator[*Buffer]
	encoders       *ObjectAllocator[*CommandEncoder]
	commandBuffers *ObjectAllocator[*CommandBuffer]
	queues         *ObjectAllocator[*Queue]
	fences         *ObjectAllocator[*Fence]
}

// New creates a client that sends commands through ser.
func New(ser wire.Serializer) *Client {
	c := &Client{ser: ser}
	c.buffers = NewObjectAllocator(func(h wire.ObjectHandle) *Buffer {
		return &Buffer{object: object{client: c, handle: h}, requests: make(map[uint32]*mapRequest)}
	})
	c.encoders = NewObjectAllocator(func(h wire.ObjectHandle) *CommandEncoder {
		return &CommandEncoder{object: object{client: c, handle: h}, builder: builderCallback{canCall: true}}
	})
	c.commandBuffers = NewObjectAllocator(func(h wire.ObjectHandle) *CommandBuffer {
		return &CommandBuffer{object: object{client: c, handle: h}}
	})
	c.queues = NewObjectAllocator(func(h wire.ObjectHandle) *Queue {
		return &Queue{object: object{client: c, handle: h}}
	})
	c.fences = NewObjectAllocator(func(h wire.ObjectHandle) *Fence {
		return &Fence{object: object{client: c, handle: h}}
	})
	return c
}

// object is the common part of every client-side proxy.
type object struct {
	ref.RefCounted
	client *Client
	handle wire.ObjectHandle
}

// Handle returns the wire handle of the object.
func (o *object) Handle() wire.ObjectHandle { return o.handle }

// destroy tells the server to drop the object.
func (o *object) destroy(typ wire.ObjectType) {
	o.client.serialize(&wire.DestroyObject{ObjectType: typ, ObjectID: o.handle.ID})
}

// SetErrorCallback sets the callback for device errors.
func (c *Client) SetErrorCallback(cb ErrorCallback) { c.onError = cb }

// IsDisconnected reports whether Disconnect was called.
func (c *Client) IsDisconnected() bool { return c.lost }

// Flush sends the commands queued since the last Flush.
func (c *Client) Flush() error { return c.ser.Flush() }

func (c *Client) serialize(cmd wire.Command) {
	if c.lost {
		return
	}
	c.ser.SerializeCommand(cmd)
}

func (c *Client) handleError(typ wire.ErrorType, message string) {
	logging.Logger().Debug("wire/client: device error", "type", typ, "message", message)
	if c.onError != nil {
		c.onError(typ, message)
	}
}

func stale(kind string, h wire.ObjectHandle) {
	telemetry.WireStale(kind)
	logging.Logger().Debug("wire/client: stale reply ignored", "kind", kind, "handle", h)
}

// CreateBuffer creates a buffer on the server. A buffer mapped at creation
// is write-mapped at once.
func (c *Client) CreateBuffer(desc wgcore.BufferDescriptor) *Buffer {
	b, h := c.buffers.New()
	b.size = desc.Size
	b.usage = desc.Usage
	if desc.MappedAtCreation && desc.Size <= wgcore.MaxBufferSize {
		b.mapped = make([]byte, desc.Size)
		b.writeMapped = true
	}
	c.serialize(&wire.DeviceCreateBuffer{
		Result:           h,
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            uint64(desc.Usage),
		MappedAtCreation: desc.MappedAtCreation,
	})
	return b
}

// CreateCommandEncoder creates a command encoder on the server.
func (c *Client) CreateCommandEncoder(label string) *CommandEncoder {
	e, h := c.encoders.New()
	c.serialize(&wire.DeviceCreateCommandEncoder{Result: h, Label: label})
	return e
}

// GetQueue returns a new handle to the device queue.
func (c *Client) GetQueue() *Queue {
	q, h := c.queues.New()
	c.serialize(&wire.DeviceGetQueue{Result: h})
	return q
}

// HandleCommands processes one frame payload from the server. It stops at
// the first protocol error.
func (c *Client) HandleCommands(payload []byte) error {
	return wire.DecodeCommands(payload, c.handleCommand)
}

func (c *Client) handleCommand(cmd wire.Command) error {
	telemetry.WireCommand("client", cmd.ID().String())
	switch cmd := cmd.(type) {
	case *wire.BufferMapAsyncCallback:
		return c.handleMapAsyncCallback(cmd)
	case *wire.FenceUpdateCompletedValue:
		return c.handleFenceUpdate(cmd)
	case *wire.BuilderErrorCallback:
		return c.handleBuilderError(cmd)
	case *wire.DeviceErrorCallback:
		c.handleError(cmd.Type, cmd.Message)
		return nil
	default:
		return wire.ProtocolError("client received %v", cmd.ID())
	}
}

// Disconnect marks the connection lost. Every pending map, fence and
// builder callback fires with a device-lost status, and later commands are
// dropped. Objects must still be released.
func (c *Client) Disconnect() {
	if c.lost {
		return
	}
	c.lost = true
	logging.Logger().Info("wire/client: disconnected")

	for _, b := range c.buffers.live() {
		b.mapped = nil
		b.clearRequests(wgcore.BufferMapAsyncStatusDeviceLost)
	}
	for _, f := range c.fences.live() {
		f.clearRequests(FenceCompletionStatusDeviceLost)
	}
	for _, e := range c.encoders.live() {
		e.builder.call(wire.BuilderStatusDeviceLost, "wire/client: disconnected")
	}
	for _, cb := range c.commandBuffers.live() {
		cb.builder.call(wire.BuilderStatusDeviceLost, "wire/client: disconnected")
	}
	c.handleError(wire.ErrorTypeDeviceLost, "wire/client: disconnected")
}
