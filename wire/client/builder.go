package client

import (
	"github.com/gogpu/wgcore/ref"
	"github.com/gogpu/wgcore/wire"
)

// BuilderCallback receives the result of building an object.
type BuilderCallback func(status wire.BuilderStatus, message string)

// builderCallback is the once-only callback state of a builder or its
// product.
type builderCallback struct {
	fn      BuilderCallback
	canCall bool
}

// call runs the callback if it is still owed and reports whether it ran.
func (b *builderCallback) call(status wire.BuilderStatus, message string) bool {
	if !b.canCall || b.fn == nil {
		return false
	}
	b.canCall = false
	b.fn(status, message)
	return true
}

// CommandEncoder records commands into a command buffer.
type CommandEncoder struct {
	object
	builder builderCallback
}

// SetErrorCallback sets the callback that receives the result of Finish.
func (e *CommandEncoder) SetErrorCallback(cb BuilderCallback) { e.builder.fn = cb }

// Finish produces the command buffer. The error callback moves to the
// command buffer, so it fires at most once for the pair.
func (e *CommandEncoder) Finish() *CommandBuffer {
	cb, h := e.client.commandBuffers.New()
	cb.builder = e.builder
	e.builder.canCall = false
	e.client.serialize(&wire.CommandEncoderFinish{Encoder: e.handle.ID, Result: h})
	return cb
}

// Release drops a reference.
func (e *CommandEncoder) Release() { ref.Release(e) }

// Finalize fires an unconsumed callback with Unknown and frees the handle.
func (e *CommandEncoder) Finalize() {
	e.builder.call(wire.BuilderStatusUnknown, "wire/client: command encoder released")
	e.destroy(wire.ObjectTypeCommandEncoder)
	e.client.encoders.Free(e.handle.ID)
}

// CommandBuffer is the product of CommandEncoder.Finish.
type CommandBuffer struct {
	object
	builder builderCallback
}

// Release drops a reference.
func (b *CommandBuffer) Release() { ref.Release(b) }

// Finalize fires an unconsumed callback with Unknown and frees the handle.
func (b *CommandBuffer) Finalize() {
	b.builder.call(wire.BuilderStatusUnknown, "wire/client: command buffer released")
	b.destroy(wire.ObjectTypeCommandBuffer)
	b.client.commandBuffers.Free(b.handle.ID)
}

func (c *Client) handleBuilderError(cmd *wire.BuilderErrorCallback) error {
	var b *builderCallback
	switch cmd.ObjectType {
	case wire.ObjectTypeCommandEncoder:
		if e, ok := c.encoders.lookup(cmd.Handle); ok {
			b = &e.builder
		}
	case wire.ObjectTypeCommandBuffer:
		if cb, ok := c.commandBuffers.lookup(cmd.Handle); ok {
			b = &cb.builder
		}
	default:
		return wire.ProtocolError("builder callback for %v", cmd.ObjectType)
	}
	if b == nil {
		stale("builder", cmd.Handle)
		return nil
	}
	if !b.call(cmd.Status, cmd.Message) &&
		cmd.Status != wire.BuilderStatusSuccess && cmd.Status != wire.BuilderStatusUnknown {
		c.handleError(wire.ErrorTypeValidation, cmd.Message)
	}
	return nil
}
