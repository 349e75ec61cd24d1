package wire

import "fmt"

// CommandID identifies a command on the wire.
type CommandID uint32

// Client to server commands.
const (
	CmdDeviceCreateBuffer CommandID = iota + 1
	CmdDeviceCreateCommandEncoder
	CmdDeviceGetQueue
	CmdBufferMapAsync
	CmdBufferUpdateMappedData
	CmdBufferUnmap
	CmdBufferDestroy
	CmdCommandEncoderFinish
	CmdQueueSubmit
	CmdQueueCreateFence
	CmdQueueSignal
	CmdDestroyObject
)

// Server to client commands.
const (
	CmdBufferMapAsyncCallback CommandID = iota + 128
	CmdFenceUpdateCompletedValue
	CmdBuilderErrorCallback
	CmdDeviceErrorCallback
)

var commandNames = map[CommandID]string{
	CmdDeviceCreateBuffer:         "DeviceCreateBuffer",
	CmdDeviceCreateCommandEncoder: "DeviceCreateCommandEncoder",
	CmdDeviceGetQueue:             "DeviceGetQueue",
	CmdBufferMapAsync:             "BufferMapAsync",
	CmdBufferUpdateMappedData:     "BufferUpdateMappedData",
	CmdBufferUnmap:                "BufferUnmap",
	CmdBufferDestroy:              "BufferDestroy",
	CmdCommandEncoderFinish:       "CommandEncoderFinish",
	CmdQueueSubmit:                "QueueSubmit",
	CmdQueueCreateFence:           "QueueCreateFence",
	CmdQueueSignal:                "QueueSignal",
	CmdDestroyObject:              "DestroyObject",
	CmdBufferMapAsyncCallback:     "BufferMapAsyncCallback",
	CmdFenceUpdateCompletedValue:  "FenceUpdateCompletedValue",
	CmdBuilderErrorCallback:       "BuilderErrorCallback",
	CmdDeviceErrorCallback:        "DeviceErrorCallback",
}

// String returns the command name.
func (id CommandID) String() string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return fmt.Sprintf("CommandID(%d)", uint32(id))
}

// Command is one encodable wire command. The set of commands is closed.
type Command interface {
	ID() CommandID
	encode(e *encoder)
	decode(d *decoder)
}

func newCommand(id CommandID) Command {
	switch id {
	case CmdDeviceCreateBuffer:
		return &DeviceCreateBuffer{}
	case CmdDeviceCreateCommandEncoder:
		return &DeviceCreateCommandEncoder{}
	case CmdDeviceGetQueue:
		return &DeviceGetQueue{}
	case CmdBufferMapAsync:
		return &BufferMapAsync{}
	case CmdBufferUpdateMappedData:
		return &BufferUpdateMappedData{}
	case CmdBufferUnmap:
		return &BufferUnmap{}
	case CmdBufferDestroy:
		return &BufferDestroy{}
	case CmdCommandEncoderFinish:
		return &CommandEncoderFinish{}
	case CmdQueueSubmit:
		return &QueueSubmit{}
	case CmdQueueCreateFence:
		return &QueueCreateFence{}
	case CmdQueueSignal:
		return &QueueSignal{}
	case CmdDestroyObject:
		return &DestroyObject{}
	case CmdBufferMapAsyncCallback:
		return &BufferMapAsyncCallback{}
	case CmdFenceUpdateCompletedValue:
		return &FenceUpdateCompletedValue{}
	case CmdBuilderErrorCallback:
		return &BuilderErrorCallback{}
	case CmdDeviceErrorCallback:
		return &DeviceErrorCallback{}
	}
	return nil
}

// =============================================================================
// Client to server
// =============================================================================

// DeviceCreateBuffer creates a buffer under the client-chosen handle.
type DeviceCreateBuffer struct {
	Result           ObjectHandle
	Label            string
	Size             uint64
	Usage            uint64
	MappedAtCreation bool
}

func (*DeviceCreateBuffer) ID() CommandID { return CmdDeviceCreateBuffer }

func (c *DeviceCreateBuffer) encode(e *encoder) {
	e.handle(c.Result)
	e.str(c.Label)
	e.u64(c.Size)
	e.u64(c.Usage)
	e.boolean(c.MappedAtCreation)
}

func (c *DeviceCreateBuffer) decode(d *decoder) {
	c.Result = d.handle("result")
	c.Label = d.str("label")
	c.Size = d.u64("size")
	c.Usage = d.u64("usage")
	c.MappedAtCreation = d.boolean("mappedAtCreation")
}

// DeviceCreateCommandEncoder creates a command encoder.
type DeviceCreateCommandEncoder struct {
	Result ObjectHandle
	Label  string
}

func (*DeviceCreateCommandEncoder) ID() CommandID { return CmdDeviceCreateCommandEncoder }

func (c *DeviceCreateCommandEncoder) encode(e *encoder) {
	e.handle(c.Result)
	e.str(c.Label)
}

func (c *DeviceCreateCommandEncoder) decode(d *decoder) {
	c.Result = d.handle("result")
	c.Label = d.str("label")
}

// DeviceGetQueue binds the device queue to a handle.
type DeviceGetQueue struct {
	Result ObjectHandle
}

func (*DeviceGetQueue) ID() CommandID { return CmdDeviceGetQueue }

func (c *DeviceGetQueue) encode(e *encoder) { e.handle(c.Result) }
func (c *DeviceGetQueue) decode(d *decoder) { c.Result = d.handle("result") }

// BufferMapAsync asks the server to map a range of a buffer.
type BufferMapAsync struct {
	Buffer        uint32
	RequestSerial uint32
	Offset        uint64
	Size          uint64
	IsWrite       bool
}

func (*BufferMapAsync) ID() CommandID { return CmdBufferMapAsync }

func (c *BufferMapAsync) encode(e *encoder) {
	e.u32(c.Buffer)
	e.u32(c.RequestSerial)
	e.u64(c.Offset)
	e.u64(c.Size)
	e.boolean(c.IsWrite)
}

func (c *BufferMapAsync) decode(d *decoder) {
	c.Buffer = d.u32("buffer")
	c.RequestSerial = d.u32("requestSerial")
	c.Offset = d.u64("offset")
	c.Size = d.u64("size")
	c.IsWrite = d.boolean("isWrite")
}

// BufferUpdateMappedData carries the client's writes into a write-mapped
// range before it is unmapped.
type BufferUpdateMappedData struct {
	Buffer uint32
	Offset uint64
	Data   []byte
}

func (*BufferUpdateMappedData) ID() CommandID { return CmdBufferUpdateMappedData }

func (c *BufferUpdateMappedData) encode(e *encoder) {
	e.u32(c.Buffer)
	e.u64(c.Offset)
	e.bytes(c.Data)
}

func (c *BufferUpdateMappedData) decode(d *decoder) {
	c.Buffer = d.u32("buffer")
	c.Offset = d.u64("offset")
	c.Data = d.bytes("data")
}

// BufferUnmap unmaps a buffer.
type BufferUnmap struct {
	Buffer uint32
}

func (*BufferUnmap) ID() CommandID { return CmdBufferUnmap }

func (c *BufferUnmap) encode(e *encoder) { e.u32(c.Buffer) }
func (c *BufferUnmap) decode(d *decoder) { c.Buffer = d.u32("buffer") }

// BufferDestroy destroys a buffer's storage. The handle stays live until
// DestroyObject.
type BufferDestroy struct {
	Buffer uint32
}

func (*BufferDestroy) ID() CommandID { return CmdBufferDestroy }

func (c *BufferDestroy) encode(e *encoder) { e.u32(c.Buffer) }
func (c *BufferDestroy) decode(d *decoder) { c.Buffer = d.u32("buffer") }

// CommandEncoderFinish produces a command buffer from an encoder.
type CommandEncoderFinish struct {
	Encoder uint32
	Result  ObjectHandle
}

func (*CommandEncoderFinish) ID() CommandID { return CmdCommandEncoderFinish }

func (c *CommandEncoderFinish) encode(e *encoder) {
	e.u32(c.Encoder)
	e.handle(c.Result)
}

func (c *CommandEncoderFinish) decode(d *decoder) {
	c.Encoder = d.u32("encoder")
	c.Result = d.handle("result")
}

// QueueSubmit submits command buffers by id.
type QueueSubmit struct {
	Queue          uint32
	CommandBuffers []uint32
}

func (*QueueSubmit) ID() CommandID { return CmdQueueSubmit }

func (c *QueueSubmit) encode(e *encoder) {
	e.u32(c.Queue)
	e.ids(c.CommandBuffers)
}

func (c *QueueSubmit) decode(d *decoder) {
	c.Queue = d.u32("queue")
	c.CommandBuffers = d.ids("commandBuffers")
}

// QueueCreateFence creates a fence on a queue.
type QueueCreateFence struct {
	Queue        uint32
	Result       ObjectHandle
	InitialValue uint64
}

func (*QueueCreateFence) ID() CommandID { return CmdQueueCreateFence }

func (c *QueueCreateFence) encode(e *encoder) {
	e.u32(c.Queue)
	e.handle(c.Result)
	e.u64(c.InitialValue)
}

func (c *QueueCreateFence) decode(d *decoder) {
	c.Queue = d.u32("queue")
	c.Result = d.handle("result")
	c.InitialValue = d.u64("initialValue")
}

// QueueSignal signals a fence once the work submitted so far retires.
type QueueSignal struct {
	Queue uint32
	Fence uint32
	Value uint64
}

func (*QueueSignal) ID() CommandID { return CmdQueueSignal }

func (c *QueueSignal) encode(e *encoder) {
	e.u32(c.Queue)
	e.u32(c.Fence)
	e.u64(c.Value)
}

func (c *QueueSignal) decode(d *decoder) {
	c.Queue = d.u32("queue")
	c.Fence = d.u32("fence")
	c.Value = d.u64("value")
}

// DestroyObject drops the server's reference to an object and frees its id.
type DestroyObject struct {
	ObjectType ObjectType
	ObjectID   uint32
}

func (*DestroyObject) ID() CommandID { return CmdDestroyObject }

func (c *DestroyObject) encode(e *encoder) {
	e.u32(uint32(c.ObjectType))
	e.u32(c.ObjectID)
}

func (c *DestroyObject) decode(d *decoder) {
	c.ObjectType = ObjectType(d.u32("objectType"))
	c.ObjectID = d.u32("id")
}

// =============================================================================
// Server to client
// =============================================================================

// BufferMapAsyncCallback answers a BufferMapAsync. Status holds a
// wgcore.BufferMapAsyncStatus value. Data carries the mapped contents of a
// successful read and is empty for writes.
type BufferMapAsyncCallback struct {
	Buffer        ObjectHandle
	RequestSerial uint32
	Status        uint32
	IsWrite       bool
	Data          []byte
}

func (*BufferMapAsyncCallback) ID() CommandID { return CmdBufferMapAsyncCallback }

func (c *BufferMapAsyncCallback) encode(e *encoder) {
	e.handle(c.Buffer)
	e.u32(c.RequestSerial)
	e.u32(c.Status)
	e.boolean(c.IsWrite)
	e.bytes(c.Data)
}

func (c *BufferMapAsyncCallback) decode(d *decoder) {
	c.Buffer = d.handle("buffer")
	c.RequestSerial = d.u32("requestSerial")
	c.Status = d.u32("status")
	c.IsWrite = d.boolean("isWrite")
	c.Data = d.bytes("data")
}

// FenceUpdateCompletedValue advances a fence's completed value.
type FenceUpdateCompletedValue struct {
	Fence ObjectHandle
	Value uint64
}

func (*FenceUpdateCompletedValue) ID() CommandID { return CmdFenceUpdateCompletedValue }

func (c *FenceUpdateCompletedValue) encode(e *encoder) {
	e.handle(c.Fence)
	e.u64(c.Value)
}

func (c *FenceUpdateCompletedValue) decode(d *decoder) {
	c.Fence = d.handle("fence")
	c.Value = d.u64("value")
}

// BuilderErrorCallback reports the result of building an object.
type BuilderErrorCallback struct {
	ObjectType ObjectType
	Handle     ObjectHandle
	Status     BuilderStatus
	Message    string
}

func (*BuilderErrorCallback) ID() CommandID { return CmdBuilderErrorCallback }

func (c *BuilderErrorCallback) encode(e *encoder) {
	e.u32(uint32(c.ObjectType))
	e.handle(c.Handle)
	e.u32(uint32(c.Status))
	e.str(c.Message)
}

func (c *BuilderErrorCallback) decode(d *decoder) {
	c.ObjectType = ObjectType(d.u32("objectType"))
	c.Handle = d.handle("handle")
	c.Status = BuilderStatus(d.u32("status"))
	c.Message = d.str("message")
}

// DeviceErrorCallback reports an error that no object callback claims.
type DeviceErrorCallback struct {
	Type    ErrorType
	Message string
}

func (*DeviceErrorCallback) ID() CommandID { return CmdDeviceErrorCallback }

func (c *DeviceErrorCallback) encode(e *encoder) {
	e.u32(uint32(c.Type))
	e.str(c.Message)
}

func (c *DeviceErrorCallback) decode(d *decoder) {
	c.Type = ErrorType(d.u32("type"))
	c.Message = d.str("message")
}
