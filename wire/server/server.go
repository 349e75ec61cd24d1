package server

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/internal/logging"
	"github.com/gogpu/wgcore/internal/telemetry"
	"github.com/gogpu/wgcore/wire"
)

// commandEncoder is the server record of a client command encoder. The
// core has no encoder object, so the record only tracks validity.
type commandEncoder struct {
	label    string
	finished bool
}

// fence is the server record of a client fence.
type fence struct {
	queue    uint32
	signaled uint64
}

// Server executes the commands of one client connection on a device.
//
// Thread safety: HandleCommands, Tick and Close must not run concurrently.
// Replies produced by spontaneous callbacks go through the serializer,
// which is safe for concurrent use.
type Server struct {
	inst *wgcore.Instance
	dev  *wgcore.Device
	ser  wire.Serializer

	buffers        knownObjects[*wgcore.Buffer]
	encoders       knownObjects[*commandEncoder]
	commandBuffers knownObjects[string]
	queues         knownObjects[*wgcore.Queue]
	fences         knownObjects[*fence]
}

// New creates a server for dev that sends replies through ser. The caller
// keeps ownership of inst and dev.
func New(inst *wgcore.Instance, dev *wgcore.Device, ser wire.Serializer) *Server {
	return &Server{
		inst:           inst,
		dev:            dev,
		ser:            ser,
		buffers:        newKnownObjects[*wgcore.Buffer](wire.ObjectTypeBuffer),
		encoders:       newKnownObjects[*commandEncoder](wire.ObjectTypeCommandEncoder),
		commandBuffers: newKnownObjects[string](wire.ObjectTypeCommandBuffer),
		queues:         newKnownObjects[*wgcore.Queue](wire.ObjectTypeQueue),
		fences:         newKnownObjects[*fence](wire.ObjectTypeFence),
	}
}

// HandleCommands ticks the device and executes one frame payload from the
// client. It stops at the first protocol error. Replies are queued until
// Flush or Tick.
func (s *Server) HandleCommands(payload []byte) error {
	if err := s.dev.Tick(); err != nil && !errors.Is(err, wgcore.ErrDeviceLost) {
		logging.Logger().Warn("wire/server: device tick", "err", err)
	}
	return wire.DecodeCommands(payload, s.handleCommand)
}

// Tick completes finished device work and flushes the replies it produced.
func (s *Server) Tick() error {
	s.inst.ProcessEvents()
	return s.ser.Flush()
}

// Flush sends the queued replies.
func (s *Server) Flush() error { return s.ser.Flush() }

// Close releases every object the client left alive.
func (s *Server) Close() {
	s.buffers.each(func(id uint32, e *known[*wgcore.Buffer]) {
		if e.valid {
			e.obj.Release()
		}
		*e = known[*wgcore.Buffer]{}
	})
	s.encoders = newKnownObjects[*commandEncoder](wire.ObjectTypeCommandEncoder)
	s.commandBuffers = newKnownObjects[string](wire.ObjectTypeCommandBuffer)
	s.queues = newKnownObjects[*wgcore.Queue](wire.ObjectTypeQueue)
	s.fences = newKnownObjects[*fence](wire.ObjectTypeFence)
}

// LiveObjects returns the number of live client objects of typ.
func (s *Server) LiveObjects(typ wire.ObjectType) int {
	switch typ {
	case wire.ObjectTypeBuffer:
		return s.buffers.live()
	case wire.ObjectTypeCommandEncoder:
		return s.encoders.live()
	case wire.ObjectTypeCommandBuffer:
		return s.commandBuffers.live()
	case wire.ObjectTypeQueue:
		return s.queues.live()
	case wire.ObjectTypeFence:
		return s.fences.live()
	}
	return 0
}

func (s *Server) deviceError(typ wire.ErrorType, message string) {
	logging.Logger().Debug("wire/server: device error", "type", typ, "message", message)
	s.ser.SerializeCommand(&wire.DeviceErrorCallback{Type: typ, Message: message})
}

// reportError sends err as a device error, classified by its cause.
func (s *Server) reportError(err error) {
	typ := wire.ErrorTypeValidation
	if errors.Is(err, wgcore.ErrDeviceLost) {
		typ = wire.ErrorTypeDeviceLost
	}
	s.deviceError(typ, err.Error())
}

func (s *Server) handleCommand(cmd wire.Command) error {
	telemetry.WireCommand("server", cmd.ID().String())
	switch cmd := cmd.(type) {
	case *wire.DeviceCreateBuffer:
		return s.createBuffer(cmd)
	case *wire.DeviceCreateCommandEncoder:
		return s.createCommandEncoder(cmd)
	case *wire.DeviceGetQueue:
		return s.getQueue(cmd)
	case *wire.BufferMapAsync:
		return s.mapAsync(cmd)
	case *wire.BufferUpdateMappedData:
		return s.updateMappedData(cmd)
	case *wire.BufferUnmap:
		return s.unmap(cmd)
	case *wire.BufferDestroy:
		return s.destroyBuffer(cmd)
	case *wire.CommandEncoderFinish:
		return s.finish(cmd)
	case *wire.QueueSubmit:
		return s.submit(cmd)
	case *wire.QueueCreateFence:
		return s.createFence(cmd)
	case *wire.QueueSignal:
		return s.signal(cmd)
	case *wire.DestroyObject:
		return s.destroyObject(cmd)
	default:
		return wire.ProtocolError("server received %v", cmd.ID())
	}
}

// =============================================================================
// Device
// =============================================================================

func (s *Server) createBuffer(cmd *wire.DeviceCreateBuffer) error {
	e, err := s.buffers.allocate(cmd.Result)
	if err != nil {
		return err
	}
	b, err := s.dev.CreateBuffer(wgcore.BufferDescriptor{
		Label:            cmd.Label,
		Size:             cmd.Size,
		Usage:            gputypes.BufferUsage(cmd.Usage),
		MappedAtCreation: cmd.MappedAtCreation,
	})
	if err != nil {
		s.reportError(err)
		return nil
	}
	e.obj, e.valid = b, true
	return nil
}

func (s *Server) createCommandEncoder(cmd *wire.DeviceCreateCommandEncoder) error {
	e, err := s.encoders.allocate(cmd.Result)
	if err != nil {
		return err
	}
	e.obj = &commandEncoder{label: cmd.Label}
	e.valid = !s.dev.IsDestroyed()
	return nil
}

func (s *Server) getQueue(cmd *wire.DeviceGetQueue) error {
	e, err := s.queues.allocate(cmd.Result)
	if err != nil {
		return err
	}
	e.obj, e.valid = s.dev.Queue(), true
	return nil
}

// =============================================================================
// Buffer
// =============================================================================

func (s *Server) mapAsync(cmd *wire.BufferMapAsync) error {
	e, err := s.buffers.get(cmd.Buffer)
	if err != nil {
		return err
	}
	h := s.buffers.handle(cmd.Buffer)
	reply := func(status wgcore.BufferMapAsyncStatus, data []byte) {
		s.ser.SerializeCommand(&wire.BufferMapAsyncCallback{
			Buffer:        h,
			RequestSerial: cmd.RequestSerial,
			Status:        uint32(status),
			IsWrite:       cmd.IsWrite,
			Data:          data,
		})
	}
	if !e.valid {
		reply(wgcore.BufferMapAsyncStatusValidationError, nil)
		return nil
	}

	b := e.obj
	mode := gputypes.MapModeRead
	if cmd.IsWrite {
		mode = gputypes.MapModeWrite
	}
	b.MapAsync(mode, cmd.Offset, cmd.Size, wgcore.BufferMapCallbackInfo{
		Mode: wgcore.CallbackModeAllowSpontaneous,
		Callback: func(status wgcore.BufferMapAsyncStatus, _ string) {
			if status != wgcore.BufferMapAsyncStatusSuccess || cmd.IsWrite {
				reply(status, nil)
				return
			}
			data, err := b.GetMappedRange(cmd.Offset, cmd.Size)
			if err != nil {
				// Unmapped or destroyed between completion and this read.
				status = wgcore.BufferMapAsyncStatusUnmappedBeforeCallback
				if errors.Is(err, wgcore.ErrBufferDestroyed) {
					status = wgcore.BufferMapAsyncStatusDestroyedBeforeCallback
				}
				reply(status, nil)
				return
			}
			reply(status, append([]byte(nil), data...))
		},
	})
	return nil
}

func (s *Server) updateMappedData(cmd *wire.BufferUpdateMappedData) error {
	e, err := s.buffers.get(cmd.Buffer)
	if err != nil {
		return err
	}
	if !e.valid {
		return nil
	}
	dst, err := e.obj.GetMappedRange(cmd.Offset, uint64(len(cmd.Data)))
	if err != nil {
		s.reportError(fmt.Errorf("wire/server: update mapped data: %w", err))
		return nil
	}
	copy(dst, cmd.Data)
	return nil
}

func (s *Server) unmap(cmd *wire.BufferUnmap) error {
	e, err := s.buffers.get(cmd.Buffer)
	if err != nil {
		return err
	}
	if !e.valid {
		return nil
	}
	if err := e.obj.Unmap(); err != nil {
		s.reportError(err)
	}
	return nil
}

func (s *Server) destroyBuffer(cmd *wire.BufferDestroy) error {
	e, err := s.buffers.get(cmd.Buffer)
	if err != nil {
		return err
	}
	if e.valid {
		e.obj.Destroy()
	}
	return nil
}

// =============================================================================
// Command encoder
// =============================================================================

func (s *Server) finish(cmd *wire.CommandEncoderFinish) error {
	enc, err := s.encoders.get(cmd.Encoder)
	if err != nil {
		return err
	}
	valid := enc.valid && !enc.obj.finished && !s.dev.IsDestroyed()
	label := enc.obj.label
	enc.obj.finished = true

	out, err := s.commandBuffers.allocate(cmd.Result)
	if err != nil {
		return err
	}
	out.obj, out.valid = label, valid

	reply := &wire.BuilderErrorCallback{
		ObjectType: wire.ObjectTypeCommandBuffer,
		Handle:     cmd.Result,
		Status:     wire.BuilderStatusSuccess,
	}
	if !valid {
		reply.Status = wire.BuilderStatusError
		reply.Message = fmt.Sprintf("wire/server: command encoder %q is invalid or already finished", label)
		if s.dev.IsDestroyed() {
			reply.Status = wire.BuilderStatusDeviceLost
			reply.Message = wgcore.ErrDeviceLost.Error()
		}
	}
	s.ser.SerializeCommand(reply)
	return nil
}

// =============================================================================
// Queue
// =============================================================================

func (s *Server) submit(cmd *wire.QueueSubmit) error {
	q, err := s.queues.get(cmd.Queue)
	if err != nil {
		return err
	}
	for _, id := range cmd.CommandBuffers {
		cb, err := s.commandBuffers.get(id)
		if err != nil {
			return err
		}
		if !cb.valid {
			s.deviceError(wire.ErrorTypeValidation, fmt.Sprintf("wire/server: submit of invalid command buffer %q", cb.obj))
			return nil
		}
	}
	if _, err := q.obj.Submit(); err != nil {
		s.reportError(err)
	}
	return nil
}

func (s *Server) createFence(cmd *wire.QueueCreateFence) error {
	if _, err := s.queues.get(cmd.Queue); err != nil {
		return err
	}
	e, err := s.fences.allocate(cmd.Result)
	if err != nil {
		return err
	}
	e.obj = &fence{queue: cmd.Queue, signaled: cmd.InitialValue}
	e.valid = true
	return nil
}

func (s *Server) signal(cmd *wire.QueueSignal) error {
	q, err := s.queues.get(cmd.Queue)
	if err != nil {
		return err
	}
	f, err := s.fences.get(cmd.Fence)
	if err != nil {
		return err
	}
	if f.obj.queue != cmd.Queue {
		s.deviceError(wire.ErrorTypeValidation, "wire/server: fence signaled on a different queue")
		return nil
	}
	if cmd.Value <= f.obj.signaled {
		s.deviceError(wire.ErrorTypeValidation, "wire/server: fence value less than or equal to signaled value")
		return nil
	}
	f.obj.signaled = cmd.Value

	h, value := s.fences.handle(cmd.Fence), cmd.Value
	q.obj.OnSubmittedWorkDone(wgcore.QueueWorkDoneCallbackInfo{
		Mode: wgcore.CallbackModeAllowSpontaneous,
		Callback: func(status wgcore.QueueWorkDoneStatus) {
			if status != wgcore.QueueWorkDoneStatusSuccess {
				s.deviceError(wire.ErrorTypeDeviceLost, "wire/server: fence signal: "+status.String())
				return
			}
			s.ser.SerializeCommand(&wire.FenceUpdateCompletedValue{Fence: h, Value: value})
		},
	})
	return nil
}

// =============================================================================
// Object lifetime
// =============================================================================

func (s *Server) destroyObject(cmd *wire.DestroyObject) error {
	var err error
	switch cmd.ObjectType {
	case wire.ObjectTypeBuffer:
		var e known[*wgcore.Buffer]
		if e, err = s.buffers.free(cmd.ObjectID); err == nil && e.valid {
			e.obj.Release()
		}
	case wire.ObjectTypeCommandEncoder:
		_, err = s.encoders.free(cmd.ObjectID)
	case wire.ObjectTypeCommandBuffer:
		_, err = s.commandBuffers.free(cmd.ObjectID)
	case wire.ObjectTypeQueue:
		// The queue belongs to the device; only the handle goes away.
		_, err = s.queues.free(cmd.ObjectID)
	case wire.ObjectTypeFence:
		_, err = s.fences.free(cmd.ObjectID)
	default:
		err = wire.ProtocolError("destroy of %v", cmd.ObjectType)
	}
	return err
}
