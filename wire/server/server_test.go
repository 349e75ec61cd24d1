package server

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/wire"
	"github.com/gogpu/wgcore/wire/client"
)

const readUsage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst

// loopback connects a client and a server through in-memory frames.
type loopback struct {
	t *testing.T

	inst *wgcore.Instance
	dev  *wgcore.Device

	toServer bytes.Buffer
	toClient bytes.Buffer
	client   *client.Client
	server   *Server

	errors []wire.ErrorType
}

func newLoopback(t *testing.T) *loopback {
	t.Helper()
	inst, err := wgcore.NewInstance(wgcore.WithBackend(backend.BackendNull))
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}
	t.Cleanup(inst.Release)

	lb := &loopback{t: t, inst: inst, dev: requestDevice(t, inst)}
	lb.client = client.New(wire.NewBufferedSerializer(&lb.toServer))
	lb.client.SetErrorCallback(func(typ wire.ErrorType, _ string) { lb.errors = append(lb.errors, typ) })
	lb.server = New(inst, lb.dev, wire.NewBufferedSerializer(&lb.toClient))
	t.Cleanup(lb.server.Close)
	return lb
}

func requestDevice(t *testing.T, inst *wgcore.Instance) *wgcore.Device {
	t.Helper()
	var adapter *wgcore.Adapter
	inst.RequestAdapter(wgcore.AdapterOptions{}, wgcore.RequestAdapterCallbackInfo{
		Mode:     wgcore.CallbackModeAllowSpontaneous,
		Callback: func(_ wgcore.RequestAdapterStatus, a *wgcore.Adapter, _ string) { adapter = a },
	})
	if adapter == nil {
		t.Fatal("RequestAdapter did not complete inline")
	}
	var dev *wgcore.Device
	adapter.RequestDevice(wgcore.DeviceDescriptor{Label: "wire"}, wgcore.RequestDeviceCallbackInfo{
		Mode:     wgcore.CallbackModeAllowSpontaneous,
		Callback: func(_ wgcore.RequestDeviceStatus, d *wgcore.Device, _ string) { dev = d },
	})
	if dev == nil {
		t.Fatal("RequestDevice did not complete inline")
	}
	t.Cleanup(dev.Release)
	return dev
}

// send delivers the client's queued commands to the server.
func (lb *loopback) send() {
	lb.t.Helper()
	if err := lb.client.Flush(); err != nil {
		lb.t.Fatalf("client Flush() error = %v", err)
	}
	for lb.toServer.Len() > 0 {
		payload, err := wire.ReadFrame(&lb.toServer)
		if err != nil {
			lb.t.Fatalf("ReadFrame() error = %v", err)
		}
		if err := lb.server.HandleCommands(payload); err != nil {
			lb.t.Fatalf("server HandleCommands() error = %v", err)
		}
	}
}

// receive delivers the server's queued replies to the client.
func (lb *loopback) receive() {
	lb.t.Helper()
	if err := lb.server.Flush(); err != nil {
		lb.t.Fatalf("server Flush() error = %v", err)
	}
	for lb.toClient.Len() > 0 {
		payload, err := wire.ReadFrame(&lb.toClient)
		if err != nil {
			lb.t.Fatalf("ReadFrame() error = %v", err)
		}
		if err := lb.client.HandleCommands(payload); err != nil {
			lb.t.Fatalf("client HandleCommands() error = %v", err)
		}
	}
}

func (lb *loopback) roundTrip() {
	lb.t.Helper()
	lb.send()
	if err := lb.server.Tick(); err != nil {
		lb.t.Fatalf("Tick() error = %v", err)
	}
	lb.receive()
}

// raw sends hand-built commands straight to the server.
func (lb *loopback) raw(cmds ...wire.Command) error {
	var payload []byte
	for _, c := range cmds {
		payload = wire.AppendCommand(payload, c)
	}
	return lb.server.HandleCommands(payload)
}

type mapResult struct {
	calls  int
	status wgcore.BufferMapAsyncStatus
	data   []byte
}

func (r *mapResult) callback(s wgcore.BufferMapAsyncStatus, data []byte) {
	r.calls++
	r.status, r.data = s, data
}

// =============================================================================
// Buffer Tests
// =============================================================================

func TestUploadThenReadBack(t *testing.T) {
	lb := newLoopback(t)
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 16, Usage: readUsage, MappedAtCreation: true})
	defer b.Release()

	want := []byte("0123456789abcdef")
	copy(b.MappedRange(), want)
	b.Unmap()

	var r mapResult
	b.MapReadAsync(0, wgcore.WholeMapSize, r.callback)
	lb.roundTrip()
	if r.calls != 1 || r.status != wgcore.BufferMapAsyncStatusSuccess {
		t.Fatalf("map result = %+v, want Success", r)
	}
	if !bytes.Equal(r.data, want) {
		t.Errorf("read back %q, want %q", r.data, want)
	}
	if len(lb.errors) != 0 {
		t.Errorf("device errors = %v, want none", lb.errors)
	}
}

func TestMapWriteRoundTrip(t *testing.T) {
	lb := newLoopback(t)
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc})
	defer b.Release()

	var r mapResult
	b.MapWriteAsync(0, 8, r.callback)
	lb.roundTrip()
	if r.status != wgcore.BufferMapAsyncStatusSuccess || len(r.data) != 8 {
		t.Fatalf("map result = %+v, want Success with 8 bytes", r)
	}
	copy(r.data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.Unmap()
	lb.roundTrip()

	e, err := lb.server.buffers.get(b.Handle().ID)
	if err != nil {
		t.Fatalf("server buffer lookup error = %v", err)
	}
	if got := e.obj.MapState(); got != wgcore.BufferMapStateUnmapped {
		t.Errorf("server MapState() = %v, want Unmapped", got)
	}
}

func TestMapWaitsForSubmittedWork(t *testing.T) {
	lb := newLoopback(t)
	q := lb.client.GetQueue()
	defer q.Release()
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	defer b.Release()

	q.Submit()
	var r mapResult
	b.MapReadAsync(0, 8, r.callback)
	lb.send()
	lb.receive()
	if r.calls != 0 {
		t.Fatalf("map completed before the submission retired: %+v", r)
	}

	if err := lb.server.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	lb.receive()
	if r.status != wgcore.BufferMapAsyncStatusSuccess {
		t.Errorf("status = %v, want Success", r.status)
	}
}

func TestMapValidationStatus(t *testing.T) {
	lb := newLoopback(t)
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	defer b.Release()

	var r mapResult
	b.MapReadAsync(16, 4, r.callback)
	lb.roundTrip()
	if r.status != wgcore.BufferMapAsyncStatusOffsetOutOfRange {
		t.Errorf("status = %v, want OffsetOutOfRange", r.status)
	}
}

func TestInvalidBufferIsErrorObject(t *testing.T) {
	lb := newLoopback(t)
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 0, Usage: readUsage})
	defer b.Release()

	var r mapResult
	b.MapReadAsync(0, 4, r.callback)
	b.Unmap()
	lb.roundTrip()

	if len(lb.errors) != 1 || lb.errors[0] != wire.ErrorTypeValidation {
		t.Errorf("device errors = %v, want one validation error", lb.errors)
	}
	// Unmap answered the request first; the server's ValidationError is stale.
	if r.calls != 1 || r.status != wgcore.BufferMapAsyncStatusUnmappedBeforeCallback {
		t.Errorf("map result = %+v, want UnmappedBeforeCallback", r)
	}
}

func TestReleaseDestroysServerBuffer(t *testing.T) {
	lb := newLoopback(t)
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	lb.roundTrip()
	if n := lb.server.LiveObjects(wire.ObjectTypeBuffer); n != 1 {
		t.Fatalf("LiveObjects(Buffer) = %d, want 1", n)
	}

	b.Release()
	lb.roundTrip()
	if n := lb.server.LiveObjects(wire.ObjectTypeBuffer); n != 0 {
		t.Errorf("LiveObjects(Buffer) after release = %d, want 0", n)
	}

	// The id comes back with a new serial and is live again on the server.
	nb := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	defer nb.Release()
	lb.roundTrip()
	if n := lb.server.LiveObjects(wire.ObjectTypeBuffer); n != 1 {
		t.Errorf("LiveObjects(Buffer) after reuse = %d, want 1", n)
	}
}

func TestDeviceLostCompletesPendingMap(t *testing.T) {
	lb := newLoopback(t)
	q := lb.client.GetQueue()
	defer q.Release()
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	defer b.Release()

	q.Submit()
	var r mapResult
	b.MapReadAsync(0, 8, r.callback)
	lb.send()
	lb.dev.Destroy()
	lb.roundTrip()
	if r.status != wgcore.BufferMapAsyncStatusDeviceLost {
		t.Errorf("status = %v, want DeviceLost", r.status)
	}

	lost := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	defer lost.Release()
	lb.roundTrip()
	if len(lb.errors) != 1 || lb.errors[0] != wire.ErrorTypeDeviceLost {
		t.Errorf("device errors = %v, want [DeviceLost]", lb.errors)
	}
}

// =============================================================================
// Fence Tests
// =============================================================================

func TestFenceSignal(t *testing.T) {
	lb := newLoopback(t)
	q := lb.client.GetQueue()
	defer q.Release()
	f := q.CreateFence(0)
	defer f.Release()

	q.Submit()
	q.Signal(f, 1)
	var status client.FenceCompletionStatus = -1
	f.OnCompletion(1, func(s client.FenceCompletionStatus) { status = s })

	lb.send()
	lb.receive()
	if status != -1 {
		t.Fatalf("fence completed before the submission retired: %v", status)
	}
	if err := lb.server.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	lb.receive()
	if status != client.FenceCompletionStatusSuccess || f.GetCompletedValue() != 1 {
		t.Errorf("status = %v, completed = %d, want Success and 1", status, f.GetCompletedValue())
	}
}

func TestFenceSignalMustIncrease(t *testing.T) {
	lb := newLoopback(t)
	q := lb.client.GetQueue()
	defer q.Release()
	f := q.CreateFence(0)
	defer f.Release()
	lb.roundTrip()

	if err := lb.raw(&wire.QueueSignal{Queue: q.Handle().ID, Fence: f.Handle().ID, Value: 0}); err != nil {
		t.Fatalf("HandleCommands() error = %v", err)
	}
	lb.receive()
	if len(lb.errors) != 1 || lb.errors[0] != wire.ErrorTypeValidation {
		t.Errorf("device errors = %v, want one validation error", lb.errors)
	}
}

// =============================================================================
// Builder Tests
// =============================================================================

func TestFinishReportsBuilderResult(t *testing.T) {
	lb := newLoopback(t)
	e := lb.client.CreateCommandEncoder("enc")
	defer e.Release()

	var status wire.BuilderStatus = 99
	e.SetErrorCallback(func(s wire.BuilderStatus, _ string) { status = s })
	first := e.Finish()
	defer first.Release()
	second := e.Finish()
	defer second.Release()
	lb.roundTrip()

	if status != wire.BuilderStatusSuccess {
		t.Errorf("first Finish status = %v, want Success", status)
	}
	// The second Finish has no callback, so its error reaches the device.
	if len(lb.errors) != 1 || lb.errors[0] != wire.ErrorTypeValidation {
		t.Errorf("device errors = %v, want one validation error", lb.errors)
	}

	q := lb.client.GetQueue()
	defer q.Release()
	q.Submit(second)
	lb.roundTrip()
	if len(lb.errors) != 2 {
		t.Errorf("submit of invalid command buffer: device errors = %v, want 2", lb.errors)
	}

	q.Submit(first)
	lb.roundTrip()
	if len(lb.errors) != 2 {
		t.Errorf("submit of valid command buffer reported %v", lb.errors)
	}
}

// =============================================================================
// Protocol Tests
// =============================================================================

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		cmds []wire.Command
	}{
		{"unknown buffer", []wire.Command{&wire.BufferUnmap{Buffer: 5}}},
		{"null id", []wire.Command{&wire.DeviceGetQueue{}}},
		{"id too large", []wire.Command{&wire.DeviceGetQueue{Result: wire.ObjectHandle{ID: maxKnownID}}}},
		{"live id reused", []wire.Command{
			&wire.DeviceGetQueue{Result: wire.ObjectHandle{ID: 1}},
			&wire.DeviceGetQueue{Result: wire.ObjectHandle{ID: 1}},
		}},
		{"destroy device", []wire.Command{&wire.DestroyObject{ObjectType: wire.ObjectTypeDevice, ObjectID: 1}}},
		{"destroy unknown", []wire.Command{&wire.DestroyObject{ObjectType: wire.ObjectTypeFence, ObjectID: 1}}},
		{"reply command", []wire.Command{&wire.FenceUpdateCompletedValue{}}},
		{"submit unknown command buffer", []wire.Command{
			&wire.DeviceGetQueue{Result: wire.ObjectHandle{ID: 1}},
			&wire.QueueSubmit{Queue: 1, CommandBuffers: []uint32{3}},
		}},
		{"fence on unknown queue", []wire.Command{&wire.QueueCreateFence{Queue: 2, Result: wire.ObjectHandle{ID: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := newLoopback(t)
			if err := lb.raw(tt.cmds...); !errors.Is(err, wire.ErrProtocol) {
				t.Errorf("HandleCommands() error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestHandleCommandsStopsAtFirstError(t *testing.T) {
	lb := newLoopback(t)
	err := lb.raw(
		&wire.BufferUnmap{Buffer: 9},
		&wire.DeviceGetQueue{Result: wire.ObjectHandle{ID: 1}},
	)
	if !errors.Is(err, wire.ErrProtocol) {
		t.Fatalf("HandleCommands() error = %v, want ErrProtocol", err)
	}
	if n := lb.server.LiveObjects(wire.ObjectTypeQueue); n != 0 {
		t.Errorf("command after the error ran: %d queues", n)
	}
}

func TestCloseReleasesBuffers(t *testing.T) {
	lb := newLoopback(t)
	b := lb.client.CreateBuffer(wgcore.BufferDescriptor{Size: 8, Usage: readUsage})
	defer b.Release()
	lb.roundTrip()

	e, err := lb.server.buffers.get(b.Handle().ID)
	if err != nil {
		t.Fatalf("server buffer lookup error = %v", err)
	}
	native := e.obj
	lb.server.Close()
	if !native.IsDestroyed() {
		t.Error("Close() left the server buffer alive")
	}
	if n := lb.server.LiveObjects(wire.ObjectTypeBuffer); n != 0 {
		t.Errorf("LiveObjects(Buffer) after Close = %d, want 0", n)
	}
}
