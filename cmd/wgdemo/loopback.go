package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/internal/config"
	"github.com/gogpu/wgcore/wire"
	"github.com/gogpu/wgcore/wire/client"
	"github.com/gogpu/wgcore/wire/server"
)

// serverTickInterval is how often the server polls for finished work when
// the client is quiet.
const serverTickInterval = time.Millisecond

// readFrames forwards every frame read from conn until conn fails or done
// closes.
func readFrames(conn net.Conn, done <-chan struct{}, logger *slog.Logger) <-chan []byte {
	frames := make(chan []byte, 16)
	go func() {
		defer close(frames)
		for {
			payload, err := wire.ReadFrame(conn)
			if err != nil {
				logger.Debug("frame reader stopped", "err", err)
				return
			}
			select {
			case frames <- payload:
			case <-done:
				return
			}
		}
	}()
	return frames
}

// serve runs the server side of the connection until the client hangs up.
func serve(srv *server.Server, conn net.Conn, done <-chan struct{}, logger *slog.Logger) {
	defer conn.Close()
	frames := readFrames(conn, done, logger)
	ticker := time.NewTicker(serverTickInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-frames:
			if !ok {
				return
			}
			if err := srv.HandleCommands(payload); err != nil {
				logger.Error("server dropped connection", "err", err)
				return
			}
		case <-ticker.C:
		case <-done:
			return
		}
		if err := srv.Tick(); err != nil {
			logger.Debug("server tick", "err", err)
			return
		}
	}
}

// loopback is the client side of the demo.
type loopback struct {
	c       *client.Client
	frames  <-chan []byte
	timeout time.Duration
	logger  *slog.Logger

	deviceErrors []string
}

// await pumps server replies until cond holds.
func (l *loopback) await(what string, cond func() bool) error {
	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()
	for !cond() {
		if err := l.c.Flush(); err != nil {
			return err
		}
		select {
		case payload, ok := <-l.frames:
			if !ok {
				return fmt.Errorf("connection closed while waiting for %s", what)
			}
			if err := l.c.HandleCommands(payload); err != nil {
				return err
			}
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for %s", what)
		}
	}
	return nil
}

func runLoopback(inst *wgcore.Instance, dev *wgcore.Device, cfg *config.Config, logger *slog.Logger) error {
	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})

	srv := server.New(inst, dev, wire.NewBufferedSerializer(serverConn))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(srv, serverConn, done, logger)
	}()

	l := &loopback{
		c:       client.New(wire.NewBufferedSerializer(clientConn)),
		frames:  readFrames(clientConn, done, logger),
		timeout: demoTimeout(cfg),
		logger:  logger,
	}
	l.c.SetErrorCallback(func(typ wire.ErrorType, msg string) {
		logger.Warn("device error", "type", typ.String(), "message", msg)
		l.deviceErrors = append(l.deviceErrors, msg)
	})

	err := l.run(cfg)

	close(done)
	_ = clientConn.Close()
	wg.Wait()
	srv.Close()
	return err
}

func (l *loopback) run(cfg *config.Config) error {
	q := l.c.GetQueue()
	defer q.Release()
	fence := q.CreateFence(0)
	defer fence.Release()

	for i := range cfg.Demo.Iterations {
		if err := l.iteration(q, fence, uint64(i+1), cfg.Demo.BufferSize); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
	}
	if err := l.writeMapping(cfg.Demo.BufferSize); err != nil {
		return err
	}
	if len(l.deviceErrors) > 0 {
		return fmt.Errorf("%d device errors, first: %s", len(l.deviceErrors), l.deviceErrors[0])
	}
	l.logger.Info("loopback finished", "iterations", cfg.Demo.Iterations, "fence", fence.GetCompletedValue())
	return l.c.Flush()
}

// iteration uploads a pattern, submits a command buffer, signals the fence
// and reads the pattern back.
func (l *loopback) iteration(q *client.Queue, fence *client.Fence, value, size uint64) error {
	pattern := make([]byte, size)
	for k := range pattern {
		pattern[k] = byte(value + uint64(k))
	}

	b := l.c.CreateBuffer(wgcore.BufferDescriptor{
		Label:            fmt.Sprintf("readback-%d", value),
		Size:             size,
		Usage:            gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		MappedAtCreation: true,
	})
	defer b.Release()
	copy(b.MappedRange(), pattern)
	b.Unmap()

	enc := l.c.CreateCommandEncoder(fmt.Sprintf("frame-%d", value))
	defer enc.Release()
	built := false
	enc.SetErrorCallback(func(s wire.BuilderStatus, msg string) {
		built = true
		if s != wire.BuilderStatusSuccess {
			l.deviceErrors = append(l.deviceErrors, msg)
		}
	})
	cmds := enc.Finish()
	defer cmds.Release()
	q.Submit(cmds)

	q.Signal(fence, value)
	signaled := false
	fence.OnCompletion(value, func(s client.FenceCompletionStatus) {
		signaled = s == client.FenceCompletionStatusSuccess
	})

	var status wgcore.BufferMapAsyncStatus = -1
	var got []byte
	b.MapReadAsync(0, wgcore.WholeMapSize, func(s wgcore.BufferMapAsyncStatus, data []byte) {
		status, got = s, bytes.Clone(data)
	})

	if err := l.await("fence and readback", func() bool { return built && signaled && status >= 0 }); err != nil {
		return err
	}
	if status != wgcore.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("map read: %v", status)
	}
	if !bytes.Equal(got, pattern) {
		return errors.New("read back data differs from upload")
	}
	b.Unmap()
	l.logger.Debug("iteration done", "fence", fence.GetCompletedValue(), "bytes", len(got))
	return nil
}

// writeMapping maps a buffer for writing and uploads through Unmap.
func (l *loopback) writeMapping(size uint64) error {
	b := l.c.CreateBuffer(wgcore.BufferDescriptor{
		Label: "upload",
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	defer b.Release()

	var status wgcore.BufferMapAsyncStatus = -1
	var mapped []byte
	b.MapWriteAsync(0, size, func(s wgcore.BufferMapAsyncStatus, data []byte) { status, mapped = s, data })
	if err := l.await("write mapping", func() bool { return status >= 0 }); err != nil {
		return err
	}
	if status != wgcore.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("map write: %v", status)
	}
	for k := range mapped {
		mapped[k] = 0xAB
	}
	b.Unmap()
	return l.c.Flush()
}
