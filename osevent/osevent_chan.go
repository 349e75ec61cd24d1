//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package osevent

import (
	"reflect"
	"sync"
	"time"
)

type chanEvent struct {
	once sync.Once
	ch   chan struct{}
}

// SystemHandle is a channel closed on signal.
type SystemHandle = *chanEvent

var invalidHandle SystemHandle

func newPipe() (SystemHandle, SystemHandle, error) {
	ev := &chanEvent{ch: make(chan struct{})}
	return ev, ev, nil
}

func signal(w SystemHandle) error {
	w.once.Do(func() { close(w.ch) })
	return nil
}

// closeHandle is a no-op: the channel is shared by both ends and collected
// by the garbage collector.
func closeHandle(SystemHandle) error { return nil }

func wait(receivers []*Receiver, ready []bool, timeout time.Duration) bool {
	poll := func() bool {
		found := false
		for i, r := range receivers {
			if !r.Valid() {
				continue
			}
			select {
			case <-r.handle.ch:
				ready[i] = true
				found = true
			default:
			}
		}
		return found
	}
	if poll() {
		return true
	}
	if timeout == 0 {
		return false
	}

	cases := make([]reflect.SelectCase, 0, len(receivers)+1)
	for _, r := range receivers {
		if r.Valid() {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.handle.ch)})
		}
	}
	if len(cases) == 0 {
		return false
	}
	if timeout != Infinite {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
	}
	reflect.Select(cases)
	return poll()
}
