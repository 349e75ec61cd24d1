package event

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgcore/internal/logging"
	"github.com/gogpu/wgcore/internal/telemetry"
)

// TimedWaitAnyMaxCountDefault is the largest number of futures a timed
// WaitAny may cover.
const TimedWaitAnyMaxCountDefault = 64

// ErrTimedWaitMaxCount is returned when the requested timed wait-any count
// exceeds TimedWaitAnyMaxCountDefault.
var ErrTimedWaitMaxCount = errors.New("event: requested timed wait-any max count is not supported")

type options struct {
	timedWaitEnable   bool
	timedWaitMaxCount int
}

// Option configures a Manager.
type Option func(*options)

// WithTimedWaitAny enables WaitAny with a non-zero timeout on up to maxCount
// futures. A maxCount of zero selects TimedWaitAnyMaxCountDefault.
func WithTimedWaitAny(enable bool, maxCount int) Option {
	return func(o *options) {
		o.timedWaitEnable = enable
		o.timedWaitMaxCount = maxCount
	}
}

// Manager assigns future IDs and tracks pending events of one instance.
//
// Future-mode and poll-mode events live in separate tables so that polling
// never competes with a blocking WaitAny for the same event.
type Manager struct {
	timedWaitEnable   bool
	timedWaitMaxCount int

	// nextID is only advanced while the matching table lock is held, so an
	// ID is never visible before its entry.
	nextID atomic.Uint64

	futuresMu sync.Mutex
	futures   map[FutureID]*Event

	pollMu     sync.Mutex
	pollEvents map[FutureID]*Event

	shutdown atomic.Bool
}

// NewManager creates an event manager.
func NewManager(opts ...Option) (*Manager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.timedWaitMaxCount > TimedWaitAnyMaxCountDefault {
		return nil, fmt.Errorf("%w: %d > %d", ErrTimedWaitMaxCount, o.timedWaitMaxCount, TimedWaitAnyMaxCountDefault)
	}
	if o.timedWaitMaxCount <= 0 {
		o.timedWaitMaxCount = TimedWaitAnyMaxCountDefault
	}

	m := &Manager{
		timedWaitEnable:   o.timedWaitEnable,
		timedWaitMaxCount: o.timedWaitMaxCount,
		futures:           make(map[FutureID]*Event),
		pollEvents:        make(map[FutureID]*Event),
	}
	m.nextID.Store(1)
	return m, nil
}

// TimedWaitAnyEnabled reports whether WaitAny accepts a non-zero timeout.
func (m *Manager) TimedWaitAnyEnabled() bool { return m.timedWaitEnable }

// TimedWaitAnyMaxCount returns the largest future count of a timed WaitAny.
func (m *Manager) TimedWaitAnyMaxCount() int { return m.timedWaitMaxCount }

// Track registers ev according to its mode and returns its future ID, or
// NullFutureID when the mode does not allow waiting on it. Spontaneous
// events are not tracked. After ShutDown, tracked events complete at once
// with CompletionShutdown. A future still gets a fresh ID, which WaitAny
// reports as completed; poll-mode events return NullFutureID as usual.
func (m *Manager) Track(ev *Event) FutureID {
	switch ev.Mode() {
	case ModeWaitAnyOnly:
		m.futuresMu.Lock()
		id := FutureID(m.nextID.Add(1) - 1)
		live := m.futures != nil
		if live {
			m.futures[id] = ev
		}
		m.futuresMu.Unlock()

		if !live {
			ev.EnsureComplete(CompletionShutdown)
			return id
		}
		telemetry.EventTracked("future")
		logging.Logger().Debug("event: tracked future", "id", uint64(id))
		return id

	case ModeAllowProcessEvents:
		m.pollMu.Lock()
		id := FutureID(m.nextID.Add(1) - 1)
		live := m.pollEvents != nil
		if live {
			m.pollEvents[id] = ev
		}
		m.pollMu.Unlock()

		if !live {
			ev.EnsureComplete(CompletionShutdown)
			return NullFutureID
		}
		telemetry.EventTracked("process_events")
		return NullFutureID

	default:
		return NullFutureID
	}
}

// ProcessPollEvents completes every poll-mode event that is ready now. It
// never blocks, and callbacks run after the table lock is released.
func (m *Manager) ProcessPollEvents() {
	m.pollMu.Lock()
	if len(m.pollEvents) == 0 {
		m.pollMu.Unlock()
		return
	}

	infos := make([]WaitInfo, 0, len(m.pollEvents))
	for id, ev := range m.pollEvents {
		infos = append(infos, WaitInfo{ID: id, Event: ev, Index: -1})
	}
	slices.SortFunc(infos, func(a, b WaitInfo) int { return cmp.Compare(a.ID, b.ID) })

	// A zero timeout never mixes sources, so the status is Success or
	// TimedOut.
	if waitImpl(infos, 0) != WaitStatusSuccess {
		m.pollMu.Unlock()
		return
	}

	ready := make([]WaitInfo, 0, len(infos))
	for _, info := range infos {
		if info.Ready {
			delete(m.pollEvents, info.ID)
			ready = append(ready, info)
		}
	}
	m.pollMu.Unlock()

	slices.SortFunc(ready, func(a, b WaitInfo) int { return cmp.Compare(a.ID, b.ID) })
	for _, info := range ready {
		info.Event.EnsureComplete(CompletionReady)
	}
}

// WaitAny waits until at least one of the futures completes or the timeout
// expires. Futures that already completed elsewhere are reported at once
// without waiting. Completed is set on every future completed by this call.
func (m *Manager) WaitAny(infos []FutureWaitInfo, timeout time.Duration) WaitStatus {
	status := m.waitAny(infos, timeout)
	telemetry.WaitAny(status.String())
	logging.Logger().Debug("event: wait any", "count", len(infos), "timeout", timeout, "status", status.String())
	return status
}

func (m *Manager) waitAny(infos []FutureWaitInfo, timeout time.Duration) WaitStatus {
	if len(infos) == 0 {
		return WaitStatusSuccess
	}

	futures := make([]WaitInfo, 0, len(infos))
	anyCompleted := false
	doubleWait := false

	m.futuresMu.Lock()
	firstInvalid := FutureID(m.nextID.Load())
	for i, info := range infos {
		if info.Future == NullFutureID || info.Future >= firstInvalid {
			m.futuresMu.Unlock()
			releaseWaitRefs(futures)
			panic(fmt.Sprintf("event: WaitAny on future %d that was never issued", info.Future))
		}
		ev, ok := m.futures[info.Future]
		if !ok {
			infos[i].Completed = true
			anyCompleted = true
			continue
		}
		if ev.waiting.Swap(true) {
			doubleWait = true
			break
		}
		infos[i].Completed = false
		futures = append(futures, WaitInfo{ID: info.Future, Event: ev, Index: i})
	}
	m.futuresMu.Unlock()
	defer releaseWaitRefs(futures)

	if doubleWait {
		panic("event: future is already being waited on")
	}
	if anyCompleted {
		return WaitStatusSuccess
	}

	if timeout > 0 {
		if !m.timedWaitEnable {
			return WaitStatusUnsupportedTimeout
		}
		if len(infos) > m.timedWaitMaxCount {
			return WaitStatusUnsupportedCount
		}
	}

	if status := waitImpl(futures, timeout); status != WaitStatusSuccess {
		return status
	}

	ready := make([]WaitInfo, 0, len(futures))
	m.futuresMu.Lock()
	for _, f := range futures {
		if f.Ready {
			delete(m.futures, f.ID)
			ready = append(ready, f)
		}
	}
	m.futuresMu.Unlock()

	for _, f := range ready {
		f.Event.EnsureComplete(CompletionReady)
		infos[f.Index].Completed = true
	}
	return WaitStatusSuccess
}

// ShutDown completes every pending event with CompletionShutdown. Events
// tracked afterwards complete immediately.
func (m *Manager) ShutDown() {
	if !m.shutdown.CompareAndSwap(false, true) {
		return
	}

	m.futuresMu.Lock()
	futures := m.futures
	m.futures = nil
	m.futuresMu.Unlock()

	m.pollMu.Lock()
	polls := m.pollEvents
	m.pollEvents = nil
	m.pollMu.Unlock()

	pending := make([]WaitInfo, 0, len(futures)+len(polls))
	for id, ev := range futures {
		pending = append(pending, WaitInfo{ID: id, Event: ev})
	}
	for id, ev := range polls {
		pending = append(pending, WaitInfo{ID: id, Event: ev})
	}
	slices.SortFunc(pending, func(a, b WaitInfo) int { return cmp.Compare(a.ID, b.ID) })

	if len(pending) > 0 {
		logging.Logger().Warn("event: shutting down with pending events", "count", len(pending))
	}
	for _, p := range pending {
		p.Event.EnsureComplete(CompletionShutdown)
	}
}

// IsShutDown reports whether ShutDown was called.
func (m *Manager) IsShutDown() bool { return m.shutdown.Load() }

// Len returns the number of tracked events in both tables.
func (m *Manager) Len() int {
	m.futuresMu.Lock()
	n := len(m.futures)
	m.futuresMu.Unlock()
	m.pollMu.Lock()
	n += len(m.pollEvents)
	m.pollMu.Unlock()
	return n
}

func releaseWaitRefs(futures []WaitInfo) {
	for _, f := range futures {
		f.Event.releaseWaitRef()
	}
}
