package event

import (
	"slices"
	"time"

	"github.com/gogpu/wgcore/osevent"
)

// waitImpl groups futures by wait device and waits on each group. A timed
// wait is only meaningful on a single group. Futures are reordered in place;
// Index keeps pointing at the caller's slice.
func waitImpl(futures []WaitInfo, timeout time.Duration) WaitStatus {
	groups := groupByDevice(futures)
	if timeout > 0 && len(groups) > 1 {
		return WaitStatusUnsupportedMixedSources
	}

	anyReady := false
	for _, g := range groups {
		if waitGroup(g, timeout) {
			anyReady = true
		}
	}
	if !anyReady {
		return WaitStatusTimedOut
	}
	return WaitStatusSuccess
}

// groupByDevice stably sorts futures so that events sharing a wait device
// are contiguous, in order of first appearance, and returns the groups.
func groupByDevice(futures []WaitInfo) [][]WaitInfo {
	var devices []WaitDevice
	rank := func(d WaitDevice) int {
		for i, known := range devices {
			if known == d {
				return i
			}
		}
		devices = append(devices, d)
		return len(devices) - 1
	}
	ranks := make(map[*Event]int, len(futures))
	for _, f := range futures {
		ranks[f.Event] = rank(f.Event.WaitDevice())
	}
	slices.SortStableFunc(futures, func(a, b WaitInfo) int {
		return ranks[a.Event] - ranks[b.Event]
	})

	groups := make([][]WaitInfo, 0, len(devices))
	start := 0
	for i := 1; i <= len(futures); i++ {
		if i == len(futures) || ranks[futures[i].Event] != ranks[futures[start].Event] {
			groups = append(groups, futures[start:i])
			start = i
		}
	}
	return groups
}

// waitGroup waits on futures that share one wait device.
func waitGroup(futures []WaitInfo, timeout time.Duration) bool {
	if len(futures) == 0 {
		return false
	}
	if dev := futures[0].Event.WaitDevice(); dev != nil {
		return dev.WaitAnyImpl(futures, timeout)
	}

	receivers := make([]*osevent.Receiver, len(futures))
	ready := make([]bool, len(futures))
	for i, f := range futures {
		receivers[i] = f.Event.Receiver()
	}
	if !osevent.Wait(receivers, ready, timeout) {
		return false
	}
	for i := range futures {
		if ready[i] {
			futures[i].Ready = true
		}
	}
	return true
}
