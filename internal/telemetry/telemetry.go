// Package telemetry exports wgcore counters through VictoriaMetrics/metrics.
package telemetry

import (
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

const prefix = "wgcore_"

func counter(name, label, value string) *metrics.Counter {
	return metrics.GetOrCreateCounter(prefix + name + `{` + label + `="` + value + `"}`)
}

// EventTracked counts an event entering a tracking table.
func EventTracked(mode string) { counter("events_tracked_total", "mode", mode).Inc() }

// EventCompleted counts an event callback firing.
func EventCompleted(completion string) {
	counter("events_completed_total", "completion", completion).Inc()
}

// WaitAny counts one WaitAny result.
func WaitAny(status string) { counter("wait_any_total", "status", status).Inc() }

// CacheOp counts one content-less cache operation.
func CacheOp(cache, op string) {
	metrics.GetOrCreateCounter(prefix + `cache_ops_total{cache="` + cache + `",op="` + op + `"}`).Inc()
}

// WireCommand counts one serialized or handled wire command.
func WireCommand(side, name string) {
	metrics.GetOrCreateCounter(prefix + `wire_commands_total{side="` + side + `",cmd="` + name + `"}`).Inc()
}

// WireStale counts a server reply dropped because its target went away.
func WireStale(kind string) { counter("wire_stale_replies_total", "kind", kind).Inc() }

// CompletedSerial records the newest completed serial of a backend.
func CompletedSerial(backend string, serial uint64) {
	counter("completed_serial", "backend", backend).Set(serial)
}

// CompileDuration records how long one shader compilation took.
func CompileDuration(d time.Duration) {
	metrics.GetOrCreateHistogram(prefix + "shader_compile_seconds").Update(d.Seconds())
}

// WritePrometheus writes every registered counter in Prometheus text format.
func WritePrometheus(w io.Writer) { metrics.WritePrometheus(w, false) }
