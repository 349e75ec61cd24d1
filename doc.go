// Package wgcore implements the object and event core of a WebGPU runtime.
//
// # Overview
//
// wgcore provides instances, adapters, devices and their child objects on
// top of a pluggable backend, and delivers every asynchronous result through
// futures. The wire packages expose the same objects across a byte stream.
//
// # Quick Start
//
//	import "github.com/gogpu/wgcore"
//
//	inst, err := wgcore.NewInstance(wgcore.WithTimedWaitAny(true, 0))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Release()
//
//	var adapter *wgcore.Adapter
//	f := inst.RequestAdapter(wgcore.AdapterOptions{}, wgcore.RequestAdapterCallbackInfo{
//		Mode: wgcore.CallbackModeWaitAnyOnly,
//		Callback: func(s wgcore.RequestAdapterStatus, a *wgcore.Adapter, msg string) {
//			adapter = a
//		},
//	})
//	inst.WaitAny([]wgcore.FutureWaitInfo{{Future: f}}, 0)
//
// # Callback Modes
//
// Every asynchronous operation takes a callback mode:
//   - CallbackModeWaitAnyOnly: the callback runs inside Instance.WaitAny
//   - CallbackModeAllowProcessEvents: also inside Instance.ProcessEvents
//   - CallbackModeAllowSpontaneous: on whichever goroutine sees it complete
//
// Errors known when an operation is issued still complete through the
// callback in the requested mode.
//
// # Object Lifetime
//
// Devices and the objects created from them are reference counted. Release
// drops the caller's reference; a child object keeps its device alive. Shader
// modules, bind group layouts and samplers are deduplicated by content, so
// creating an equal object returns the live one with an extra reference.
//
// # Backends
//
// The null backend runs a CPU timeline and is always available. The wgpu
// backend drives a gogpu/wgpu HAL device. See package backend.
package wgcore

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
