// Package backend is the boundary between wgcore and a GPU implementation.
//
// A Backend opens Devices. A Device runs submissions on a monotonic serial
// timeline and reports how far the GPU has progressed, either through an
// event.WaitDevice that the event manager polls or through OS receivers
// that become ready when a serial completes.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The null backend registers itself on import:
//
//	import _ "github.com/gogpu/wgcore/backend/null"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b := backend.Get(backend.BackendNull)
//	if err := b.Init(); err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	dev, err := b.OpenDevice()
//
// # Available Backends
//
//   - "null": CPU timeline that completes work on Tick, always available
//   - "wgpu": gogpu/wgpu HAL device, registered by importing backend/wgpu
package backend
