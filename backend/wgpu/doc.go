// Package wgpu provides a GPU backend on top of gogpu/wgpu's HAL.
//
// Each device owns one timeline fence. Queue submissions signal the fence
// with the submission serial, so "serial N has completed" is a fence wait
// for value N. The device doubles as the event.WaitDevice for its events:
// WaitAnyImpl blocks on the smallest pending serial with the caller's
// timeout and then polls the remaining serials without blocking.
//
// # Opening a device
//
// The registered backend opens a standalone Vulkan device on the best
// adapter, preferring discrete and integrated GPUs:
//
//	b := wgpu.New(nil) // nil selects the Vulkan HAL backend
//	if err := b.Init(); err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//	dev, err := b.OpenDevice()
//
// A host application that already owns a device shares it through
// gpucontext.DeviceProvider instead:
//
//	dev, err := wgpu.FromProvider(provider)
//
// Shared devices are polled through the provider on every Tick and are
// never destroyed by this package.
package wgpu
