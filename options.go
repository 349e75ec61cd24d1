package wgcore

import (
	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/internal/shader"
)

// InstanceOption configures an Instance during creation.
//
// Example:
//
//	// Default backend, WaitAny without timeouts
//	inst, err := wgcore.NewInstance()
//
//	// CPU timeline with timed WaitAny on up to 16 futures
//	inst, err := wgcore.NewInstance(
//	    wgcore.WithBackend(backend.BackendNull),
//	    wgcore.WithTimedWaitAny(true, 16),
//	)
type InstanceOption func(*instanceOptions)

// instanceOptions holds optional configuration for Instance creation.
type instanceOptions struct {
	timedWaitAny      bool
	timedWaitMaxCount int
	backendName       string
	backend           backend.Backend
	compileWorkers    int
	shaderCacheBudget int
}

// defaultOptions returns the default instance options.
func defaultOptions() instanceOptions {
	return instanceOptions{
		compileWorkers:    2,
		shaderCacheBudget: shader.DefaultCacheBudget,
	}
}

// WithTimedWaitAny enables Instance.WaitAny with a non-zero timeout on up to
// maxCount futures. A maxCount of zero selects the largest supported count.
func WithTimedWaitAny(enable bool, maxCount int) InstanceOption {
	return func(o *instanceOptions) {
		o.timedWaitAny = enable
		o.timedWaitMaxCount = maxCount
	}
}

// WithBackend selects a registered backend by name. The default is the
// first registered backend, by priority, that initializes.
func WithBackend(name string) InstanceOption {
	return func(o *instanceOptions) {
		o.backendName = name
	}
}

// WithBackendInstance uses an already created backend, for example one
// sharing a host application's device. The instance initializes it and
// closes it on release.
//
//	b := wgpu.NewShared(provider)
//	inst, err := wgcore.NewInstance(wgcore.WithBackendInstance(b))
func WithBackendInstance(b backend.Backend) InstanceOption {
	return func(o *instanceOptions) {
		o.backend = b
	}
}

// WithCompileWorkers sets the number of goroutines each device uses for
// asynchronous pipeline creation. Zero or negative selects GOMAXPROCS.
func WithCompileWorkers(n int) InstanceOption {
	return func(o *instanceOptions) {
		o.compileWorkers = n
	}
}

// WithShaderCacheBudget sets the size in bytes of each device's compiled
// SPIR-V cache.
func WithShaderCacheBudget(bytes int) InstanceOption {
	return func(o *instanceOptions) {
		o.shaderCacheBudget = bytes
	}
}
