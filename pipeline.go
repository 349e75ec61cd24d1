package wgcore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/event"
	"github.com/gogpu/wgcore/osevent"
	"github.com/gogpu/wgcore/ref"
)

// ComputePipeline is a compute shader entry point bound to its layouts.
type ComputePipeline struct {
	ref.RefCounted

	device     ref.Ref[*Device]
	module     ref.Ref[*ShaderModule]
	layouts    []ref.Ref[*BindGroupLayout]
	label      string
	entryPoint string

	// bdesc is fixed at creation, so a build job can read it while the
	// pipeline is finalized.
	bdesc backend.ComputePipelineDesc

	mu sync.Mutex
	// res is nil until the backend pipeline exists.
	res       backend.Resource
	err       error
	finalized bool
}

// Label returns the pipeline's debug label.
func (p *ComputePipeline) Label() string { return p.label }

// EntryPoint returns the name of the compute entry point.
func (p *ComputePipeline) EntryPoint() string { return p.entryPoint }

// Release drops the caller's reference.
func (p *ComputePipeline) Release() { ref.APIRelease(p) }

// Finalize destroys the backend pipeline and drops the references to the
// device, module and layouts. A backend pipeline still being built is
// destroyed by its build job.
func (p *ComputePipeline) Finalize() {
	p.mu.Lock()
	p.finalized = true
	res := p.res
	p.res = nil
	p.mu.Unlock()

	d := p.device.Get()
	if res != nil {
		d.backend.DestroyResource(res)
	}
	p.module.Reset()
	for i := range p.layouts {
		p.layouts[i].Reset()
	}
	p.layouts = nil
	releaseDevice(&p.device)
}

// newComputePipeline validates desc and returns a pipeline without a
// backend object.
func (d *Device) newComputePipeline(desc ComputePipelineDescriptor) (*ComputePipeline, error) {
	if desc.Module == nil {
		return nil, fmt.Errorf("%w: compute pipeline %q has no module", ErrInvalidDescriptor, desc.Label)
	}
	if desc.EntryPoint == "" {
		return nil, fmt.Errorf("%w: compute pipeline %q has no entry point", ErrInvalidDescriptor, desc.Label)
	}
	if !d.owns(desc.Module.device) {
		return nil, fmt.Errorf("%w: shader module %q", ErrForeignObject, desc.Module.label)
	}
	for i, l := range desc.Layouts {
		if l == nil {
			return nil, fmt.Errorf("%w: compute pipeline %q layout %d is nil", ErrInvalidDescriptor, desc.Label, i)
		}
		if !d.owns(l.device) {
			return nil, fmt.Errorf("%w: bind group layout %q", ErrForeignObject, l.label)
		}
	}

	p := &ComputePipeline{
		device:     ref.NewRef(d),
		module:     ref.NewRef(desc.Module),
		label:      desc.Label,
		entryPoint: desc.EntryPoint,
		layouts:    make([]ref.Ref[*BindGroupLayout], len(desc.Layouts)),
	}
	p.bdesc = backend.ComputePipelineDesc{
		Label:      desc.Label,
		Module:     desc.Module.res,
		EntryPoint: desc.EntryPoint,
		Layouts:    make([]backend.Resource, len(desc.Layouts)),
	}
	for i, l := range desc.Layouts {
		p.layouts[i] = ref.NewRef(l)
		p.bdesc.Layouts[i] = l.res
	}
	return p, nil
}

// build creates the backend pipeline. It runs on a compile worker for
// async creation and never drops the last reference of anything.
func (p *ComputePipeline) build(d *Device) error {
	res, err := d.backend.CreateComputePipeline(p.bdesc)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.err = fmt.Errorf("wgcore: compute pipeline %q: %w", p.label, err)
		return p.err
	}
	if p.finalized {
		d.backend.DestroyResource(res)
		return nil
	}
	p.res = res
	return nil
}

func (p *ComputePipeline) buildErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// CreateComputePipeline creates a compute pipeline synchronously.
func (d *Device) CreateComputePipeline(desc ComputePipelineDescriptor) (*ComputePipeline, error) {
	if d.IsDestroyed() {
		return nil, ErrDeviceLost
	}
	p, err := d.newComputePipeline(desc)
	if err != nil {
		return nil, err
	}
	if err := p.build(d); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// CreateComputePipelineAsync creates a compute pipeline on a compile
// worker. The callback receives the pipeline with one reference on success.
// Descriptor errors are reported through the callback as well.
func (d *Device) CreateComputePipelineAsync(desc ComputePipelineDescriptor, info CreateComputePipelineAsyncCallbackInfo) Future {
	i := d.instance
	cb := info.Callback
	if cb == nil {
		cb = func(_ CreatePipelineAsyncStatus, p *ComputePipeline, _ string) {
			if p != nil {
				p.Release()
			}
		}
	}

	if d.IsDestroyed() {
		return i.issueReady(info.Mode, func(c event.CompletionType) {
			if c == event.CompletionShutdown {
				cb(CreatePipelineAsyncStatusInstanceDropped, nil, ErrInstanceReleased.Error())
				return
			}
			cb(CreatePipelineAsyncStatusDeviceLost, nil, ErrDeviceLost.Error())
		})
	}
	p, err := d.newComputePipeline(desc)
	if err != nil {
		return i.issueReady(info.Mode, func(c event.CompletionType) {
			if c == event.CompletionShutdown {
				cb(CreatePipelineAsyncStatusInstanceDropped, nil, ErrInstanceReleased.Error())
				return
			}
			cb(CreatePipelineAsyncStatusValidationError, nil, err.Error())
		})
	}

	deliver := func(c event.CompletionType) {
		status, message := CreatePipelineAsyncStatusSuccess, ""
		switch err := p.buildErr(); {
		case c == event.CompletionShutdown:
			status, message = CreatePipelineAsyncStatusInstanceDropped, ErrInstanceReleased.Error()
		case d.IsDestroyed():
			status, message = CreatePipelineAsyncStatusDeviceLost, ErrDeviceLost.Error()
		case errors.Is(err, backend.ErrDeviceDestroyed):
			status, message = CreatePipelineAsyncStatusDeviceLost, err.Error()
		case err != nil:
			status, message = CreatePipelineAsyncStatusValidationError, err.Error()
		}
		if status != CreatePipelineAsyncStatusSuccess {
			p.Release()
			cb(status, nil, message)
			return
		}
		cb(status, p, message)
	}

	pipe, err := osevent.NewPipe()
	if err != nil {
		Logger().Warn("wgcore: pipeline pipe, building inline", "label", desc.Label, "err", err)
		_ = p.build(d)
		return i.issueReady(info.Mode, deliver)
	}
	src := event.Source{Receiver: pipe.TakeReceiver()}

	job := func() {
		if err := p.build(d); err != nil {
			Logger().Debug("wgcore: async pipeline failed", "label", p.label, "err", err)
		}
		if err := pipe.Signal(); err != nil {
			Logger().Warn("wgcore: pipeline signal", "label", p.label, "err", err)
		}
		_ = pipe.Close()
	}
	if !d.pool.Submit(job) {
		job()
	}
	return i.issue(info.Mode, src, d, deliver)
}
