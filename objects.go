package wgcore

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/backend"
	"github.com/gogpu/wgcore/cache"
	"github.com/gogpu/wgcore/ref"
)

// cachedObject is the part shared by objects a device deduplicates by
// content. The device keeps them in a weak cache; creating an object equal
// to a live one returns the live one with an extra reference.
type cachedObject struct {
	ref.WeakRefCounted
	cache.Cacheable

	device ref.Ref[*Device]
	label  string
	res    backend.Resource
	hash   uint64
}

// Label returns the debug label of the object that entered the cache first.
func (o *cachedObject) Label() string { return o.label }

// finalize destroys the backend resource and drops the device reference.
// self is the embedding object, so the cache can find its entry.
func (o *cachedObject) finalize(self ref.WeakObject) {
	o.Uncache(self)
	if o.res != nil && !o.device.IsNil() {
		o.device.Get().backend.DestroyResource(o.res)
		o.res = nil
	}
	releaseDevice(&o.device)
}

// ShaderModule is compiled shader code. WGSL is compiled to SPIR-V before
// the backend sees it.
type ShaderModule struct {
	cachedObject

	// wgsl and source are the code the module was created from; spirv is
	// what the backend received.
	wgsl   string
	source []uint32
	spirv  []uint32
}

// Release drops the caller's reference.
func (m *ShaderModule) Release() { ref.APIRelease(m) }

// Finalize implements ref.Finalizer.
func (m *ShaderModule) Finalize() { m.finalize(m) }

// SPIRV returns the module's SPIR-V words.
func (m *ShaderModule) SPIRV() []uint32 { return m.spirv }

func hashShaderModule(m *ShaderModule) uint64 { return m.hash }

func equalShaderModule(a, b *ShaderModule) bool {
	return a.wgsl == b.wgsl && slices.Equal(a.source, b.source)
}

func shaderModuleHash(wgsl string, spirv []uint32) uint64 {
	d := cache.NewDigest()
	d.String(wgsl)
	d.Uint32(uint32(len(spirv)))
	for _, w := range spirv {
		d.Uint32(w)
	}
	return d.Sum64()
}

// CreateShaderModule creates a shader module from exactly one of WGSL and
// SPIR-V. Modules with the same code are shared.
func (d *Device) CreateShaderModule(desc ShaderModuleDescriptor) (*ShaderModule, error) {
	if d.IsDestroyed() {
		return nil, ErrDeviceLost
	}
	if (desc.WGSL == "") == (len(desc.SPIRV) == 0) {
		return nil, ErrInvalidShaderSource
	}

	blueprint := &ShaderModule{wgsl: desc.WGSL, source: desc.SPIRV}
	blueprint.hash = shaderModuleHash(desc.WGSL, desc.SPIRV)
	if found := d.shaderModules.Find(blueprint); !found.IsNil() {
		return found.Detach(), nil
	}

	spirv := desc.SPIRV
	if desc.WGSL != "" {
		var err error
		if spirv, err = d.compiler.Compile(desc.WGSL); err != nil {
			return nil, fmt.Errorf("wgcore: shader module %q: %w", desc.Label, err)
		}
	}
	res, err := d.backend.CreateShaderModule(desc.Label, spirv)
	if err != nil {
		return nil, fmt.Errorf("wgcore: shader module %q: %w", desc.Label, err)
	}

	source := slices.Clone(desc.SPIRV)
	if desc.WGSL == "" {
		spirv = source
	}
	m := &ShaderModule{wgsl: desc.WGSL, source: source, spirv: spirv}
	m.init(d, desc.Label, res, blueprint.hash)
	ref.InitWeak(m)
	return insertCached(d.shaderModules, m), nil
}

// BindGroupLayout describes the resources a bind group provides.
type BindGroupLayout struct {
	cachedObject

	entries []gputypes.BindGroupLayoutEntry
}

// Release drops the caller's reference.
func (l *BindGroupLayout) Release() { ref.APIRelease(l) }

// Finalize implements ref.Finalizer.
func (l *BindGroupLayout) Finalize() { l.finalize(l) }

// Entries returns the layout entries.
func (l *BindGroupLayout) Entries() []gputypes.BindGroupLayoutEntry { return l.entries }

func hashBindGroupLayout(l *BindGroupLayout) uint64 { return l.hash }

func equalBindGroupLayout(a, b *BindGroupLayout) bool {
	if len(a.entries) != len(b.entries) {
		return false
	}
	return len(a.entries) == 0 || reflect.DeepEqual(a.entries, b.entries)
}

func bindGroupLayoutHash(entries []gputypes.BindGroupLayoutEntry) uint64 {
	d := cache.NewDigest()
	d.Uint32(uint32(len(entries)))
	for _, e := range entries {
		d.Uint32(e.Binding)
		d.Uint32(uint32(e.Visibility))
		if b := e.Buffer; b != nil {
			d.Uint32(1)
			d.Uint32(uint32(b.Type))
			d.Bool(b.HasDynamicOffset)
			d.Uint64(b.MinBindingSize)
		}
		if s := e.Sampler; s != nil {
			d.Uint32(2)
			d.Uint32(uint32(s.Type))
		}
		if t := e.Texture; t != nil {
			d.Uint32(3)
			d.Uint32(uint32(t.SampleType))
			d.Uint32(uint32(t.ViewDimension))
			d.Bool(t.Multisampled)
		}
		if st := e.StorageTexture; st != nil {
			d.Uint32(4)
			d.Uint32(uint32(st.Access))
			d.Uint32(uint32(st.Format))
			d.Uint32(uint32(st.ViewDimension))
		}
	}
	return d.Sum64()
}

// CreateBindGroupLayout creates a bind group layout. Layouts with equal
// entries are shared; each entry must describe exactly one binding type and
// binding numbers must be unique.
func (d *Device) CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (*BindGroupLayout, error) {
	if d.IsDestroyed() {
		return nil, ErrDeviceLost
	}
	if err := validateLayoutEntries(desc.Entries); err != nil {
		return nil, err
	}

	blueprint := &BindGroupLayout{entries: desc.Entries}
	blueprint.hash = bindGroupLayoutHash(desc.Entries)
	if found := d.bindGroupLayouts.Find(blueprint); !found.IsNil() {
		return found.Detach(), nil
	}

	res, err := d.backend.CreateBindGroupLayout(desc.Label, desc.Entries)
	if err != nil {
		return nil, fmt.Errorf("wgcore: bind group layout %q: %w", desc.Label, err)
	}
	l := &BindGroupLayout{entries: slices.Clone(desc.Entries)}
	l.init(d, desc.Label, res, blueprint.hash)
	ref.InitWeak(l)
	return insertCached(d.bindGroupLayouts, l), nil
}

func validateLayoutEntries(entries []gputypes.BindGroupLayoutEntry) error {
	seen := make(map[uint32]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Binding]; dup {
			return fmt.Errorf("%w: duplicate binding %d", ErrInvalidDescriptor, e.Binding)
		}
		seen[e.Binding] = struct{}{}

		kinds := 0
		if e.Buffer != nil {
			kinds++
		}
		if e.Sampler != nil {
			kinds++
		}
		if e.Texture != nil {
			kinds++
		}
		if e.StorageTexture != nil {
			kinds++
		}
		if kinds != 1 {
			return fmt.Errorf("%w: binding %d has %d binding types", ErrInvalidDescriptor, e.Binding, kinds)
		}
	}
	return nil
}

// Sampler describes how textures are sampled.
type Sampler struct {
	cachedObject

	desc SamplerDescriptor
}

// Release drops the caller's reference.
func (s *Sampler) Release() { ref.APIRelease(s) }

// Finalize implements ref.Finalizer.
func (s *Sampler) Finalize() { s.finalize(s) }

// Descriptor returns the sampler's descriptor.
func (s *Sampler) Descriptor() SamplerDescriptor { return s.desc }

func hashSampler(s *Sampler) uint64 { return s.hash }

func equalSampler(a, b *Sampler) bool {
	x, y := a.desc, b.desc
	x.Label, y.Label = "", ""
	return x == y
}

func samplerHash(desc SamplerDescriptor) uint64 {
	d := cache.NewDigest()
	d.Uint32(uint32(desc.AddressModeU))
	d.Uint32(uint32(desc.AddressModeV))
	d.Uint32(uint32(desc.AddressModeW))
	d.Uint32(uint32(desc.MagFilter))
	d.Uint32(uint32(desc.MinFilter))
	d.Uint32(uint32(desc.MipmapFilter))
	return d.Sum64()
}

// CreateSampler creates a sampler. Zero address and filter modes default to
// ClampToEdge and Nearest. Samplers that differ only in label are shared.
func (d *Device) CreateSampler(desc SamplerDescriptor) (*Sampler, error) {
	if d.IsDestroyed() {
		return nil, ErrDeviceLost
	}
	desc = samplerDefaults(desc)

	blueprint := &Sampler{desc: desc}
	blueprint.hash = samplerHash(desc)
	if found := d.samplers.Find(blueprint); !found.IsNil() {
		return found.Detach(), nil
	}

	res, err := d.backend.CreateSampler(backend.SamplerDesc{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("wgcore: sampler %q: %w", desc.Label, err)
	}
	s := &Sampler{desc: desc}
	s.init(d, desc.Label, res, blueprint.hash)
	ref.InitWeak(s)
	return insertCached(d.samplers, s), nil
}

func samplerDefaults(desc SamplerDescriptor) SamplerDescriptor {
	for _, m := range []*gputypes.AddressMode{&desc.AddressModeU, &desc.AddressModeV, &desc.AddressModeW} {
		if *m == 0 {
			*m = gputypes.AddressModeClampToEdge
		}
	}
	for _, f := range []*gputypes.FilterMode{&desc.MagFilter, &desc.MinFilter, &desc.MipmapFilter} {
		if *f == 0 {
			*f = gputypes.FilterModeNearest
		}
	}
	return desc
}

func (o *cachedObject) init(d *Device, label string, res backend.Resource, hash uint64) {
	o.device = ref.NewRef(d)
	o.label = label
	o.res = res
	o.hash = hash
}

// insertCached inserts obj, which carries its initial reference, and
// returns the object the caller should use. When a concurrent creation won
// the race, obj is released and the cached object is returned instead.
func insertCached[T cache.Entry](c *cache.ContentLess[T], obj T) T {
	cached, inserted := c.Insert(obj)
	if inserted {
		cached.Reset()
		return obj
	}
	ref.APIRelease(obj)
	return cached.Detach()
}
