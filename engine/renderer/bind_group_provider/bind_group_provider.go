package bind_group_provider

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// The following fields are owned by the provider and released with it.

	// bindGroup is the bind group created by InitBindGroup, or nil before initialization.
	bindGroup gpu.BindGroup
	// buffers holds the buffers bound by this provider, keyed by binding index.
	buffers map[int]gpu.Buffer
	// vertexBuffer is the vertex buffer drawn at slot 0.
	vertexBuffer gpu.Buffer
	// vertexCount is the number of vertices in vertexBuffer.
	vertexCount uint32

	// The following fields are shared references. Their owners (texture cache, sampler cache)
	// release them; the provider only drops its reference.

	textures map[int]gpu.Texture
	samplers map[int]gpu.Sampler
}

// BindGroupProvider holds the GPU resources one object binds for a draw: its vertex buffer,
// the buffers, texture and sampler bound at group 0 and the bind group tying them together.
//
// Usage pattern:
//  1. The registry creates the vertex and uniform buffers and resolves texture and sampler
//  2. The registry calls InitBindGroup against the object's pipeline
//  3. The renderer writes uniforms through BufferWrite and draws with BindGroup and VertexBuffer
//  4. Release frees the owned resources when the object is replaced, removed or invalidated
type BindGroupProvider interface {
	// Release frees the bind group, the bound buffers and the vertex buffer and drops the
	// shared texture and sampler references. Safe to call more than once.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the created bind group, or nil before InitBindGroup succeeded.
	//
	// Returns:
	//   - gpu.BindGroup: the bind group or nil
	BindGroup() gpu.BindGroup

	// Buffer returns the buffer bound at a binding, or nil if none.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpu.Buffer: the buffer or nil
	Buffer(binding int) gpu.Buffer

	// Texture returns the texture bound at a binding, or nil if none.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpu.Texture: the texture or nil
	Texture(binding int) gpu.Texture

	// Sampler returns the sampler bound at a binding, or nil if none.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpu.Sampler: the sampler or nil
	Sampler(binding int) gpu.Sampler

	// VertexBuffer returns the vertex buffer, or nil if not set.
	VertexBuffer() gpu.Buffer

	// VertexCount returns the number of vertices to draw.
	VertexCount() uint32

	// Entries returns the bind group entries for every bound resource, sorted by binding.
	//
	// Returns:
	//   - []gpu.BindGroupEntry: the entries
	Entries() []gpu.BindGroupEntry

	// InitBindGroup creates the bind group for the bound resources against the pipeline's
	// group 0 layout. A previously created bind group is released first.
	//
	// Parameters:
	//   - backend: the backend to create the bind group on
	//   - pipeline: the pipeline whose layout the bind group must match
	//
	// Returns:
	//   - error: ErrBufferCreationFailed (wrapped) if the bind group cannot be created
	InitBindGroup(backend gpu.Backend, pipeline gpu.RenderPipeline) error

	// SetBuffer binds a buffer the provider owns.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the buffer
	SetBuffer(binding int, buf gpu.Buffer)

	// SetTexture binds a shared texture.
	//
	// Parameters:
	//   - binding: the binding index
	//   - tex: the texture
	SetTexture(binding int, tex gpu.Texture)

	// SetSampler binds a shared sampler.
	//
	// Parameters:
	//   - binding: the binding index
	//   - s: the sampler
	SetSampler(binding int, s gpu.Sampler)

	// SetVertexBuffer stores the vertex buffer and its vertex count.
	//
	// Parameters:
	//   - buf: the vertex buffer
	//   - count: the number of vertices in buf
	SetVertexBuffer(buf gpu.Buffer, count uint32)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: a debug label
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		buffers:  make(map[int]gpu.Buffer),
		textures: make(map[int]gpu.Texture),
		samplers: make(map[int]gpu.Sampler),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() gpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) Buffer(binding int) gpu.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Texture(binding int) gpu.Texture {
	return p.textures[binding]
}

func (p *bindGroupProvider) Sampler(binding int) gpu.Sampler {
	return p.samplers[binding]
}

func (p *bindGroupProvider) VertexBuffer() gpu.Buffer {
	return p.vertexBuffer
}

func (p *bindGroupProvider) VertexCount() uint32 {
	return p.vertexCount
}

func (p *bindGroupProvider) SetBuffer(binding int, buf gpu.Buffer) {
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) SetTexture(binding int, tex gpu.Texture) {
	p.textures[binding] = tex
}

func (p *bindGroupProvider) SetSampler(binding int, s gpu.Sampler) {
	p.samplers[binding] = s
}

func (p *bindGroupProvider) SetVertexBuffer(buf gpu.Buffer, count uint32) {
	p.vertexBuffer = buf
	p.vertexCount = count
}

func (p *bindGroupProvider) Entries() []gpu.BindGroupEntry {
	entries := make([]gpu.BindGroupEntry, 0, len(p.buffers)+len(p.textures)+len(p.samplers))
	for b, buf := range p.buffers {
		entries = append(entries, gpu.BindGroupEntry{Binding: uint32(b), Buffer: buf})
	}
	for b, tex := range p.textures {
		entries = append(entries, gpu.BindGroupEntry{Binding: uint32(b), Texture: tex})
	}
	for b, s := range p.samplers {
		entries = append(entries, gpu.BindGroupEntry{Binding: uint32(b), Sampler: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})
	return entries
}

func (p *bindGroupProvider) InitBindGroup(backend gpu.Backend, pipeline gpu.RenderPipeline) error {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	bg, err := backend.CreateBindGroup(p.label, pipeline, p.Entries())
	if err != nil {
		return fmt.Errorf("%w: bind group %q: %w", common.ErrBufferCreationFailed, p.label, err)
	}
	p.bindGroup = bg
	return nil
}

func (p *bindGroupProvider) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
	}
	if p.vertexBuffer != nil {
		p.vertexBuffer.Release()
		p.vertexBuffer = nil
	}
	p.vertexCount = 0

	clear(p.textures)
	clear(p.samplers)
}
