// Package gputest provides an in-memory gpu.Backend that records every call, for tests
// that exercise resource management without a device.
package gputest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// ErrInjected is returned by operations configured to fail with Fail.
var ErrInjected = errors.New("gputest: injected failure")

// Op names a Backend operation for failure injection and counting.
type Op string

const (
	OpCreateBuffer   Op = "CreateBuffer"
	OpWriteBuffer    Op = "WriteBuffer"
	OpCreateTexture  Op = "CreateTexture"
	OpCreateSampler  Op = "CreateSampler"
	OpCreatePipeline Op = "CreateRenderPipeline"
	OpCreateBind     Op = "CreateBindGroup"
	OpBeginFrame     Op = "BeginFrame"
)

// Buffer is the fake buffer handle. Its contents are kept so tests can read back writes.
type Buffer struct {
	mu       sync.Mutex
	label    string
	usage    gpu.BufferUsage
	data     []byte
	released bool
}

var _ gpu.Buffer = &Buffer{}

func (b *Buffer) Label() string { return b.label }

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *Buffer) Usage() gpu.BufferUsage { return b.usage }

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
}

// Texture is the fake texture handle.
type Texture struct {
	mu       sync.Mutex
	desc     gpu.TextureDescriptor
	released bool
}

var _ gpu.Texture = &Texture{}

func (t *Texture) Width() uint32  { return t.desc.Width }
func (t *Texture) Height() uint32 { return t.desc.Height }

func (t *Texture) Label() string { return t.desc.Label }

func (t *Texture) Usage() gpu.TextureUsage { return t.desc.Usage }

// Pixels returns the uploaded pixel bytes.
func (t *Texture) Pixels() []byte { return t.desc.Pixels }

func (t *Texture) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
}

// Sampler is the fake sampler handle.
type Sampler struct {
	mu       sync.Mutex
	Desc     gpu.SamplerDescriptor
	released bool
}

var _ gpu.Sampler = &Sampler{}

func (s *Sampler) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Sampler) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

// Pipeline is the fake render pipeline handle.
type Pipeline struct {
	mu       sync.Mutex
	Desc     gpu.RenderPipelineDescriptor
	Format   gpu.TextureFormat
	released bool
}

var _ gpu.RenderPipeline = &Pipeline{}

func (p *Pipeline) Label() string { return p.Desc.Label }

func (p *Pipeline) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
}

// BindGroup is the fake bind group handle.
type BindGroup struct {
	mu       sync.Mutex
	Label    string
	Pipeline *Pipeline
	Entries  []gpu.BindGroupEntry
	released bool
}

var _ gpu.BindGroup = &BindGroup{}

func (g *BindGroup) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

func (g *BindGroup) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
}

// Entry returns the entry bound at the given binding, or false.
func (g *BindGroup) Entry(binding uint32) (gpu.BindGroupEntry, bool) {
	for _, e := range g.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gpu.BindGroupEntry{}, false
}

// DrawCall is one recorded Draw.
type DrawCall struct {
	Pipeline      *Pipeline
	BindGroup     *BindGroup
	VertexBuffer  *Buffer
	VertexCount   uint32
	InstanceCount uint32

	// PipelineReleased records whether the pipeline had been released when it was drawn with.
	PipelineReleased bool
}

// Frame is one recorded BeginFrame..EndFrame sequence.
type Frame struct {
	Clear     gpu.Color
	Draws     []DrawCall
	Submitted bool
	Presented bool
}

// Backend is a recording gpu.Backend. The zero value is not usable; use NewBackend.
type Backend struct {
	mu *sync.Mutex

	format     gpu.TextureFormat
	configured bool
	surfaceW   int
	surfaceH   int

	buffers   []*Buffer
	textures  []*Texture
	samplers  []*Sampler
	pipelines []*Pipeline
	bindings  []*BindGroup

	counts  map[Op]int
	fail    map[Op]int
	writes  int
	frames  []*Frame
	current *Frame

	lost       gpu.LostFunc
	beginFrame func()
	released   bool
}

var _ gpu.Backend = &Backend{}

// NewBackend returns a recording backend whose surface is already configured with a
// BGRA8Unorm format of 640x480.
func NewBackend() *Backend {
	return &Backend{
		mu:         &sync.Mutex{},
		format:     gpu.TextureFormatBGRA8Unorm,
		configured: true,
		surfaceW:   640,
		surfaceH:   480,
		counts:     make(map[Op]int),
		fail:       make(map[Op]int),
	}
}

// Unconfigure drops the surface configuration, making pipeline creation fail.
func (b *Backend) Unconfigure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configured = false
}

// Fail makes the next n calls of op return ErrInjected. A negative n fails every call.
func (b *Backend) Fail(op Op, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[op] = n
}

// Count returns how many successful calls of op were made.
func (b *Backend) Count(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[op]
}

// Writes returns how many WriteBuffer calls succeeded.
func (b *Backend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Buffers returns every buffer created so far.
func (b *Backend) Buffers() []*Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Buffer(nil), b.buffers...)
}

// Textures returns every texture created so far.
func (b *Backend) Textures() []*Texture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Texture(nil), b.textures...)
}

// Samplers returns every sampler created so far.
func (b *Backend) Samplers() []*Sampler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Sampler(nil), b.samplers...)
}

// Pipelines returns every pipeline created so far.
func (b *Backend) Pipelines() []*Pipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Pipeline(nil), b.pipelines...)
}

// BindGroups returns every bind group created so far.
func (b *Backend) BindGroups() []*BindGroup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*BindGroup(nil), b.bindings...)
}

// Frames returns every frame begun so far.
func (b *Backend) Frames() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Frame, len(b.frames))
	for i, f := range b.frames {
		out[i] = *f
	}
	return out
}

// Submitted returns the number of frames whose commands were submitted.
func (b *Backend) Submitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.frames {
		if f.Submitted {
			n++
		}
	}
	return n
}

// Live returns the number of created and not yet released handles of every kind.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, x := range b.buffers {
		if !x.Released() {
			n++
		}
	}
	for _, x := range b.textures {
		if !x.Released() {
			n++
		}
	}
	for _, x := range b.samplers {
		if !x.Released() {
			n++
		}
	}
	for _, x := range b.pipelines {
		if !x.Released() {
			n++
		}
	}
	for _, x := range b.bindings {
		if !x.Released() {
			n++
		}
	}
	return n
}

// Released reports whether Release was called on the backend.
func (b *Backend) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Lose invokes the lost callback registered at acquisition, as a real device would.
func (b *Backend) Lose(reason string) {
	b.mu.Lock()
	lost := b.lost
	b.mu.Unlock()
	if lost != nil {
		lost(reason)
	}
}

// shouldFail must be called with mu held.
func (b *Backend) shouldFail(op Op) bool {
	n, ok := b.fail[op]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		b.fail[op] = n - 1
	}
	return true
}

func (b *Backend) SurfaceFormat() (gpu.TextureFormat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.configured {
		return gpu.TextureFormatUndefined, fmt.Errorf("gputest: %w", common.ErrSurfaceNotConfigured)
	}
	return b.format, nil
}

func (b *Backend) ConfigureSurface(surface gpu.Surface) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if surface == nil {
		return errors.New("gputest: nil surface")
	}
	b.surfaceW, b.surfaceH = surface.Width(), surface.Height()
	b.configured = true
	return nil
}

// SurfaceSize returns the last configured surface size.
func (b *Backend) SurfaceSize() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceW, b.surfaceH
}

func (b *Backend) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpCreateBuffer) {
		return nil, ErrInjected
	}
	if desc.Size == 0 {
		return nil, errors.New("gputest: zero sized buffer")
	}
	if uint64(len(desc.Contents)) > desc.Size {
		return nil, fmt.Errorf("gputest: contents (%d bytes) exceed buffer size %d", len(desc.Contents), desc.Size)
	}
	buf := &Buffer{label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}
	copy(buf.data, desc.Contents)
	b.buffers = append(b.buffers, buf)
	b.counts[OpCreateBuffer]++
	return buf, nil
}

func (b *Backend) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpWriteBuffer) {
		return ErrInjected
	}
	fb, ok := buf.(*Buffer)
	if !ok {
		return fmt.Errorf("gputest: foreign buffer %T", buf)
	}
	if fb.Released() {
		return errors.New("gputest: write to released buffer")
	}
	if offset+uint64(len(data)) > fb.Size() {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows buffer of %d", len(data), offset, fb.Size())
	}
	fb.mu.Lock()
	copy(fb.data[offset:], data)
	fb.mu.Unlock()
	b.writes++
	b.counts[OpWriteBuffer]++
	return nil
}

func (b *Backend) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpCreateTexture) {
		return nil, ErrInjected
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.New("gputest: zero sized texture")
	}
	if want := int(desc.Width * desc.Height * 4); len(desc.Pixels) != want {
		return nil, fmt.Errorf("gputest: texture expects %d pixel bytes, got %d", want, len(desc.Pixels))
	}
	tex := &Texture{desc: desc}
	b.textures = append(b.textures, tex)
	b.counts[OpCreateTexture]++
	return tex, nil
}

func (b *Backend) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpCreateSampler) {
		return nil, ErrInjected
	}
	s := &Sampler{Desc: desc}
	b.samplers = append(b.samplers, s)
	b.counts[OpCreateSampler]++
	return s, nil
}

func (b *Backend) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpCreatePipeline) {
		return nil, ErrInjected
	}
	if !b.configured {
		return nil, fmt.Errorf("gputest: %w", common.ErrSurfaceNotConfigured)
	}
	if desc.ShaderSource == "" {
		return nil, errors.New("gputest: empty shader source")
	}
	p := &Pipeline{Desc: desc, Format: b.format}
	b.pipelines = append(b.pipelines, p)
	b.counts[OpCreatePipeline]++
	return p, nil
}

func (b *Backend) CreateBindGroup(label string, pipeline gpu.RenderPipeline, entries []gpu.BindGroupEntry) (gpu.BindGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpCreateBind) {
		return nil, ErrInjected
	}
	p, ok := pipeline.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("gputest: foreign pipeline %T", pipeline)
	}
	if len(entries) != len(p.Desc.BindGroupLayout) {
		return nil, fmt.Errorf("gputest: layout has %d entries, got %d", len(p.Desc.BindGroupLayout), len(entries))
	}
	g := &BindGroup{Label: label, Pipeline: p, Entries: append([]gpu.BindGroupEntry(nil), entries...)}
	b.bindings = append(b.bindings, g)
	b.counts[OpCreateBind]++
	return g, nil
}

// OnBeginFrame sets a function called at the start of every BeginFrame, before the frame is
// recorded. It may block to hold a frame open.
func (b *Backend) OnBeginFrame(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beginFrame = fn
}

func (b *Backend) BeginFrame(clear gpu.Color) error {
	b.mu.Lock()
	hook := b.beginFrame
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shouldFail(OpBeginFrame) {
		return ErrInjected
	}
	if b.current != nil {
		return errors.New("gputest: frame already in progress")
	}
	if !b.configured {
		return fmt.Errorf("gputest: %w", common.ErrSurfaceNotConfigured)
	}
	b.current = &Frame{Clear: clear}
	b.frames = append(b.frames, b.current)
	b.counts[OpBeginFrame]++
	return nil
}

func (b *Backend) Draw(pipeline gpu.RenderPipeline, bindGroup gpu.BindGroup, vertexBuffer gpu.Buffer, vertexCount, instanceCount uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return errors.New("gputest: draw outside of a frame")
	}
	p, _ := pipeline.(*Pipeline)
	g, _ := bindGroup.(*BindGroup)
	vb, _ := vertexBuffer.(*Buffer)
	b.current.Draws = append(b.current.Draws, DrawCall{
		Pipeline:         p,
		BindGroup:        g,
		VertexBuffer:     vb,
		VertexCount:      vertexCount,
		InstanceCount:    instanceCount,
		PipelineReleased: p != nil && p.Released(),
	})
	return nil
}

func (b *Backend) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return errors.New("gputest: no frame in progress")
	}
	b.current.Submitted = true
	return nil
}

func (b *Backend) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return
	}
	b.current.Presented = true
	b.current = nil
}

func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
}

// Acquirer hands out recording backends. Every successful Acquire creates a fresh Backend.
type Acquirer struct {
	mu       sync.Mutex
	err      error
	acquired []*Backend
}

var _ gpu.Acquirer = &Acquirer{}

// NewAcquirer returns an Acquirer that always succeeds.
func NewAcquirer() *Acquirer {
	return &Acquirer{}
}

// FailWith makes subsequent acquisitions return err; nil restores success.
func (a *Acquirer) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Last returns the most recently acquired backend, or nil.
func (a *Acquirer) Last() *Backend {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.acquired) == 0 {
		return nil
	}
	return a.acquired[len(a.acquired)-1]
}

// Acquired returns how many backends were handed out.
func (a *Acquirer) Acquired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acquired)
}

func (a *Acquirer) Acquire(ctx context.Context, lost gpu.LostFunc) (gpu.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	b := NewBackend()
	b.lost = lost
	a.acquired = append(a.acquired, b)
	return b, nil
}

// Surface is a fixed size gpu.Surface.
type Surface struct {
	W, H int
}

var _ gpu.Surface = Surface{}

func (s Surface) Width() int  { return s.W }
func (s Surface) Height() int { return s.H }
