package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
)

// cache is the implementation of the Cache interface.
type cache struct {
	mu        *sync.Mutex
	pipelines map[Signature]*pipeline
	logger    *slog.Logger
}

// Cache holds one render pipeline per distinct vertex layout signature. Pipelines are built
// lazily and shared by every object with the same layout.
type Cache interface {
	// Ensure returns the pipeline for the layout, building it when none exists or when the
	// cached one was created under another session epoch.
	//
	// Parameters:
	//   - backend: the backend to build on
	//   - epoch: the session epoch of backend
	//   - stride: the vertex stride in bytes
	//   - attributes: the mesh attributes in declaration order
	//
	// Returns:
	//   - Pipeline: the cached or newly built pipeline
	//   - error: ErrPipelineCreationFailed (wrapped) if the program or pipeline cannot be built
	Ensure(backend gpu.Backend, epoch uint64, stride uint32, attributes []Attribute) (Pipeline, error)

	// Get returns the cached pipeline for a signature.
	//
	// Parameters:
	//   - signature: the layout signature
	//
	// Returns:
	//   - Pipeline: the cached pipeline
	//   - bool: false if no pipeline is cached for the signature
	Get(signature Signature) (Pipeline, bool)

	// Len returns the number of cached pipelines.
	Len() int

	// Invalidate releases and forgets every cached pipeline.
	Invalidate()
}

var _ Cache = &cache{}

// NewCache creates an empty pipeline cache.
//
// Parameters:
//   - options: functional options to configure the cache
//
// Returns:
//   - Cache: the new cache
func NewCache(options ...CacheBuilderOption) Cache {
	c := &cache{
		mu:        &sync.Mutex{},
		pipelines: make(map[Signature]*pipeline),
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = common.Coalesce(c.logger, common.Logger())
	return c
}

func (c *cache) Ensure(backend gpu.Backend, epoch uint64, stride uint32, attributes []Attribute) (Pipeline, error) {
	sig := NewSignature(stride, attributes)

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pipelines[sig]; ok {
		if p.epoch == epoch {
			return p, nil
		}
		p.Release()
		delete(c.pipelines, sig)
	}

	p, err := build(backend, epoch, sig, stride, attributes)
	if err != nil {
		return nil, err
	}
	c.pipelines[sig] = p
	c.logger.Debug("pipeline built", "signature", string(sig), "program", p.program.Key(), "epoch", epoch)
	return p, nil
}

func (c *cache) Get(signature Signature) (Pipeline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pipelines[signature]
	if !ok {
		return nil, false
	}
	return p, true
}

func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pipelines)
}

func (c *cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sig, p := range c.pipelines {
		p.Release()
		delete(c.pipelines, sig)
	}
}

// build generates the program for the layout's feature set and compiles it into a pipeline.
func build(backend gpu.Backend, epoch uint64, sig Signature, stride uint32, attributes []Attribute) (*pipeline, error) {
	layout, features := vertexLayout(stride, attributes)

	program, err := shader.NewShader(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPipelineCreationFailed, err)
	}

	handle, err := backend.CreateRenderPipeline(gpu.RenderPipelineDescriptor{
		Label:              fmt.Sprintf("oxy_%s_s%d", program.Key(), stride),
		ShaderSource:       program.Source(),
		VertexEntryPoint:   program.EntryPoint(shader.ShaderTypeVertex),
		FragmentEntryPoint: program.EntryPoint(shader.ShaderTypeFragment),
		VertexLayout:       layout,
		BindGroupLayout:    program.BindGroupLayout(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPipelineCreationFailed, err)
	}

	return &pipeline{
		signature:    sig,
		vertexLayout: layout,
		program:      program,
		handle:       handle,
		epoch:        epoch,
	}, nil
}
