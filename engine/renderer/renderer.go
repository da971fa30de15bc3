package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/registry"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/shader"
)

// DefaultClearColor is the color the surface is cleared to before each draw.
var DefaultClearColor = gpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}

// ObjectSource gives the renderer exclusive access to a registered object and the
// backend it was built on.
type ObjectSource interface {
	Use(id string, fn func(obj *registry.Object, backend gpu.Backend) error) error
}

var _ ObjectSource = registry.Registry(nil)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu      *sync.Mutex
	objects ObjectSource
	clear   gpu.Color
	logger  *slog.Logger

	frames uint64
}

// Renderer draws one registered object per frame to the configured surface.
type Renderer interface {
	// Render uploads transform into the object's uniform buffer and draws the object once
	// to the current surface image, then presents it.
	// A missing object or an unavailable device is logged and returned without submitting
	// any GPU work.
	//
	// Parameters:
	//   - id: the identifier of the object to draw
	//   - transform: the column-major 4x4 model transform
	//
	// Returns:
	//   - error: ErrDeviceUnavailable or ErrResourceNotFound (wrapped), or a frame error
	Render(id string, transform [16]float32) error

	// ClearColor returns the color the surface is cleared to.
	ClearColor() gpu.Color

	// SetClearColor changes the clear color used by subsequent frames.
	//
	// Parameters:
	//   - c: the new clear color
	SetClearColor(c gpu.Color)

	// Frames returns the number of frames presented so far.
	Frames() uint64
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer drawing objects from the given source.
//
// Parameters:
//   - objects: the object source, normally the engine's Registry
//   - options: optional RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
func NewRenderer(objects ObjectSource, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:      &sync.Mutex{},
		objects: objects,
		clear:   DefaultClearColor,
	}
	for _, opt := range options {
		opt(r)
	}
	r.logger = common.Coalesce(r.logger, common.Logger()).With("component", "renderer")
	return r
}

func (r *renderer) Render(id string, transform [16]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.objects.Use(id, func(obj *registry.Object, backend gpu.Backend) error {
		return r.draw(obj, backend, transform)
	})
	switch {
	case err == nil:
		r.frames++
		return nil
	case errors.Is(err, common.ErrDeviceUnavailable), errors.Is(err, common.ErrResourceNotFound):
		r.logger.Warn("frame skipped", "id", id, "error", err)
	default:
		r.logger.Warn("frame failed", "id", id, "error", err)
	}
	return err
}

// draw must be called with mu held.
func (r *renderer) draw(obj *registry.Object, backend gpu.Backend, transform [16]float32) error {
	binding, ok := obj.Pipeline.Shader().Binding(shader.AnnotationArgObjectUniforms)
	if !ok {
		return fmt.Errorf("%w: pipeline %q has no object uniform binding", common.ErrPipelineCreationFailed, obj.Pipeline.Signature())
	}
	uniform := shader.GPUObjectUniform{Transform: transform}
	write := bind_group_provider.BufferWrite{
		Provider: obj.Provider,
		Binding:  int(binding),
		Data:     uniform.Marshal(),
	}
	if err := write.Apply(backend); err != nil {
		return fmt.Errorf("failed to upload transform of %q: %w", obj.ID, err)
	}

	if err := backend.BeginFrame(r.clear); err != nil {
		return fmt.Errorf("failed to begin frame: %w", err)
	}
	drawErr := backend.Draw(obj.Pipeline.Handle(), obj.Provider.BindGroup(), obj.Provider.VertexBuffer(), obj.Provider.VertexCount(), 1)
	if err := backend.EndFrame(); err != nil {
		return errors.Join(drawErr, fmt.Errorf("failed to submit frame: %w", err))
	}
	backend.Present()
	if drawErr != nil {
		return fmt.Errorf("failed to draw %q: %w", obj.ID, drawErr)
	}
	return nil
}

func (r *renderer) ClearColor() gpu.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clear
}

func (r *renderer) SetClearColor(c gpu.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear = c
}

func (r *renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}
