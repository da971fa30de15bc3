package gpu

import "context"

// Releaser is implemented by every GPU handle. Release frees the underlying resource;
// calling it more than once is safe.
type Releaser interface {
	Release()
}

// Buffer is an opaque GPU buffer handle.
type Buffer interface {
	Releaser

	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64
}

// Texture is an opaque GPU texture handle together with its default view.
type Texture interface {
	Releaser

	// Width returns the texture width in texels.
	Width() uint32

	// Height returns the texture height in texels.
	Height() uint32
}

// Sampler is an opaque GPU sampler handle.
type Sampler interface {
	Releaser
}

// RenderPipeline is an opaque compiled render pipeline handle.
type RenderPipeline interface {
	Releaser

	// Label returns the debug label the pipeline was created with.
	Label() string
}

// BindGroup is an opaque bind group handle.
type BindGroup interface {
	Releaser
}

// Surface is a presentation target the backend can configure. Backends may require the
// concrete value to implement additional platform interfaces (a wgpu surface descriptor provider
// for the WebGPU backend).
type Surface interface {
	// Width returns the drawable width in pixels.
	Width() int

	// Height returns the drawable height in pixels.
	Height() int
}

// LostFunc is invoked by a backend, possibly from another goroutine, when its device is lost.
type LostFunc func(reason string)

// Acquirer requests an adapter and device and returns a ready Backend.
type Acquirer interface {
	// Acquire blocks until a device is available or acquisition fails.
	//
	// Parameters:
	//   - ctx: bounds the acquisition
	//   - lost: called when the acquired device is later lost
	//
	// Returns:
	//   - Backend: the ready backend
	//   - error: an error if no compatible device could be acquired
	Acquire(ctx context.Context, lost LostFunc) (Backend, error)
}

// Backend is the device/queue/surface triple the engine core drives. All methods are
// safe for concurrent use; implementations serialize GPU access internally.
type Backend interface {
	// SurfaceFormat returns the format of the configured presentation surface.
	//
	// Returns:
	//   - TextureFormat: the surface format
	//   - error: ErrSurfaceNotConfigured (wrapped) if ConfigureSurface has not succeeded yet
	SurfaceFormat() (TextureFormat, error)

	// ConfigureSurface configures, or reconfigures after a resize, the presentation surface.
	//
	// Parameters:
	//   - surface: the presentation target
	//
	// Returns:
	//   - error: an error if the surface is unsupported or configuration fails
	ConfigureSurface(surface Surface) error

	// CreateBuffer creates a buffer and, when the descriptor carries Contents, uploads them
	// with mapped-at-creation semantics.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the created buffer
	//   - error: an error if creation fails
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// WriteBuffer queues a write of data into buf at the given byte offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the destination byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write does not fit or the buffer is invalid
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CreateTexture creates a 2D texture and uploads the descriptor's pixels.
	//
	// Parameters:
	//   - desc: the texture descriptor including pixel data
	//
	// Returns:
	//   - Texture: the created texture
	//   - error: an error if creation or upload fails
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - desc: the sampler descriptor
	//
	// Returns:
	//   - Sampler: the created sampler
	//   - error: an error if creation fails
	CreateSampler(desc SamplerDescriptor) (Sampler, error)

	// CreateRenderPipeline compiles the shader source and builds a render pipeline targeting
	// the presentation surface format.
	//
	// Parameters:
	//   - desc: the pipeline descriptor
	//
	// Returns:
	//   - RenderPipeline: the created pipeline
	//   - error: an error if compilation or pipeline construction fails
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)

	// CreateBindGroup creates a bind group for group 0 of the given pipeline's layout.
	//
	// Parameters:
	//   - label: a debug label
	//   - pipeline: the pipeline whose layout the bind group must match
	//   - entries: the bound resources
	//
	// Returns:
	//   - BindGroup: the created bind group
	//   - error: an error if creation fails
	CreateBindGroup(label string, pipeline RenderPipeline, entries []BindGroupEntry) (BindGroup, error)

	// BeginFrame acquires the current surface image, creates a command encoder and begins a
	// render pass that clears to the given color and stores the result.
	// Must be paired with EndFrame.
	//
	// Parameters:
	//   - clear: the clear color
	//
	// Returns:
	//   - error: an error if the surface image could not be acquired
	BeginFrame(clear Color) error

	// Draw encodes a non-indexed draw within the current pass started by BeginFrame.
	//
	// Parameters:
	//   - pipeline: the render pipeline
	//   - bindGroup: the bind group set at group 0
	//   - vertexBuffer: the vertex buffer set at slot 0
	//   - vertexCount: the number of vertices to draw
	//   - instanceCount: the number of instances to draw
	//
	// Returns:
	//   - error: an error if no pass is open
	Draw(pipeline RenderPipeline, bindGroup BindGroup, vertexBuffer Buffer, vertexCount, instanceCount uint32) error

	// EndFrame ends the current pass and submits the recorded commands to the queue.
	//
	// Returns:
	//   - error: an error if no pass is open or the command buffer could not be finished
	EndFrame() error

	// Present presents the acquired surface image and releases it.
	Present()

	// Release frees the device, queue and surface.
	Release()
}
