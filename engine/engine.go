// Package engine is the host-facing facade of the renderer core. It wires the graphics
// session, pipeline cache, texture loader, resource registry and frame renderer together
// and optionally drives them from a window's tick and render loops.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/registry"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/session"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/Carmen-Shannon/oxy-core/engine/window"
)

// engine implements the Engine interface.
type engine struct {
	session   session.Session
	pipelines pipeline.Cache
	textures  texture.Loader
	registry  registry.Registry
	renderer  renderer.Renderer
	logger    *slog.Logger

	clearColor     gpu.Color
	workers        int
	textureOptions []texture.LoaderBuilderOption

	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once
	closeOnce   sync.Once

	window window.Window

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	renderCallback   func(deltaTime float32)
	renderFrameLimit time.Duration
}

// Engine is the host-facing entry point. The graphics operations may be called from any
// goroutine; Run additionally drives tick and render callbacks from a window.
type Engine interface {
	// InitializeGraphics acquires a graphics device. When the engine owns a window its
	// surface is configured on the new device. Calling it again after a device loss or
	// Close re-acquires a device; previously set up objects must be set up again.
	//
	// Parameters:
	//   - ctx: bounds device acquisition
	//
	// Returns:
	//   - error: ErrDeviceUnavailable (wrapped) if no compatible device exists
	InitializeGraphics(ctx context.Context) error

	// ConfigureSurface configures the presentation surface, also after a resize.
	//
	// Parameters:
	//   - surface: the surface to present to
	//
	// Returns:
	//   - error: ErrDeviceUnavailable (wrapped) if graphics are not initialized, or a backend error
	ConfigureSurface(surface gpu.Surface) error

	// SetupObject creates or replaces the object id from interleaved float vertices.
	// An empty textureURL binds the dummy white texture, as does a texture that fails to load.
	//
	// Parameters:
	//   - ctx: bounds the texture fetch
	//   - id: the object identifier
	//   - vertices: interleaved vertex data
	//   - strideBytes: bytes per vertex
	//   - attributes: the vertex attributes
	//   - textureURL: http(s), file:// or local path of the texture, or empty
	//
	// Returns:
	//   - string: the object id
	//   - error: a registry error; see registry.Registry.SetupObject
	SetupObject(ctx context.Context, id string, vertices []float32, strideBytes uint32, attributes []registry.Attribute, textureURL string) (string, error)

	// SetupObjectAsync runs SetupObject on the registry's worker pool.
	//
	// Returns:
	//   - <-chan registry.SetupResult: receives exactly one result and is then closed
	SetupObjectAsync(ctx context.Context, id string, vertices []float32, strideBytes uint32, attributes []registry.Attribute, textureURL string) <-chan registry.SetupResult

	// Render draws the object id with the given column-major transform and presents the frame.
	//
	// Parameters:
	//   - id: the object to draw
	//   - transform: the 4x4 model transform
	//
	// Returns:
	//   - error: ErrDeviceUnavailable or ErrResourceNotFound (wrapped), or a frame error
	Render(id string, transform [16]float32) error

	// RemoveObject releases the object id.
	//
	// Returns:
	//   - error: ErrResourceNotFound (wrapped) if id is unknown
	RemoveObject(id string) error

	// Objects returns the ids of every registered object, sorted.
	Objects() []string

	// HandleDeviceLost reports a device loss: every GPU resource is released and the
	// session must be re-initialized.
	//
	// Parameters:
	//   - reason: a description for the log
	HandleDeviceLost(reason string)

	// Session returns the graphics session.
	Session() session.Session

	// Renderer returns the frame renderer.
	Renderer() renderer.Renderer

	// Close stops the loops started by Run and releases every GPU resource and the device.
	// Safe to call multiple times, but not from a tick or render callback.
	Close()

	// Window returns the window the engine presents to, or nil.
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each render frame. The host issues
	// its Render calls from here.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the tick and render loops and processes window messages until the
	// window closes. Requires a window.
	//
	// Returns:
	//   - error: error if the engine has no window
	Run() error

	// Quit signals the tick and render loops to stop. Safe to call multiple times.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates an Engine acquiring devices through acquirer.
//
// Parameters:
//   - acquirer: requests adapters and devices; backend.NewAcquirer for WebGPU
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if a component could not be created
func NewEngine(acquirer gpu.Acquirer, options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		clearColor:      renderer.DefaultClearColor,
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = common.Coalesce(e.logger, common.Logger())
	e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))

	e.session = session.NewSession(acquirer, session.WithLogger(e.logger))
	e.pipelines = pipeline.NewCache(pipeline.WithLogger(e.logger))

	textureOptions := append([]texture.LoaderBuilderOption{
		texture.WithLogger(e.logger),
		texture.WithEpochCheck(e.session.Valid),
	}, e.textureOptions...)
	textures, err := texture.NewLoader(textureOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create texture loader: %w", err)
	}
	e.textures = textures

	registryOptions := []registry.RegistryBuilderOption{registry.WithLogger(e.logger)}
	if e.workers > 0 {
		registryOptions = append(registryOptions, registry.WithWorkers(e.workers))
	}
	e.registry = registry.NewRegistry(e.session, e.pipelines, e.textures, registryOptions...)
	e.renderer = renderer.NewRenderer(e.registry, renderer.WithClearColor(e.clearColor), renderer.WithLogger(e.logger))

	// Clear waits for an in-flight Render, so pipelines and textures are released only after
	// no frame can still draw with them.
	e.session.OnInvalidate(func(uint64) {
		e.registry.Clear()
		e.pipelines.Invalidate()
		e.textures.Invalidate()
	})

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			if width <= 0 || height <= 0 {
				return
			}
			if err := e.session.ConfigureSurface(e.window); err != nil {
				e.logger.Warn("failed to reconfigure surface", "width", width, "height", height, "error", err)
			}
		})
	}

	return e, nil
}

func (e *engine) InitializeGraphics(ctx context.Context) error {
	if err := e.session.Initialize(ctx); err != nil {
		return err
	}
	if e.window != nil {
		return e.session.ConfigureSurface(e.window)
	}
	return nil
}

func (e *engine) ConfigureSurface(surface gpu.Surface) error {
	return e.session.ConfigureSurface(surface)
}

func (e *engine) SetupObject(ctx context.Context, id string, vertices []float32, strideBytes uint32, attributes []registry.Attribute, textureURL string) (string, error) {
	return e.registry.SetupObject(ctx, registry.ObjectDescriptor{
		ID:         id,
		Vertices:   vertices,
		Stride:     strideBytes,
		Attributes: attributes,
		TextureURL: textureURL,
	})
}

func (e *engine) SetupObjectAsync(ctx context.Context, id string, vertices []float32, strideBytes uint32, attributes []registry.Attribute, textureURL string) <-chan registry.SetupResult {
	return e.registry.SetupObjectAsync(ctx, registry.ObjectDescriptor{
		ID:         id,
		Vertices:   vertices,
		Stride:     strideBytes,
		Attributes: attributes,
		TextureURL: textureURL,
	})
}

func (e *engine) Render(id string, transform [16]float32) error {
	return e.renderer.Render(id, transform)
}

func (e *engine) RemoveObject(id string) error {
	return e.registry.Remove(id)
}

func (e *engine) Objects() []string {
	return e.registry.IDs()
}

func (e *engine) HandleDeviceLost(reason string) {
	e.session.HandleDeviceLost(reason)
}

func (e *engine) Session() session.Session {
	return e.session
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Close() {
	e.closeOnce.Do(func() {
		e.signalQuit()
		e.wg.Wait()
		e.registry.Clear()
		e.session.Teardown()
		e.registry.Close()
	})
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Run() error {
	if e.window == nil {
		return fmt.Errorf("engine has no window to run")
	}
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	return nil
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines, tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.running = true
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop.
// Recovers from panics in the render callback and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}

			if e.renderFrameLimit > 0 {
				if remaining := e.renderFrameLimit - time.Since(lastRender); remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

// ParseVertexFormat converts a host-supplied format name (float32x2, float32x3 or
// float32x4) into a VertexFormat.
func ParseVertexFormat(s string) (gpu.VertexFormat, error) {
	return gpu.ParseVertexFormat(s)
}

// ParseAttributes parses a comma separated attribute list of the form
// name@offset:format, e.g. "position@0:float32x3,color@12:float32x4".
//
// Parameters:
//   - s: the attribute list
//
// Returns:
//   - []registry.Attribute: the parsed attributes in order
//   - error: error describing the first malformed entry
func ParseAttributes(s string) ([]registry.Attribute, error) {
	var attrs []registry.Attribute
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, rest, ok := strings.Cut(field, "@")
		if !ok || name == "" {
			return nil, fmt.Errorf("attribute %q: expected name@offset:format", field)
		}
		offset, format, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("attribute %q: expected name@offset:format", field)
		}
		off, err := strconv.ParseUint(offset, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: invalid offset: %w", field, err)
		}
		f, err := ParseVertexFormat(format)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", field, err)
		}
		attrs = append(attrs, registry.Attribute{Name: name, Offset: uint32(off), Format: f})
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("no attributes in %q", s)
	}
	return attrs, nil
}
