package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine"
	"github.com/Carmen-Shannon/oxy-core/engine/backend"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/config"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/registry"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/Carmen-Shannon/oxy-core/engine/window"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

const defaultQuadAttributes = "position@0:float32x3,uv@12:float32x2"

type viewOptions struct {
	configPath  string
	textureURL  string
	attributes  string
	software    bool
	presentMode string
	profiling   bool
	logLevel    string
}

// demoObject is one object the viewer sets up and can draw.
type demoObject struct {
	id         string
	vertices   []float32
	stride     uint32
	attributes []registry.Attribute
	textureURL string
}

var triangleObject = demoObject{
	id: "tri",
	vertices: []float32{
		0, 0.5, 0, 1, 0, 0, 1,
		-0.5, -0.5, 0, 0, 1, 0, 1,
		0.5, -0.5, 0, 0, 0, 1, 1,
	},
	stride: 28,
	attributes: []registry.Attribute{
		{Name: "position", Offset: 0, Format: gpu.VertexFormatFloat32x3},
		{Name: "color", Offset: 12, Format: gpu.VertexFormatFloat32x4},
	},
}

// quadVertices is two position+uv triangles.
var quadVertices = []float32{
	-0.5, -0.5, 0, 0, 1,
	0.5, -0.5, 0, 1, 1,
	0.5, 0.5, 0, 1, 0,
	-0.5, -0.5, 0, 0, 1,
	0.5, 0.5, 0, 1, 0,
	-0.5, 0.5, 0, 0, 0,
}

// viewer holds the state shared by the tick, render and window threads.
type viewer struct {
	mu      sync.Mutex
	objects []demoObject
	current int
	angle   float32
	camera  camera.Camera

	eng    engine.Engine
	logger *slog.Logger
}

func runViewer(ctx context.Context, opts viewOptions, changed func(string) bool) error {
	cfg, err := resolveConfig(opts, changed)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	common.SetLogger(logger)

	quadAttributes, err := engine.ParseAttributes(opts.attributes)
	if err != nil {
		return err
	}

	win, err := window.NewWindow(window.WithConfig(cfg.Window))
	if err != nil {
		return err
	}
	defer win.Close()

	acquirer := backend.NewAcquirer(
		backend.WithSurfaceSource(win),
		backend.WithForceFallbackAdapter(cfg.Renderer.ForceSoftware),
		backend.WithPresentMode(backend.ParsePresentMode(cfg.Renderer.PresentMode)),
		backend.WithLogger(logger),
	)
	c := cfg.Renderer.ClearColor
	eng, err := engine.NewEngine(acquirer,
		engine.WithWindow(win),
		engine.WithLogger(logger),
		engine.WithProfiling(cfg.Profiling),
		engine.WithRenderFrameLimit(cfg.Renderer.FrameLimit),
		engine.WithClearColor(gpu.Color{R: c[0], G: c[1], B: c[2], A: c[3]}),
		engine.WithWorkers(cfg.Registry.Workers),
		engine.WithTextureOptions(
			texture.WithTimeout(cfg.Textures.Timeout),
			texture.WithMaxBytes(cfg.Textures.MaxBytes),
			texture.WithSamplerCacheSize(cfg.Textures.SamplerCacheSize),
		),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	v := &viewer{
		objects: []demoObject{triangleObject, {
			id:         "quad",
			vertices:   quadVertices,
			stride:     20,
			attributes: quadAttributes,
			textureURL: opts.textureURL,
		}},
		camera: camera.NewCamera(camera.WithAspect(aspectOf(win.Width(), win.Height()))),
		eng:    eng,
		logger: logger,
	}

	if err := v.start(ctx); err != nil {
		return err
	}

	eng.SetTickCallback(v.tick)
	eng.SetRenderCallback(v.render)
	win.SetKeyDownCallback(func(key uint32) {
		switch glfw.Key(key) {
		case glfw.KeyTab:
			v.next()
		case glfw.KeyL:
			v.simulateLoss(ctx)
		case glfw.KeyLeft:
			v.camera.Orbit(-1, 0)
		case glfw.KeyRight:
			v.camera.Orbit(1, 0)
		case glfw.KeyUp:
			v.camera.Orbit(0, 1)
		case glfw.KeyDown:
			v.camera.Orbit(0, -1)
		case glfw.KeyEqual:
			v.camera.Zoom(1)
		case glfw.KeyMinus:
			v.camera.Zoom(-1)
		}
	})
	return eng.Run()
}

// resolveConfig loads the configuration file and applies explicitly set flags over it.
func resolveConfig(opts viewOptions, changed func(string) bool) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if changed("software") {
		cfg.Renderer.ForceSoftware = opts.software
	}
	if changed("present-mode") {
		cfg.Renderer.PresentMode = opts.presentMode
	}
	if changed("profile") {
		cfg.Profiling = opts.profiling
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// start initializes graphics and sets up every demo object. The first object is set up
// synchronously so the first frame has something to draw; the rest load in the background.
func (v *viewer) start(ctx context.Context) error {
	if err := v.eng.InitializeGraphics(ctx); err != nil {
		return err
	}
	first := v.objects[0]
	if _, err := v.eng.SetupObject(ctx, first.id, first.vertices, first.stride, first.attributes, first.textureURL); err != nil {
		return fmt.Errorf("failed to set up %q: %w", first.id, err)
	}
	for _, obj := range v.objects[1:] {
		ch := v.eng.SetupObjectAsync(ctx, obj.id, obj.vertices, obj.stride, obj.attributes, obj.textureURL)
		go func() {
			res := <-ch
			if res.Err != nil && !registry.IsDiscarded(res.Err) {
				v.logger.Error("object setup failed", "id", res.ID, "error", res.Err)
			}
		}()
	}
	return nil
}

func (v *viewer) tick(dt float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.angle += dt * mgl32.DegToRad(45)
	if w := v.eng.Window(); w != nil {
		v.camera.SetAspect(aspectOf(w.Width(), w.Height()))
	}
}

func (v *viewer) render(float32) {
	v.mu.Lock()
	id := v.objects[v.current].id
	m := v.camera.Transform(mgl32.HomogRotate3DY(v.angle))
	v.mu.Unlock()

	err := v.eng.Render(id, m)
	if errors.Is(err, common.ErrDeviceUnavailable) || errors.Is(err, common.ErrResourceNotFound) {
		// Nothing to draw yet; avoid spinning the render loop.
		time.Sleep(10 * time.Millisecond)
	}
}

func (v *viewer) next() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = (v.current + 1) % len(v.objects)
	v.logger.Info("showing object", "id", v.objects[v.current].id)
}

func (v *viewer) simulateLoss(ctx context.Context) {
	v.eng.HandleDeviceLost("simulated by user")
	if err := v.start(ctx); err != nil {
		v.logger.Error("failed to recover from device loss", "error", err)
	}
}

func aspectOf(width, height int) float32 {
	if width <= 0 || height <= 0 {
		return 1
	}
	return float32(width) / float32(height)
}
