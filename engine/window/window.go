// Package window provides the platform window that hosts the presentation surface.
package window

import (
	"errors"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// ErrNotOpen is returned when operating on a window that is not open.
var ErrNotOpen = errors.New("window is not open")

// Window provides platform windowing and input event handling.
// It is a gpu.Surface and can describe its native surface to the WebGPU backend.
type Window interface {
	gpu.Surface

	// SetUpdateCallback sets the function called each message loop iteration while the
	// window is visible.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized to a
	// non-empty size.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyDownCallback sets the callback for key press events, and for repeats when key
	// repeat is enabled. Escape closes the window and is not delivered.
	//
	// Parameters:
	//   - callback: function receiving the GLFW key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SurfaceDescriptor returns the platform surface descriptor used to create the WebGPU surface.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil if the window is not open
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Minimized reports whether the window is iconified and has no drawable surface.
	Minimized() bool

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// Close destroys the window.
	//
	// Returns:
	//   - error: ErrNotOpen if the window is not open
	Close() error

	// ProcessMessages runs the platform message loop until the window closes.
	// Must be called from the main thread.
	ProcessMessages()
}

// platform is the native half of a window.
type platform interface {
	surfaceDescriptor() *wgpu.SurfaceDescriptor
	shouldClose() bool

	// poll processes pending events. When wait is set it blocks until an event arrives or a
	// short timeout passes.
	poll(wait bool)
	requestClose()
	destroy()
}

// engineWindow is the platform-independent half of a Window.
type engineWindow struct {
	mu *sync.Mutex

	title     string
	width     int
	height    int
	minWidth  int
	minHeight int
	resizable bool
	keyRepeat bool
	minimized bool

	platform platform

	onUpdate  func()
	onResize  func(width, height int)
	onKeyDown func(keyCode uint32)
}

var _ Window = &engineWindow{}

// NewWindow creates and opens a platform window.
//
// Parameters:
//   - options: functional options for window configuration
//
// Returns:
//   - Window: the opened window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := newEngineWindow(options...)
	p, err := openGLFW(w)
	if err != nil {
		return nil, err
	}
	w.platform = p
	return w, nil
}

// newEngineWindow applies the defaults and options without opening a platform window.
func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		mu:        &sync.Mutex{},
		title:     "oxyview",
		width:     1280,
		height:    720,
		minWidth:  320,
		minHeight: 240,
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.platform == nil {
		return nil
	}
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) Minimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *engineWindow) IsRunning() bool {
	return w.platform != nil && !w.platform.shouldClose()
}

func (w *engineWindow) Close() error {
	if w.platform == nil {
		return ErrNotOpen
	}
	w.platform.destroy()
	w.platform = nil
	return nil
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		w.platform.poll(w.Minimized())
		if !w.IsRunning() {
			break
		}

		if !w.Minimized() && w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

// handleKey routes a platform key event.
func (w *engineWindow) handleKey(key glfw.Key, action glfw.Action) {
	switch {
	case action == glfw.Press:
	case action == glfw.Repeat && w.keyRepeat:
	default:
		return
	}
	if key == glfw.KeyEscape {
		if action == glfw.Press && w.platform != nil {
			w.platform.requestClose()
		}
		return
	}
	if w.onKeyDown != nil {
		w.onKeyDown(uint32(key))
	}
}

// handleResize records the framebuffer size. An empty framebuffer is not forwarded; it is
// what minimizing reports on some platforms.
func (w *engineWindow) handleResize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()

	if width > 0 && height > 0 && w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) handleIconify(iconified bool) {
	w.mu.Lock()
	w.minimized = iconified
	w.mu.Unlock()
}
