package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// minimizedPollTimeout is how long a minimized window blocks waiting for events, in seconds.
const minimizedPollTimeout = 0.1

// glfwPlatform is a GLFW window. GLFW calls must come from the thread that opened it.
type glfwPlatform struct {
	window *glfw.Window
}

var _ platform = &glfwPlatform{}

// openGLFW initializes GLFW, opens a window without a client API and routes its events to w.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func openGLFW(w *engineWindow) (*glfwPlatform, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	// The surface is driven by WebGPU, not OpenGL.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfwBool(w.resizable))

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create GLFW window %q: %w", w.title, err)
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, glfw.DontCare, glfw.DontCare)

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		w.handleKey(key, action)
	})
	// Framebuffer size, not window size: they differ on high-DPI displays and the surface is
	// configured in pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.handleResize(width, height)
	})
	win.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		w.handleIconify(iconified)
	})

	fbWidth, fbHeight := win.GetFramebufferSize()
	w.mu.Lock()
	w.width, w.height = fbWidth, fbHeight
	w.mu.Unlock()

	return &glfwPlatform{window: win}, nil
}

func glfwBool(v bool) int {
	if v {
		return glfw.True
	}
	return glfw.False
}

// surfaceDescriptor uses the wgpuglfw bridge, which covers Windows, X11, Wayland and macOS.
func (p *glfwPlatform) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(p.window)
}

func (p *glfwPlatform) shouldClose() bool {
	return p.window.ShouldClose()
}

func (p *glfwPlatform) poll(wait bool) {
	if wait {
		glfw.WaitEventsTimeout(minimizedPollTimeout)
		return
	}
	glfw.PollEvents()
}

func (p *glfwPlatform) requestClose() {
	p.window.SetShouldClose(true)
}

func (p *glfwPlatform) destroy() {
	p.window.Destroy()
	glfw.Terminate()
}
