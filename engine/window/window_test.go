package window

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/config"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform closes after a fixed number of polls.
type fakePlatform struct {
	polls      int
	waits      int
	closeAfter int
	closed     bool
	destroyed  bool
	onPoll     func(n int)
}

func (p *fakePlatform) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	return &wgpu.SurfaceDescriptor{Label: "fake"}
}

func (p *fakePlatform) shouldClose() bool { return p.closed }

func (p *fakePlatform) poll(wait bool) {
	p.polls++
	if wait {
		p.waits++
	}
	if p.onPoll != nil {
		p.onPoll(p.polls)
	}
	if p.polls >= p.closeAfter {
		p.closed = true
	}
}

func (p *fakePlatform) requestClose() { p.closed = true }

func (p *fakePlatform) destroy() { p.destroyed = true }

func TestWithConfig(t *testing.T) {
	cfg := config.Default().Window
	cfg.Title = "demo"
	cfg.Width, cfg.Height = 800, 600
	cfg.MinWidth, cfg.MinHeight = 100, 50
	cfg.Resizable = false

	w := newEngineWindow(WithConfig(cfg))

	assert.Equal(t, "demo", w.title)
	assert.Equal(t, 800, w.Width())
	assert.Equal(t, 600, w.Height())
	assert.Equal(t, [2]int{100, 50}, [2]int{w.minWidth, w.minHeight})
	assert.False(t, w.resizable)
	assert.True(t, w.keyRepeat)
}

func TestWithConfigKeepsDefaultsForZeroSizes(t *testing.T) {
	w := newEngineWindow(WithConfig(config.WindowConfig{}))

	assert.Equal(t, "oxyview", w.title)
	assert.Equal(t, 1280, w.Width())
	assert.Equal(t, 720, w.Height())
	assert.Equal(t, 320, w.minWidth)
}

func TestWindowThatIsNotOpen(t *testing.T) {
	w := newEngineWindow()

	assert.False(t, w.IsRunning())
	assert.Nil(t, w.SurfaceDescriptor())
	assert.ErrorIs(t, w.Close(), ErrNotOpen)
	w.ProcessMessages()
}

func TestProcessMessagesRunsUpdatesUntilClosed(t *testing.T) {
	p := &fakePlatform{closeAfter: 5}
	w := newEngineWindow()
	w.platform = p

	updates := 0
	w.SetUpdateCallback(func() { updates++ })
	w.ProcessMessages()

	assert.Equal(t, 5, p.polls)
	assert.Equal(t, 4, updates)
	assert.False(t, w.IsRunning())
	assert.Equal(t, "fake", w.SurfaceDescriptor().Label)

	require.NoError(t, w.Close())
	assert.True(t, p.destroyed)
	assert.ErrorIs(t, w.Close(), ErrNotOpen)
}

func TestMinimizedWindowWaitsWithoutUpdating(t *testing.T) {
	p := &fakePlatform{closeAfter: 6}
	w := newEngineWindow()
	w.platform = p
	p.onPoll = func(n int) {
		switch n {
		case 2:
			w.handleIconify(true)
		case 4:
			w.handleIconify(false)
		}
	}

	updates := 0
	w.SetUpdateCallback(func() { updates++ })
	w.ProcessMessages()

	// Iconified by poll 2 and restored by poll 4, so polls 3 and 4 wait and poll 2 and 3 are
	// not followed by an update.
	assert.Equal(t, 2, p.waits)
	assert.Equal(t, 3, updates)
	assert.False(t, w.Minimized())
}

func TestKeyEvents(t *testing.T) {
	p := &fakePlatform{closeAfter: 100}
	w := newEngineWindow(WithConfig(config.WindowConfig{KeyRepeat: false}))
	w.platform = p

	var keys []uint32
	w.SetKeyDownCallback(func(k uint32) { keys = append(keys, k) })

	w.handleKey(glfw.KeyTab, glfw.Press)
	w.handleKey(glfw.KeyTab, glfw.Repeat)
	w.handleKey(glfw.KeyTab, glfw.Release)
	assert.Equal(t, []uint32{uint32(glfw.KeyTab)}, keys)

	w.keyRepeat = true
	w.handleKey(glfw.KeyLeft, glfw.Repeat)
	assert.Equal(t, []uint32{uint32(glfw.KeyTab), uint32(glfw.KeyLeft)}, keys)

	w.handleKey(glfw.KeyEscape, glfw.Repeat)
	assert.True(t, w.IsRunning())
	w.handleKey(glfw.KeyEscape, glfw.Press)
	assert.False(t, w.IsRunning())
	assert.Len(t, keys, 2)
}

func TestResizeSkipsEmptyFramebuffer(t *testing.T) {
	w := newEngineWindow()
	var sizes [][2]int
	w.SetResizeCallback(func(width, height int) { sizes = append(sizes, [2]int{width, height}) })

	w.handleResize(640, 480)
	w.handleResize(0, 0)

	assert.Equal(t, [][2]int{{640, 480}}, sizes)
	assert.Equal(t, 0, w.Width())
	assert.Equal(t, 0, w.Height())
}
