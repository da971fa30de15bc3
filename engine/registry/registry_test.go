package registry

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-core/engine/session"
	"github.com/Carmen-Shannon/oxy-core/engine/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colored = []Attribute{
	{Name: "position", Offset: 0, Format: gpu.VertexFormatFloat32x3},
	{Name: "color", Offset: 12, Format: gpu.VertexFormatFloat32x4},
}

// triangle is three position+color vertices with a stride of 28 bytes.
var triangle = []float32{
	0, 0.5, 0, 1, 0, 0, 1,
	-0.5, -0.5, 0, 0, 1, 0, 1,
	0.5, -0.5, 0, 0, 0, 1, 1,
}

type harness struct {
	acquirer  *gputest.Acquirer
	session   session.Session
	pipelines pipeline.Cache
	textures  texture.Loader
	registry  Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{acquirer: gputest.NewAcquirer()}
	h.session = session.NewSession(h.acquirer)
	h.pipelines = pipeline.NewCache()
	tl, err := texture.NewLoader(texture.WithEpochCheck(h.session.Valid))
	require.NoError(t, err)
	h.textures = tl
	h.registry = NewRegistry(h.session, h.pipelines, h.textures, WithWorkers(2))
	t.Cleanup(h.registry.Close)
	h.session.OnInvalidate(func(uint64) {
		h.registry.Clear()
		h.pipelines.Invalidate()
		h.textures.Invalidate()
	})
	require.NoError(t, h.session.Initialize(context.Background()))
	return h
}

func (h *harness) backend() *gputest.Backend {
	return h.acquirer.Last()
}

func (h *harness) setupTriangle(t *testing.T, id, url string) *Object {
	t.Helper()
	_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{
		ID: id, Vertices: triangle, Stride: 28, Attributes: colored, TextureURL: url,
	})
	require.NoError(t, err)
	obj, ok := h.registry.Object(id)
	require.True(t, ok)
	return obj
}

func pngServer(t *testing.T, gate <-chan struct{}, started chan<- struct{}) *httptest.Server {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tex.png" {
			http.NotFound(w, r)
			return
		}
		if started != nil {
			started <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSetupTriangle(t *testing.T) {
	h := newHarness(t)
	obj := h.setupTriangle(t, "tri", "")

	assert.Equal(t, uint32(3), obj.Mesh.VertexCount)
	assert.Equal(t, uint32(3), obj.Provider.VertexCount())
	assert.True(t, obj.Texture.IsDummy())
	assert.Equal(t, uint64(1), obj.Generation)
	assert.Equal(t, h.session.Epoch(), obj.Epoch)

	vb := obj.Provider.VertexBuffer().(*gputest.Buffer)
	assert.Equal(t, uint64(len(triangle)*4), vb.Size())
	assert.Equal(t, common.SliceToBytes(triangle), vb.Bytes())

	ub := obj.Provider.Buffer(0).(*gputest.Buffer)
	assert.Equal(t, uint64(256), ub.Size())
	identity := common.IdentityMatrix()
	assert.Equal(t, common.SliceToBytes(identity[:]), ub.Bytes()[:64])

	bg := obj.Provider.BindGroup().(*gputest.BindGroup)
	require.Len(t, bg.Entries, 3)
	e, _ := bg.Entry(0)
	assert.Same(t, ub, e.Buffer)
	e, _ = bg.Entry(1)
	assert.Same(t, obj.Texture.Handle, e.Texture)
	e, _ = bg.Entry(2)
	assert.NotNil(t, e.Sampler)

	assert.Equal(t, []string{"tri"}, h.registry.IDs())
	assert.Equal(t, 1, h.registry.Len())
}

func TestSetupValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		desc ObjectDescriptor
	}{
		{"empty id", ObjectDescriptor{Vertices: triangle, Stride: 28, Attributes: colored}},
		{"zero stride", ObjectDescriptor{ID: "x", Vertices: triangle, Attributes: colored}},
		{"unaligned stride", ObjectDescriptor{ID: "x", Vertices: triangle, Stride: 30, Attributes: colored}},
		{"no vertices", ObjectDescriptor{ID: "x", Stride: 28, Attributes: colored}},
		{"partial vertex", ObjectDescriptor{ID: "x", Vertices: triangle[:20], Stride: 28, Attributes: colored}},
		{"attribute overruns stride", ObjectDescriptor{ID: "x", Vertices: triangle, Stride: 28, Attributes: []Attribute{
			{Name: "position", Offset: 20, Format: gpu.VertexFormatFloat32x3},
		}}},
		{"unknown format", ObjectDescriptor{ID: "x", Vertices: triangle, Stride: 28, Attributes: []Attribute{
			{Name: "position", Offset: 0, Format: "float16x2"},
		}}},
		{"no position", ObjectDescriptor{ID: "x", Vertices: triangle, Stride: 28, Attributes: colored[1:]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.registry.SetupObject(context.Background(), tt.desc)
			assert.ErrorIs(t, err, common.ErrInvalidMesh)
		})
	}
	assert.Equal(t, 0, h.backend().Count(gputest.OpCreateBuffer))
	assert.Equal(t, 0, h.registry.Len())
}

func TestSetupRequiresReadySession(t *testing.T) {
	s := session.NewSession(gputest.NewAcquirer())
	tl, err := texture.NewLoader()
	require.NoError(t, err)
	r := NewRegistry(s, pipeline.NewCache(), tl)

	_, err = r.SetupObject(context.Background(), ObjectDescriptor{ID: "tri", Vertices: triangle, Stride: 28, Attributes: colored})
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)
}

func TestSetupReplacesExistingObject(t *testing.T) {
	h := newHarness(t)
	first := h.setupTriangle(t, "tri", "")
	firstVB := first.Provider.VertexBuffer().(*gputest.Buffer)
	firstBG := first.Provider.BindGroup().(*gputest.BindGroup)

	quad := []float32{
		-1, -1, 0, 1, 1, 1, 1,
		1, -1, 0, 1, 1, 1, 1,
		1, 1, 0, 1, 1, 1, 1,
		-1, -1, 0, 1, 1, 1, 1,
		1, 1, 0, 1, 1, 1, 1,
		-1, 1, 0, 1, 1, 1, 1,
	}
	_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{ID: "tri", Vertices: quad, Stride: 28, Attributes: colored})
	require.NoError(t, err)

	second, ok := h.registry.Object("tri")
	require.True(t, ok)
	assert.Equal(t, uint32(6), second.Mesh.VertexCount)
	assert.Equal(t, uint64(2), second.Generation)
	assert.True(t, firstVB.Released())
	assert.True(t, firstBG.Released())
	assert.Same(t, first.Pipeline, second.Pipeline)
	assert.Equal(t, 1, h.registry.Len())
}

func TestSetupTextureResolution(t *testing.T) {
	h := newHarness(t)
	srv := pngServer(t, nil, nil)

	broken := h.setupTriangle(t, "broken", srv.URL+"/missing.png")
	assert.True(t, broken.Texture.IsDummy())

	none := h.setupTriangle(t, "none", "")
	assert.Same(t, broken.Texture, none.Texture)

	a := h.setupTriangle(t, "a", srv.URL+"/tex.png")
	b := h.setupTriangle(t, "b", srv.URL+"/tex.png")
	assert.False(t, a.Texture.IsDummy())
	assert.Same(t, a.Texture, b.Texture)
	assert.Equal(t, 2, h.textures.RefCount(srv.URL+"/tex.png"))

	require.NoError(t, h.registry.Remove("a"))
	assert.Equal(t, 1, h.textures.RefCount(srv.URL+"/tex.png"))
	require.NoError(t, h.registry.Remove("b"))
	assert.True(t, b.Texture.Handle.(*gputest.Texture).Released())
	assert.False(t, none.Texture.Handle.(*gputest.Texture).Released())
}

func TestIdenticalLayoutsSharePipeline(t *testing.T) {
	h := newHarness(t)
	a := h.setupTriangle(t, "a", "")
	b := h.setupTriangle(t, "b", "")

	assert.Same(t, a.Pipeline, b.Pipeline)
	assert.Equal(t, 1, h.pipelines.Len())
	assert.Equal(t, 1, h.backend().Count(gputest.OpCreatePipeline))

	_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{
		ID: "c", Vertices: []float32{0, 0, 1, 0, 0, 1}, Stride: 8,
		Attributes: []Attribute{{Name: "position", Format: gpu.VertexFormatFloat32x2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, h.pipelines.Len())
}

func TestSetupFailureReleasesPartialResources(t *testing.T) {
	tests := []struct {
		name string
		op   gputest.Op
		want error
	}{
		{"vertex buffer", gputest.OpCreateBuffer, common.ErrBufferCreationFailed},
		{"uniform write", gputest.OpWriteBuffer, common.ErrBufferCreationFailed},
		{"pipeline", gputest.OpCreatePipeline, common.ErrPipelineCreationFailed},
		{"bind group", gputest.OpCreateBind, common.ErrBufferCreationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend().Fail(tt.op, 1)

			_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{ID: "tri", Vertices: triangle, Stride: 28, Attributes: colored})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, h.registry.Len())
			for _, buf := range h.backend().Buffers() {
				assert.True(t, buf.Released(), buf.Label())
			}
			for _, bg := range h.backend().BindGroups() {
				assert.True(t, bg.Released())
			}

			h.setupTriangle(t, "tri", "")
		})
	}
}

func TestLastStartedSetupWins(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := pngServer(t, gate, started)

	slow := make(chan error, 1)
	go func() {
		_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{
			ID: "obj", Vertices: triangle, Stride: 28, Attributes: colored, TextureURL: srv.URL + "/tex.png",
		})
		slow <- err
	}()
	<-started

	fast := h.setupTriangle(t, "obj", "")
	close(gate)

	err := <-slow
	assert.ErrorIs(t, err, common.ErrSuperseded)
	assert.True(t, IsDiscarded(err))

	obj, ok := h.registry.Object("obj")
	require.True(t, ok)
	assert.Same(t, fast, obj)
	assert.True(t, obj.Texture.IsDummy())
	assert.Equal(t, 0, h.textures.Len())
	assert.False(t, obj.Provider.VertexBuffer().(*gputest.Buffer).Released())
}

func TestSetupDiscardedAfterDeviceLoss(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := pngServer(t, gate, started)
	lostBackend := h.backend()

	done := make(chan error, 1)
	go func() {
		_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{
			ID: "obj", Vertices: triangle, Stride: 28, Attributes: colored, TextureURL: srv.URL + "/tex.png",
		})
		done <- err
	}()
	<-started

	lostBackend.Lose("test")
	close(gate)

	err := <-done
	assert.ErrorIs(t, err, common.ErrDeviceLost)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, 0, h.pipelines.Len())
	assert.Equal(t, 0, lostBackend.Live())
}

func TestRemoveAndClear(t *testing.T) {
	h := newHarness(t)
	a := h.setupTriangle(t, "a", "")
	h.setupTriangle(t, "b", "")

	assert.ErrorIs(t, h.registry.Remove("missing"), common.ErrResourceNotFound)

	require.NoError(t, h.registry.Remove("a"))
	assert.True(t, a.Provider.BindGroup() == nil)
	assert.Equal(t, []string{"b"}, h.registry.IDs())

	h.registry.Clear()
	assert.Equal(t, 0, h.registry.Len())
	for _, buf := range h.backend().Buffers() {
		assert.True(t, buf.Released())
	}
}

func TestUseRebuildsMissingPipeline(t *testing.T) {
	h := newHarness(t)
	obj := h.setupTriangle(t, "tri", "")
	oldBG := obj.Provider.BindGroup().(*gputest.BindGroup)

	h.pipelines.Invalidate()

	var seen *Object
	err := h.registry.Use("tri", func(o *Object, backend gpu.Backend) error {
		seen = o
		assert.Same(t, h.backend(), backend)
		return nil
	})
	require.NoError(t, err)

	assert.Same(t, obj, seen)
	assert.Equal(t, 2, h.backend().Count(gputest.OpCreatePipeline))
	assert.True(t, oldBG.Released())
	assert.Same(t, obj.Pipeline.Handle(), obj.Provider.BindGroup().(*gputest.BindGroup).Pipeline)

	err = h.registry.Use("missing", func(*Object, gpu.Backend) error { return nil })
	assert.ErrorIs(t, err, common.ErrResourceNotFound)
}

func TestSetupObjectAsync(t *testing.T) {
	h := newHarness(t)

	var results []<-chan SetupResult
	for _, id := range []string{"a", "b", "c"} {
		results = append(results, h.registry.SetupObjectAsync(context.Background(), ObjectDescriptor{
			ID: id, Vertices: triangle, Stride: 28, Attributes: colored,
		}))
	}
	results = append(results, h.registry.SetupObjectAsync(context.Background(), ObjectDescriptor{ID: "bad", Stride: 28}))

	for i, ch := range results {
		select {
		case res, ok := <-ch:
			require.True(t, ok)
			if i < 3 {
				assert.NoError(t, res.Err)
			} else {
				assert.Equal(t, "bad", res.ID)
				assert.ErrorIs(t, res.Err, common.ErrInvalidMesh)
			}
			_, open := <-ch
			assert.False(t, open)
		case <-time.After(5 * time.Second):
			t.Fatal("async setup did not finish")
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, h.registry.IDs())
}

func pendingGenerations(r Registry) int {
	impl := r.(*registry)
	impl.mu.Lock()
	defer impl.mu.Unlock()
	return len(impl.generations)
}

func TestGenerationsArePruned(t *testing.T) {
	h := newHarness(t)
	h.setupTriangle(t, "a", "")
	h.setupTriangle(t, "b", "")
	assert.Equal(t, 0, pendingGenerations(h.registry))

	_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{ID: "c", Stride: 28})
	require.ErrorIs(t, err, common.ErrInvalidMesh)
	assert.Equal(t, 0, pendingGenerations(h.registry))

	h.backend().Fail(gputest.OpCreateBind, 1)
	_, err = h.registry.SetupObject(context.Background(), ObjectDescriptor{ID: "d", Vertices: triangle, Stride: 28, Attributes: colored})
	require.Error(t, err)
	assert.Equal(t, 0, pendingGenerations(h.registry))

	require.NoError(t, h.registry.Remove("a"))
	assert.ErrorIs(t, h.registry.Remove("never"), common.ErrResourceNotFound)
	assert.Equal(t, 0, pendingGenerations(h.registry))

	// A replacement after removal still supersedes nothing and commits.
	obj := h.setupTriangle(t, "a", "")
	assert.Greater(t, obj.Generation, uint64(2))
}

func TestRemoveDiscardsPendingSetup(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := pngServer(t, gate, started)
	h.setupTriangle(t, "obj", "")

	done := make(chan error, 1)
	go func() {
		_, err := h.registry.SetupObject(context.Background(), ObjectDescriptor{
			ID: "obj", Vertices: triangle, Stride: 28, Attributes: colored, TextureURL: srv.URL + "/tex.png",
		})
		done <- err
	}()
	<-started

	require.NoError(t, h.registry.Remove("obj"))
	close(gate)

	assert.ErrorIs(t, <-done, common.ErrSuperseded)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, 0, pendingGenerations(h.registry))
}

func TestCloseWaitsForAsyncSetups(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := pngServer(t, gate, started)

	pending := h.registry.SetupObjectAsync(context.Background(), ObjectDescriptor{
		ID: "obj", Vertices: triangle, Stride: 28, Attributes: colored, TextureURL: srv.URL + "/tex.png",
	})
	<-started

	closed := make(chan struct{})
	go func() {
		h.registry.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a setup was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	<-closed

	res := <-pending
	require.NoError(t, res.Err)

	late := <-h.registry.SetupObjectAsync(context.Background(), ObjectDescriptor{ID: "late", Vertices: triangle, Stride: 28, Attributes: colored})
	assert.ErrorIs(t, late.Err, common.ErrDeviceUnavailable)
	h.registry.Close()
}
