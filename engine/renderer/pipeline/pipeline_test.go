package pipeline

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var positionColor = []Attribute{
	{Name: "position", Offset: 0, Format: gpu.VertexFormatFloat32x3},
	{Name: "color", Offset: 12, Format: gpu.VertexFormatFloat32x4},
}

func TestEnsureSharesPipelinePerSignature(t *testing.T) {
	b := gputest.NewBackend()
	c := NewCache()

	p1, err := c.Ensure(b, 1, 28, positionColor)
	require.NoError(t, err)
	p2, err := c.Ensure(b, 1, 28, append([]Attribute(nil), positionColor...))
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, b.Count(gputest.OpCreatePipeline))

	got, ok := c.Get(NewSignature(28, positionColor))
	require.True(t, ok)
	assert.Same(t, p1, got)
}

func TestEnsureBuildsPerDistinctLayout(t *testing.T) {
	b := gputest.NewBackend()
	c := NewCache()

	_, err := c.Ensure(b, 1, 28, positionColor)
	require.NoError(t, err)
	_, err = c.Ensure(b, 1, 20, []Attribute{
		{Name: "position", Offset: 0, Format: gpu.VertexFormatFloat32x3},
		{Name: "uv", Offset: 12, Format: gpu.VertexFormatFloat32x2},
	})
	require.NoError(t, err)
	_, err = c.Ensure(b, 1, 32, positionColor)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, b.Count(gputest.OpCreatePipeline))
}

func TestEnsureRoutesRecognizedAttributes(t *testing.T) {
	b := gputest.NewBackend()
	c := NewCache()

	p, err := c.Ensure(b, 1, 36, []Attribute{
		{Name: "position", Offset: 0, Format: gpu.VertexFormatFloat32x3},
		{Name: "normal", Offset: 12, Format: gpu.VertexFormatFloat32x3},
		{Name: "uv", Offset: 24, Format: gpu.VertexFormatFloat32x2},
	})
	require.NoError(t, err)

	assert.Equal(t, gpu.VertexBufferLayout{
		ArrayStride: 36,
		Attributes: []gpu.VertexAttribute{
			{Format: gpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
		},
	}, p.VertexLayout())

	built := b.Pipelines()[0]
	assert.Equal(t, p.VertexLayout(), built.Desc.VertexLayout)
	assert.Equal(t, "vs_main", built.Desc.VertexEntryPoint)
	assert.Equal(t, "fs_main", built.Desc.FragmentEntryPoint)
	assert.Equal(t, gpu.TextureFormatBGRA8Unorm, built.Format)
	assert.Len(t, built.Desc.BindGroupLayout, 3)
	assert.Contains(t, built.Desc.ShaderSource, "return vec4<f32>(1.0, 1.0, 1.0, 1.0);")
}

func TestEnsureRebuildsStaleEpoch(t *testing.T) {
	b := gputest.NewBackend()
	c := NewCache()

	old, err := c.Ensure(b, 1, 28, positionColor)
	require.NoError(t, err)
	fresh, err := c.Ensure(b, 2, 28, positionColor)
	require.NoError(t, err)

	assert.NotSame(t, old, fresh)
	assert.Equal(t, uint64(2), fresh.Epoch())
	assert.True(t, b.Pipelines()[0].Released())
	assert.Equal(t, 1, c.Len())
}

func TestEnsureFailures(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		b := gputest.NewBackend()
		b.Fail(gputest.OpCreatePipeline, 1)
		c := NewCache()

		_, err := c.Ensure(b, 1, 28, positionColor)
		assert.True(t, errors.Is(err, common.ErrPipelineCreationFailed))
		assert.True(t, errors.Is(err, gputest.ErrInjected))
		assert.Equal(t, 0, c.Len())

		_, err = c.Ensure(b, 1, 28, positionColor)
		assert.NoError(t, err)
	})

	t.Run("surface not configured", func(t *testing.T) {
		b := gputest.NewBackend()
		b.Unconfigure()

		_, err := NewCache().Ensure(b, 1, 28, positionColor)
		assert.ErrorIs(t, err, common.ErrPipelineCreationFailed)
		assert.ErrorIs(t, err, common.ErrSurfaceNotConfigured)
	})

	t.Run("no position", func(t *testing.T) {
		b := gputest.NewBackend()

		_, err := NewCache().Ensure(b, 1, 16, []Attribute{{Name: "color", Format: gpu.VertexFormatFloat32x4}})
		assert.ErrorIs(t, err, common.ErrPipelineCreationFailed)
		assert.Equal(t, 0, b.Count(gputest.OpCreatePipeline))
	})
}

func TestInvalidateReleasesEverything(t *testing.T) {
	b := gputest.NewBackend()
	c := NewCache()

	_, err := c.Ensure(b, 1, 28, positionColor)
	require.NoError(t, err)
	_, err = c.Ensure(b, 1, 12, positionColor[:1])
	require.NoError(t, err)

	c.Invalidate()

	assert.Equal(t, 0, c.Len())
	for _, p := range b.Pipelines() {
		assert.True(t, p.Released())
	}
	_, ok := c.Get(NewSignature(28, positionColor))
	assert.False(t, ok)
}

func TestSignatureIsStructural(t *testing.T) {
	a := NewSignature(28, positionColor)
	assert.Equal(t, a, NewSignature(28, []Attribute{
		{Name: "position", Offset: 0, Format: gpu.VertexFormatFloat32x3},
		{Name: "color", Offset: 12, Format: gpu.VertexFormatFloat32x4},
	}))
	assert.NotEqual(t, a, NewSignature(28, []Attribute{positionColor[1], positionColor[0]}))
	assert.NotEqual(t, a, NewSignature(32, positionColor))
}
