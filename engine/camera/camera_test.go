package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func assertVec3InDelta(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

func TestPositionFromSphericalCoordinates(t *testing.T) {
	c := NewCamera(WithRadius(2), WithElevation(0), WithAzimuth(0))
	assertVec3InDelta(t, mgl32.Vec3{0, 0, 2}, c.Position())

	// cos(pi/2) in float32 is not exactly zero.
	c = NewCamera(WithRadius(2), WithElevation(0), WithAzimuth(float32(math.Pi/2)), WithTarget(mgl32.Vec3{1, 0, 0}))
	assertVec3InDelta(t, mgl32.Vec3{3, 0, 0}, c.Position())
}

func TestTargetProjectsToCenterInDepthRange(t *testing.T) {
	c := NewCamera(WithRadius(5), WithAspect(16.0/9.0), WithClipPlanes(0.1, 100))

	clip := c.ViewProjectionMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	ndc := clip.Vec3().Mul(1 / clip.W())
	assert.InDelta(t, 0, ndc.X(), 1e-5)
	assert.InDelta(t, 0, ndc.Y(), 1e-5)
	assert.Greater(t, ndc.Z(), float32(0))
	assert.Less(t, ndc.Z(), float32(1))
}

func TestNearAndFarPlanesMapToWebGPUDepth(t *testing.T) {
	c := NewCamera(WithClipPlanes(1, 10))
	p := c.ProjectionMatrix()

	near := p.Mul4x1(mgl32.Vec4{0, 0, -1, 1})
	far := p.Mul4x1(mgl32.Vec4{0, 0, -10, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), 1e-5)
	assert.InDelta(t, 1, far.Z()/far.W(), 1e-5)
}

func TestOrbitClampsElevation(t *testing.T) {
	c := NewCamera(WithOrbitSpeed(1))
	c.Orbit(0, 10)
	pos := c.Position()
	assert.Less(t, pos.Y(), c.Radius())
	assert.Greater(t, pos.Y(), float32(0))

	c.Orbit(0, -20)
	assert.Less(t, c.Position().Y(), float32(0))
}

func TestZoomClampsRadius(t *testing.T) {
	c := NewCamera(WithRadius(3), WithRadiusBounds(1, 4), WithZoomSpeed(1))
	c.Zoom(1)
	assert.InDelta(t, 2, c.Radius(), 1e-6)
	c.Zoom(5)
	assert.InDelta(t, 1, c.Radius(), 1e-6)
	c.Zoom(-10)
	assert.InDelta(t, 4, c.Radius(), 1e-6)
}

func TestTransformComposesModel(t *testing.T) {
	c := NewCamera()
	model := mgl32.Translate3D(1, 2, 3)
	want := c.ViewProjectionMatrix().Mul4(model)
	assert.Equal(t, [16]float32(want), c.Transform(model))

	c.SetAspect(2)
	assert.Equal(t, float32(2), c.Aspect())
	c.SetAspect(0)
	assert.Equal(t, float32(2), c.Aspect())
}
