// Package camera provides an orbit camera that produces the view-projection half of the
// transforms a host passes to Render.
package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// clipCorrection maps OpenGL clip depth [-1, 1] to the WebGPU range [0, 1].
var clipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type cameraImpl struct {
	mu *sync.Mutex

	up     mgl32.Vec3
	target mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	// Spherical coordinates of the eye relative to the target.
	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32

	view           mgl32.Mat4
	projection     mgl32.Mat4
	viewProjection mgl32.Mat4
}

// Camera is a perspective camera orbiting a target point.
// Matrices are column-major and recomputed whenever a parameter changes.
type Camera interface {
	// Position returns the eye position in world space.
	Position() mgl32.Vec3

	// Target returns the point the camera looks at.
	Target() mgl32.Vec3

	// SetTarget moves the orbit center.
	//
	// Parameters:
	//   - target: the new target
	SetTarget(target mgl32.Vec3)

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// SetAspect updates the projection for a new surface size ratio.
	//
	// Parameters:
	//   - aspect: width divided by height; non-positive values are ignored
	SetAspect(aspect float32)

	// Radius returns the distance between eye and target.
	Radius() float32

	// Orbit rotates the eye around the target by whole orbit steps. Elevation is clamped
	// so the camera never flips over the pole.
	//
	// Parameters:
	//   - azimuthSteps: horizontal steps, positive to the right
	//   - elevationSteps: vertical steps, positive upward
	Orbit(azimuthSteps, elevationSteps float32)

	// Zoom moves the eye toward the target by delta zoom steps, clamped to the radius bounds.
	//
	// Parameters:
	//   - delta: positive zooms in
	Zoom(delta float32)

	// ViewMatrix returns the current view matrix.
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current projection matrix with WebGPU depth range.
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns projection * view.
	ViewProjectionMatrix() mgl32.Mat4

	// Transform returns the full transform for a model matrix: projection * view * model.
	//
	// Parameters:
	//   - model: the object's model matrix
	//
	// Returns:
	//   - [16]float32: the column-major transform to pass to Render
	Transform(model mgl32.Mat4) [16]float32
}

var _ Camera = &cameraImpl{}

// NewCamera creates an orbit camera looking at the origin from a slight elevation.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:     &sync.Mutex{},
		up:     mgl32.Vec3{0, 1, 0},
		fov:    mgl32.DegToRad(45),
		aspect: 1,
		near:   0.1,
		far:    100,

		radius:    3,
		elevation: float32(math.Pi / 12),

		minRadius:    0.5,
		maxRadius:    50,
		minElevation: -float32(math.Pi/2 - 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),

		orbitSpeed: 0.05,
		zoomSpeed:  0.25,
	}
	for _, option := range options {
		option(c)
	}
	c.radius = clamp(c.radius, c.minRadius, c.maxRadius)
	c.elevation = clamp(c.elevation, c.minElevation, c.maxElevation)
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) SetTarget(target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.updateMatrices()
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) Radius() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radius
}

func (c *cameraImpl) Orbit(azimuthSteps, elevationSteps float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azimuth += azimuthSteps * c.orbitSpeed
	c.elevation = clamp(c.elevation+elevationSteps*c.orbitSpeed, c.minElevation, c.maxElevation)
	c.updateMatrices()
}

func (c *cameraImpl) Zoom(delta float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radius = clamp(c.radius-delta*c.zoomSpeed, c.minRadius, c.maxRadius)
	c.updateMatrices()
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjection
}

func (c *cameraImpl) Transform(model mgl32.Mat4) [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjection.Mul4(model)
}

// position computes the eye from the spherical coordinates. Caller must hold the mutex.
func (c *cameraImpl) position() mgl32.Vec3 {
	cosElev := float32(math.Cos(float64(c.elevation)))
	sinElev := float32(math.Sin(float64(c.elevation)))
	cosAzim := float32(math.Cos(float64(c.azimuth)))
	sinAzim := float32(math.Sin(float64(c.azimuth)))
	return c.target.Add(mgl32.Vec3{
		c.radius * cosElev * sinAzim,
		c.radius * sinElev,
		c.radius * cosElev * cosAzim,
	})
}

// updateMatrices recalculates the view, projection and view-projection matrices.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.view = mgl32.LookAtV(c.position(), c.target, c.up)
	c.projection = clipCorrection.Mul4(mgl32.Perspective(c.fov, c.aspect, c.near, c.far))
	c.viewProjection = c.projection.Mul4(c.view)
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
