package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraBuilderOption is a functional option for configuring a Camera.
type CameraBuilderOption func(*cameraImpl)

// WithFov sets the vertical field of view.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the initial aspect ratio.
//
// Parameters:
//   - aspect: width divided by height
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		if aspect > 0 {
			c.aspect = aspect
		}
	}
}

// WithClipPlanes sets the near and far clipping plane distances.
//
// Parameters:
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithTarget sets the orbit center.
//
// Parameters:
//   - target: the point to look at
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithTarget(target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.target = target
	}
}

// WithRadius sets the initial distance from the target.
//
// Parameters:
//   - radius: orbit radius
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithRadius(radius float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.radius = radius
	}
}

// WithRadiusBounds sets the zoom limits.
//
// Parameters:
//   - min: minimum radius
//   - max: maximum radius
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithRadiusBounds(min, max float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.minRadius = min
		c.maxRadius = max
	}
}

// WithAzimuth sets the initial horizontal angle around the up axis.
//
// Parameters:
//   - azimuth: angle in radians
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithAzimuth(azimuth float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle above the horizontal plane.
//
// Parameters:
//   - elevation: angle in radians
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithElevation(elevation float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.elevation = elevation
	}
}

// WithOrbitSpeed sets the angle of one orbit step.
//
// Parameters:
//   - speed: radians per step
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithOrbitSpeed(speed float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the distance of one zoom step.
//
// Parameters:
//   - speed: radius change per step
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithZoomSpeed(speed float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.zoomSpeed = speed
	}
}
