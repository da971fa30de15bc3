package common

import "errors"

// Error kinds shared by every engine component. Callers match them with errors.Is;
// components wrap them with context using fmt.Errorf and %w.
var (
	// ErrDeviceUnavailable is returned when no compatible graphics device exists or the session is not ready.
	ErrDeviceUnavailable = errors.New("graphics device unavailable")

	// ErrDeviceLost is returned when the graphics device was lost while an operation was in flight.
	ErrDeviceLost = errors.New("graphics device lost")

	// ErrBufferCreationFailed is returned when a GPU buffer or bind group could not be created.
	ErrBufferCreationFailed = errors.New("buffer creation failed")

	// ErrTextureLoadFailed is returned when a texture could not be fetched, decoded or uploaded.
	ErrTextureLoadFailed = errors.New("texture load failed")

	// ErrPipelineCreationFailed is returned when a shader module or render pipeline could not be built.
	ErrPipelineCreationFailed = errors.New("pipeline creation failed")

	// ErrResourceNotFound is returned when an object id is not present in the registry.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrInvalidMesh is returned when vertex data, stride and attributes do not describe a drawable mesh.
	ErrInvalidMesh = errors.New("invalid mesh")

	// ErrSuperseded is returned when a newer setup for the same object id started before this one finished.
	ErrSuperseded = errors.New("superseded by a newer setup")

	// ErrSurfaceNotConfigured is returned when an operation needs the presentation surface before it was configured.
	ErrSurfaceNotConfigured = errors.New("surface not configured")
)
