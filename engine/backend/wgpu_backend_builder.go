package backend

import (
	"log/slog"

	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how rendered frames are delivered to the display.
type PresentMode int

const (
	// PresentModeVSync waits for the vertical blank (FIFO). Supported everywhere.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents immediately and may tear.
	PresentModeUncapped
)

// ParsePresentMode maps a configuration value ("vsync" or "uncapped") to a PresentMode.
// Unknown values fall back to PresentModeVSync.
func ParsePresentMode(s string) PresentMode {
	if s == "uncapped" {
		return PresentModeUncapped
	}
	return PresentModeVSync
}

func (m PresentMode) wgpu() wgpu.PresentMode {
	if m == PresentModeUncapped {
		return wgpu.PresentModeImmediate
	}
	return wgpu.PresentModeFifo
}

// AcquirerBuilderOption is a functional option for configuring an acquirer.
type AcquirerBuilderOption func(a *acquirer)

// WithSurfaceSource sets the platform window the surface is created from. Without one the
// surface is created from the first gpu.Surface passed to ConfigureSurface that provides a
// surface descriptor.
//
// Parameters:
//   - src: the surface descriptor provider, typically an engine window
//
// Returns:
//   - AcquirerBuilderOption: option function to apply
func WithSurfaceSource(src SurfaceSource) AcquirerBuilderOption {
	return func(a *acquirer) {
		a.source = src
	}
}

// WithForceFallbackAdapter requests the software (fallback) adapter.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - AcquirerBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) AcquirerBuilderOption {
	return func(a *acquirer) {
		a.forceFallbackAdapter = force
	}
}

// WithPresentMode sets the present mode used when configuring the surface.
//
// Parameters:
//   - mode: the PresentMode to use
//
// Returns:
//   - AcquirerBuilderOption: option function to apply
func WithPresentMode(mode PresentMode) AcquirerBuilderOption {
	return func(a *acquirer) {
		a.presentMode = mode
	}
}

// WithLogger sets the logger used by acquired backends.
//
// Parameters:
//   - logger: the slog logger
//
// Returns:
//   - AcquirerBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) AcquirerBuilderOption {
	return func(a *acquirer) {
		a.logger = logger
	}
}
