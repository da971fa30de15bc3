package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithClearColor sets the color the surface is cleared to before each draw.
// When not specified, the default is DefaultClearColor.
//
// Parameters:
//   - c: the clear color
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color option to a renderer
func WithClearColor(c gpu.Color) RendererBuilderOption {
	return func(r *renderer) {
		r.clear = c
	}
}

// WithLogger sets the logger used by the renderer.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(l *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.logger = l
	}
}
