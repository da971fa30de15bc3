package session

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
)

// SessionBuilderOption is a functional option for configuring a session.
type SessionBuilderOption func(s *session)

// WithLogger sets the logger used for lifecycle events.
//
// Parameters:
//   - logger: the slog logger
//
// Returns:
//   - SessionBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) SessionBuilderOption {
	return func(s *session) {
		s.logger = logger
	}
}

// WithSurface sets a surface to configure as soon as a device is acquired.
//
// Parameters:
//   - surface: the presentation target
//
// Returns:
//   - SessionBuilderOption: option function to apply
func WithSurface(surface gpu.Surface) SessionBuilderOption {
	return func(s *session) {
		s.surface = surface
	}
}
