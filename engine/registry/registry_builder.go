package registry

import "log/slog"

// RegistryBuilderOption is a functional option used to configure a Registry during construction.
type RegistryBuilderOption func(*registry)

// WithWorkers sets the number of workers running asynchronous setups. Defaults to 4.
//
// Parameters:
//   - n: the worker count; non-positive values keep the default
//
// Returns:
//   - RegistryBuilderOption: a function that sets the worker count
func WithWorkers(n int) RegistryBuilderOption {
	return func(r *registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger used by the registry. Defaults to the package logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - RegistryBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) RegistryBuilderOption {
	return func(r *registry) {
		r.logger = l
	}
}
