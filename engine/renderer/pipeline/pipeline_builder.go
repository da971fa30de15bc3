package pipeline

import "log/slog"

// CacheBuilderOption is a functional option used to configure a Cache during construction.
type CacheBuilderOption func(*cache)

// WithLogger sets the logger used by the cache. Defaults to the package logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - CacheBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) CacheBuilderOption {
	return func(c *cache) {
		c.logger = l
	}
}
