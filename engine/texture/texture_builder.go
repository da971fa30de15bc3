package texture

import (
	"log/slog"
	"net/http"
	"time"
)

// LoaderBuilderOption is a functional option used to configure a Loader during construction.
type LoaderBuilderOption func(*loader)

// WithHTTPClient sets the client used for http and https fetches. Defaults to http.DefaultClient.
//
// Parameters:
//   - c: the HTTP client
//
// Returns:
//   - LoaderBuilderOption: a function that sets the client
func WithHTTPClient(c *http.Client) LoaderBuilderOption {
	return func(l *loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithTimeout sets the per-fetch timeout for http and https fetches. Defaults to 30 seconds.
//
// Parameters:
//   - d: the timeout; non-positive values keep the default
//
// Returns:
//   - LoaderBuilderOption: a function that sets the timeout
func WithTimeout(d time.Duration) LoaderBuilderOption {
	return func(l *loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxBytes sets the largest encoded image accepted. Defaults to 32 MiB.
//
// Parameters:
//   - n: the byte limit; non-positive values keep the default
//
// Returns:
//   - LoaderBuilderOption: a function that sets the limit
func WithMaxBytes(n int64) LoaderBuilderOption {
	return func(l *loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithSamplerCacheSize sets how many distinct samplers are kept. Defaults to 16.
//
// Parameters:
//   - n: the cache size; non-positive values keep the default
//
// Returns:
//   - LoaderBuilderOption: a function that sets the sampler cache size
func WithSamplerCacheSize(n int) LoaderBuilderOption {
	return func(l *loader) {
		if n > 0 {
			l.samplerSize = n
		}
	}
}

// WithEpochCheck sets the function consulted before a finished load is handed out. Loads whose
// epoch is no longer valid are released and reported as device loss.
//
// Parameters:
//   - valid: reports whether an epoch is still current
//
// Returns:
//   - LoaderBuilderOption: a function that sets the epoch check
func WithEpochCheck(valid func(epoch uint64) bool) LoaderBuilderOption {
	return func(l *loader) {
		l.valid = valid
	}
}

// WithLogger sets the logger used by the loader. Defaults to the package logger.
//
// Parameters:
//   - lg: the logger
//
// Returns:
//   - LoaderBuilderOption: a function that sets the logger
func WithLogger(lg *slog.Logger) LoaderBuilderOption {
	return func(l *loader) {
		l.logger = lg
	}
}
