package window

import "github.com/Carmen-Shannon/oxy-core/engine/config"

// WindowBuilderOption is a functional option for configuring a window before it opens.
type WindowBuilderOption func(w *engineWindow)

// WithConfig applies the window section of the viewer configuration. Zero sizes keep the
// defaults.
//
// Parameters:
//   - cfg: the window configuration
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithConfig(cfg config.WindowConfig) WindowBuilderOption {
	return func(w *engineWindow) {
		if cfg.Title != "" {
			w.title = cfg.Title
		}
		if cfg.Width > 0 && cfg.Height > 0 {
			w.width, w.height = cfg.Width, cfg.Height
		}
		if cfg.MinWidth > 0 && cfg.MinHeight > 0 {
			w.minWidth, w.minHeight = cfg.MinWidth, cfg.MinHeight
		}
		w.resizable = cfg.Resizable
		w.keyRepeat = cfg.KeyRepeat
	}
}
