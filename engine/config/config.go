// Package config loads the YAML configuration of the viewer and the engine options it drives.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Window   WindowConfig   `yaml:"window"`
	Renderer RendererConfig `yaml:"renderer"`
	Textures TextureConfig  `yaml:"textures"`
	Registry RegistryConfig `yaml:"registry"`

	// Profiling logs frame statistics once per second.
	Profiling bool `yaml:"profiling"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// WindowConfig configures the viewer window.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	// MinWidth and MinHeight bound interactive resizing.
	MinWidth  int `yaml:"min_width"`
	MinHeight int `yaml:"min_height"`

	Resizable bool `yaml:"resizable"`

	// KeyRepeat delivers held keys repeatedly to the key callback.
	KeyRepeat bool `yaml:"key_repeat"`
}

// RendererConfig configures presentation and the frame renderer.
type RendererConfig struct {
	// ClearColor is RGBA in [0, 1].
	ClearColor [4]float64 `yaml:"clear_color"`

	// PresentMode is vsync or uncapped.
	PresentMode string `yaml:"present_mode"`

	// ForceSoftware requests the fallback (software) adapter.
	ForceSoftware bool `yaml:"force_software"`

	// FrameLimit caps the render loop in frames per second; 0 is uncapped.
	FrameLimit float64 `yaml:"frame_limit"`
}

// TextureConfig configures the texture loader.
type TextureConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxBytes         int64         `yaml:"max_bytes"`
	SamplerCacheSize int           `yaml:"sampler_cache_size"`
}

// RegistryConfig configures the resource registry.
type RegistryConfig struct {
	Workers int `yaml:"workers"`
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:     "oxyview",
			Width:     1280,
			Height:    720,
			MinWidth:  320,
			MinHeight: 240,
			Resizable: true,
			KeyRepeat: true,
		},
		Renderer: RendererConfig{
			ClearColor:  [4]float64{0.1, 0.1, 0.1, 1},
			PresentMode: "vsync",
		},
		Textures: TextureConfig{
			Timeout:          30 * time.Second,
			MaxBytes:         32 << 20,
			SamplerCacheSize: 16,
		},
		Registry: RegistryConfig{
			Workers: 4,
		},
		LogLevel: "info",
	}
}

// Load reads and validates the configuration file at path.
// Fields missing from the file keep their default values.
//
// Parameters:
//   - path: the YAML file to read
//
// Returns:
//   - Config: the loaded configuration
//   - error: error if the file cannot be read, parsed or validated
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys are rejected.
//
// Parameters:
//   - data: the YAML document
//
// Returns:
//   - Config: the parsed configuration
//   - error: error if the document is malformed or invalid
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid value.
//
// Returns:
//   - error: a description of the invalid field, or nil
func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.MinWidth <= 0 || c.Window.MinHeight <= 0 || c.Window.MinWidth > c.Window.Width || c.Window.MinHeight > c.Window.Height {
		return fmt.Errorf("invalid minimum window size %dx%d for %dx%d", c.Window.MinWidth, c.Window.MinHeight, c.Window.Width, c.Window.Height)
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("clear_color[%d] = %g is outside [0, 1]", i, v)
		}
	}
	switch c.Renderer.PresentMode {
	case "vsync", "uncapped":
	default:
		return fmt.Errorf("unknown present_mode %q", c.Renderer.PresentMode)
	}
	if c.Renderer.FrameLimit < 0 {
		return fmt.Errorf("negative frame_limit %g", c.Renderer.FrameLimit)
	}
	if c.Textures.Timeout <= 0 {
		return fmt.Errorf("texture timeout must be positive, got %s", c.Textures.Timeout)
	}
	if c.Textures.MaxBytes <= 0 {
		return fmt.Errorf("texture max_bytes must be positive, got %d", c.Textures.MaxBytes)
	}
	if c.Textures.SamplerCacheSize <= 0 {
		return fmt.Errorf("sampler_cache_size must be positive, got %d", c.Textures.SamplerCacheSize)
	}
	if c.Registry.Workers <= 0 {
		return fmt.Errorf("registry workers must be positive, got %d", c.Registry.Workers)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
//
// Returns:
//   - slog.Level: the level; info if LogLevel is invalid
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
	return l, nil
}
