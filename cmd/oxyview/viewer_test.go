package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAspectOf(t *testing.T) {
	assert.Equal(t, float32(2), aspectOf(200, 100))
	assert.Equal(t, float32(1), aspectOf(0, 100))
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxyview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("renderer:\n  present_mode: uncapped\nprofiling: true\n"), 0o644))

	changed := map[string]bool{"log-level": true}
	cfg, err := resolveConfig(viewOptions{configPath: path, logLevel: "debug", presentMode: "vsync"}, func(name string) bool {
		return changed[name]
	})
	require.NoError(t, err)
	assert.Equal(t, "uncapped", cfg.Renderer.PresentMode)
	assert.True(t, cfg.Profiling)
	assert.Equal(t, "debug", cfg.LogLevel)

	changed["present-mode"] = true
	_, err = resolveConfig(viewOptions{presentMode: "mailbox"}, func(name string) bool { return changed[name] })
	assert.Error(t, err)
}

func TestConfigCommandPrintsDefaults(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config"})
	require.NoError(t, cmd.Execute())

	cfg := config.Default()
	var got config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, cfg, got)
}
