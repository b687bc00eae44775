package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrorec/internal/config"
)

func TestConfigInit(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	path := filepath.Join(dir, "config.toml")

	out, err := execute(t, &RootOptions{}, args(cfgArgs, "config", "init")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, &RootOptions{}, args(cfgArgs, "config", "init")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, &RootOptions{}, args(cfgArgs, "config", "init", "--force")...)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Version, cfg.Version)
}

func TestConfigShow(t *testing.T) {
	_, cfgArgs := testEnv(t)
	t.Setenv("MACROREC_PLAYBACK_REPEAT", "7")

	out, err := execute(t, &RootOptions{}, args(cfgArgs, "config", "show", "--format", "json")...)
	require.NoError(t, err)

	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	playback, ok := shown["playback"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, playback["repeat"])

	out, err = execute(t, &RootOptions{}, args(cfgArgs, "config", "show")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[playback]")

	_, err = execute(t, &RootOptions{}, args(cfgArgs, "config", "show", "--format", "ini")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigShowBackendOverride(t *testing.T) {
	_, cfgArgs := testEnv(t)

	out, err := execute(t, &RootOptions{}, args(cfgArgs, "--backend", "simulated", "config", "show")...)
	require.NoError(t, err)
	assert.Contains(t, out, `backend = "simulated"`)
}

func TestConfigInvalidFile(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[playback]\nrepeat = -4\n"), 0o600))

	_, err := execute(t, &RootOptions{}, args(cfgArgs, "config", "show")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfigSchema(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "config", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "playback")
	assert.Contains(t, props, "hotkey")
}

func TestConfigMigrate(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n\n[playback]\nrepeat = 2\ninterval_sec = 1.5\n"), 0o600))

	out, err := execute(t, &RootOptions{}, args(cfgArgs, "config", "migrate")...)
	require.NoError(t, err)
	assert.Contains(t, out, "from version 1 to 2")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Playback.IntervalMs)

	out, err = execute(t, &RootOptions{}, args(cfgArgs, "config", "migrate")...)
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")
}

func TestConfigPath(t *testing.T) {
	dir, cfgArgs := testEnv(t)

	out, err := execute(t, &RootOptions{}, args(cfgArgs, "config", "path")...)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml")+"\n", out)
}
