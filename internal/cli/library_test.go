package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrorec/internal/library"
	"macrorec/internal/recfile"
)

func TestLibraryCommands(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts := &RootOptions{}
	path := writeRecording(t, dir, "login.rec")

	out, err := execute(t, opts, args(cfgArgs, "library", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No recordings stored.")

	out, err = execute(t, opts, args(cfgArgs, "library", "add", path)...)
	require.NoError(t, err)
	assert.Contains(t, out, `Stored "login"`)

	out, err = execute(t, opts, args(cfgArgs, "library", "add", path, "--name", "other")...)
	require.NoError(t, err)
	assert.Contains(t, out, `Already stored as "login"`)

	out, err = execute(t, opts, args(cfgArgs, "library", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "0.020s")

	_, err = execute(t, opts, args(cfgArgs, "library", "rename", "login", "signin")...)
	require.NoError(t, err)

	exported := dir + "/exported.json"
	out, err = execute(t, opts, args(cfgArgs, "library", "export", "signin", exported)...)
	require.NoError(t, err)
	assert.Contains(t, out, `Exported "signin"`)
	events, err := recfile.Load(exported)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	_, err = execute(t, opts, args(cfgArgs, "library", "rm", "signin")...)
	require.NoError(t, err)

	_, err = execute(t, opts, args(cfgArgs, "library", "rm", "signin")...)
	require.Error(t, err)
	assert.ErrorIs(t, err, library.ErrNotFound)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLibraryAddInvalidFile(t *testing.T) {
	dir, cfgArgs := testEnv(t)

	_, err := execute(t, &RootOptions{}, args(cfgArgs, "library", "add", dir+"/absent.rec")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
