package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrorec/internal/hook"
	"macrorec/internal/library"
	"macrorec/internal/recfile"
)

func TestRecordRequiresDestination(t *testing.T) {
	_, cfgArgs := testEnv(t)
	opts, _ := simulatedOptions(t)

	_, err := execute(t, opts, args(cfgArgs, "record", "--duration", "10ms")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecordWritesFileAndLibrary(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts, sim := simulatedOptions(t)
	path := dir + "/captured.rec"

	stop := make(chan struct{})
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := int32(0); ; i++ {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
			sim.Emit(hook.Input{Kind: hook.InputMove, At: time.Now(), X: i, Y: i})
		}
	}()

	out, err := execute(t, opts, args(cfgArgs,
		"record", "-o", path, "--duration", "300ms", "--save-to-library", "captured")...)
	close(stop)
	<-emitted
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded")
	assert.Contains(t, out, "Saved "+path)
	assert.Contains(t, out, `Stored "captured"`)

	events, err := recfile.Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	out, err = execute(t, opts, args(cfgArgs, "library", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "captured")
}

func TestPlayFile(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts, sim := simulatedOptions(t)
	path := writeRecording(t, dir, "click.rec")

	out, err := execute(t, opts, args(cfgArgs, "play", path, "--repeat", "2", "--interval", "10ms")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Playing "+path+": 3 events, 2 times")
	assert.Contains(t, out, "Playback completed after 2 cycles: 6 performed, 0 failed, 0 skipped")
	assert.NotEmpty(t, sim.Actions())
}

func TestPlayUsesConfiguredDefaults(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	t.Setenv("MACROREC_PLAYBACK_REPEAT", "3")
	t.Setenv("MACROREC_PLAYBACK_INTERVAL_MS", "5")
	opts, _ := simulatedOptions(t)
	path := writeRecording(t, dir, "click.rec")

	out, err := execute(t, opts, args(cfgArgs, "play", path)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Playback completed after 3 cycles: 9 performed")
}

func TestPlayLibraryReference(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts, _ := simulatedOptions(t)
	path := writeRecording(t, dir, "click.rec")

	_, err := execute(t, opts, args(cfgArgs, "library", "add", path, "--name", "clicks")...)
	require.NoError(t, err)

	out, err := execute(t, opts, args(cfgArgs, "play", "clicks", "--interval", "0s")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Playing clicks (")
	assert.Contains(t, out, "Playback completed after 1 cycles: 3 performed")

	lib, err := library.Open(dir+"/library.db", nil)
	require.NoError(t, err)
	defer lib.Close()
	rec, err := lib.Resolve(context.Background(), "clicks")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.PlayCount)
}

func TestPlayUnknownReference(t *testing.T) {
	_, cfgArgs := testEnv(t)
	opts, _ := simulatedOptions(t)

	_, err := execute(t, opts, args(cfgArgs, "play", "nothing-stored")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, library.ErrNotFound)

	_, err = execute(t, opts, args(cfgArgs, "play", "missing.rec")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPlayRejectsNegativeRepeat(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts, _ := simulatedOptions(t)
	path := writeRecording(t, dir, "click.rec")

	_, err := execute(t, opts, args(cfgArgs, "play", path, "--repeat", "-1")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPlayStoppedByUserInput(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts, sim := simulatedOptions(t)
	path := writeRecording(t, dir, "click.rec")

	cmd, out := newTestCommand(opts, args(cfgArgs, "play", path, "--repeat", "0", "--interval", "10ms")...)
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()

	require.Eventually(t, func() bool { return len(sim.Actions()) > 0 }, 2*time.Second, 5*time.Millisecond)

	// Input that lands inside an injection is suppressed, so keep moving
	// until the playback ends.
	var err error
	require.Eventually(t, func() bool {
		sim.Emit(hook.Input{Kind: hook.InputMove, At: time.Now(), X: 500, Y: 500})
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Playback stopped after")
	assert.Contains(t, out.String(), "Stopped by user input")
}

func TestPlayNoInterference(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	opts, sim := simulatedOptions(t)
	path := writeRecording(t, dir, "click.rec")

	cmd, out := newTestCommand(opts, args(cfgArgs,
		"play", path, "--repeat", "0", "--interval", "10ms", "--no-interference")...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return len(sim.Actions()) > 0 }, 2*time.Second, 5*time.Millisecond)
	for range 5 {
		sim.Emit(hook.Input{Kind: hook.InputMove, At: time.Now(), X: 500, Y: 500})
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case err := <-done:
		t.Fatalf("playback ended despite --no-interference: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("play did not return after cancel")
	}
	assert.Contains(t, out.String(), "Playback cancelled")
}

func TestInfoAndConvert(t *testing.T) {
	dir, cfgArgs := testEnv(t)
	path := writeRecording(t, dir, "click.rec")
	yamlPath := dir + "/click.yaml"

	out, err := execute(t, &RootOptions{}, args(cfgArgs, "info", path)...)
	require.NoError(t, err)
	assert.Contains(t, out, "3 events, 0.020s")
	assert.Contains(t, out, "mouse_click")

	out, err = execute(t, &RootOptions{}, args(cfgArgs, "convert", path, yamlPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+yamlPath)

	out, err = execute(t, &RootOptions{}, args(cfgArgs, "info", yamlPath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "3 events")
}
