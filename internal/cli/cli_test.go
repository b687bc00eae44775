package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"macrorec/internal/hook"
	"macrorec/internal/macro"
	"macrorec/internal/recfile"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writes and reads.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// testEnv points every path at a temporary data directory and returns
// the config flag arguments for it.
func testEnv(t *testing.T) (dir string, configArgs []string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("MACROREC_DATA_DIR", dir)
	t.Setenv("MACROREC_NOTIFY_ENABLED", "false")
	t.Setenv("MACROREC_METRICS_ENABLED", "false")
	t.Setenv("MACROREC_LOG_LEVEL", "error")
	return dir, []string{"--config", filepath.Join(dir, "config.toml")}
}

func newTestCommand(opts *RootOptions, args ...string) (*cobra.Command, *lockedBuffer) {
	cmd := newRootCommand(opts)
	out := &lockedBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&lockedBuffer{})
	cmd.SetArgs(args)
	return cmd, out
}

// execute runs the root command to completion.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd, out := newTestCommand(opts, args...)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func simulatedOptions(t *testing.T) (*RootOptions, *hook.Simulated) {
	t.Helper()
	sim := hook.NewSimulated()
	t.Cleanup(func() { sim.Close() })
	return &RootOptions{Provider: sim}, sim
}

func clickEvents() []macro.Event {
	return []macro.Event{
		macro.MouseMove{Time: 0, X: 10, Y: 10},
		macro.MouseClick{Time: 0.01, X: 10, Y: 10, Button: macro.ButtonLeft, Pressed: true},
		macro.MouseClick{Time: 0.02, X: 10, Y: 10, Button: macro.ButtonLeft, Pressed: false},
	}
}

func writeRecording(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, recfile.Save(path, clickEvents()))
	return path
}

func args(base []string, more ...string) []string {
	return append(append([]string{}, base...), more...)
}
