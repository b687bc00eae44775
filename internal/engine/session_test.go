package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrorec/internal/hook"
	"macrorec/internal/logging"
	"macrorec/internal/macro"
	"macrorec/internal/recfile"
)

func newTestSession(t *testing.T) (*Session, *hook.Simulated) {
	t.Helper()
	sim := hook.NewSimulated()
	t.Cleanup(func() { sim.Close() })
	s := NewWithProvider(sim, Options{Logger: logging.Discard()})
	return s, sim
}

func waitDone(t *testing.T, s *Session, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestNewSessionIsIdle(t *testing.T) {
	s, _ := newTestSession(t)
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.IsPlaying())
	assert.False(t, s.IsRecording())
	assert.False(t, s.IsSuppressed())
	assert.Equal(t, 0, s.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recording", Recording.String())
	assert.Equal(t, "playing", Playing.String())
}

func TestRecordingBlocksPlayback(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.StartRecording())
	defer s.StopRecording()

	err := s.Play(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, Recording, s.State())

	assert.ErrorIs(t, s.StartRecording(), ErrInvalidState, "second start")
	assert.ErrorIs(t, s.Load(nil), ErrInvalidState)
}

func TestPlaybackBlocksRecording(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Load([]macro.Event{
		macro.MouseMove{Time: 0, X: 1, Y: 1},
		macro.MouseMove{Time: 5, X: 2, Y: 2},
	}))
	require.NoError(t, s.Play(context.Background(), 1, 0))
	defer s.StopPlay()

	assert.ErrorIs(t, s.StartRecording(), ErrInvalidState)
	assert.Equal(t, Playing, s.State())
}

func TestPlayEmptyLog(t *testing.T) {
	s, _ := newTestSession(t)
	assert.ErrorIs(t, s.Play(context.Background(), 1, 0), ErrEmptyLog)
	assert.Equal(t, Idle, s.State())
}

// Record, save, reload in a fresh session and play once.
func TestSaveReloadPlayScenario(t *testing.T) {
	recorded := []macro.Event{
		macro.MouseMove{Time: 0, X: 10, Y: 10},
		macro.KeyPress{Time: 0.5, Key: macro.CharKey('a')},
		macro.KeyRelease{Time: 0.6, Key: macro.CharKey('a')},
	}
	first, _ := newTestSession(t)
	require.NoError(t, first.Load(recorded))

	path := filepath.Join(t.TempDir(), "scenario.rec")
	require.NoError(t, recfile.Save(path, first.Events()))

	loaded, err := recfile.Load(path)
	require.NoError(t, err)

	s, sim := newTestSession(t)
	require.NoError(t, s.Load(loaded))
	require.NoError(t, s.Play(context.Background(), 1, 0))
	waitDone(t, s, 3*time.Second)

	actions := sim.Actions()
	require.Len(t, actions, 3)
	assert.Equal(t, hook.ActionMove, actions[0].Kind)
	assert.Equal(t, int32(10), actions[0].X)
	assert.Equal(t, int32(10), actions[0].Y)

	assert.Equal(t, hook.ActionKey, actions[1].Kind)
	assert.Equal(t, macro.CharKey('a'), actions[1].Key)
	assert.True(t, actions[1].Pressed)
	assert.Equal(t, hook.ActionKey, actions[2].Kind)
	assert.False(t, actions[2].Pressed)

	gap := actions[2].At.Sub(actions[1].At)
	assert.InDelta(t, 100*time.Millisecond, gap, float64(20*time.Millisecond))

	assert.Equal(t, Idle, s.State())
	res := s.LastResult()
	assert.Equal(t, ReasonCompleted, res.Reason)
	assert.Equal(t, 1, res.Cycles)
	assert.Equal(t, 3, res.Performed)
}
