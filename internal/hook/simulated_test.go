package hook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrorec/internal/macro"
)

func TestNewSelectsBackend(t *testing.T) {
	p, err := New(Options{Backend: "Simulated"})
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, p)

	_, err = New(Options{Backend: "xinput"})
	assert.Error(t, err)
}

func TestSimulatedInstallEmitUninstall(t *testing.T) {
	s := NewSimulated()
	var got []Input
	h, err := s.Install(func(in Input) { got = append(got, in) })
	require.NoError(t, err)
	assert.Equal(t, 1, s.Installed())

	s.Emit(Input{Kind: InputMove, X: 3, Y: 4})
	require.Len(t, got, 1)
	assert.Equal(t, InputMove, got[0].Kind)
	assert.False(t, got[0].At.IsZero(), "emit stamps a time")

	require.NoError(t, h.Uninstall())
	require.NoError(t, h.Uninstall())
	assert.Equal(t, 0, s.Installed())

	s.Emit(Input{Kind: InputMove})
	assert.Len(t, got, 1)
}

func TestSimulatedInstallError(t *testing.T) {
	s := NewSimulated()
	s.InstallErr = ErrNotAvailable
	_, err := s.Install(func(Input) {})
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestSimulatedRecordsActions(t *testing.T) {
	s := NewSimulated()
	require.NoError(t, s.MoveTo(10, 20))
	require.NoError(t, s.Button(macro.ButtonLeft, true))
	require.NoError(t, s.Scroll(0, -2))
	require.NoError(t, s.Key(macro.CharKey('a'), true))
	require.NoError(t, s.Key(macro.NamedKey("shift"), false))

	actions := s.Actions()
	require.Len(t, actions, 5)
	assert.Equal(t, ActionMove, actions[0].Kind)
	assert.Equal(t, Action{Kind: ActionButton, At: actions[1].At, X: 10, Y: 20, Button: macro.ButtonLeft, Pressed: true}, actions[1])
	assert.Equal(t, int32(-2), actions[2].DY)
	assert.Equal(t, macro.CharKey('a'), actions[3].Key)
	assert.False(t, actions[4].Pressed)

	x, y := s.Position()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)

	s.Reset()
	assert.Empty(t, s.Actions())
}

func TestSimulatedUnmappedKey(t *testing.T) {
	s := NewSimulated()
	err := s.Key(macro.NamedKey("hyper"), true)
	assert.ErrorIs(t, err, ErrUnmappedKey)
	err = s.Button(macro.ButtonUnknown, true)
	assert.ErrorIs(t, err, ErrUnmappedKey)
	assert.Empty(t, s.Actions())
}

func TestSimulatedFailWith(t *testing.T) {
	s := NewSimulated()
	boom := errors.New("boom")
	s.FailWith(func(a Action) error {
		if a.Kind == ActionScroll {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, s.Scroll(1, 1), boom)
	assert.NoError(t, s.MoveTo(1, 1))
	assert.Len(t, s.Actions(), 1)
}

func TestSimulatedEcho(t *testing.T) {
	s := NewSimulated()
	s.SetEcho(true)
	var got []Input
	_, err := s.Install(func(in Input) { got = append(got, in) })
	require.NoError(t, err)

	require.NoError(t, s.Key(macro.CharKey('a'), true))
	require.NoError(t, s.Key(macro.NamedKey("esc"), false))

	require.Len(t, got, 2)
	assert.Equal(t, InputKeyDown, got[0].Kind)
	assert.Equal(t, 'a', got[0].Char)
	assert.Equal(t, uint16(30), got[0].Code)
	assert.Equal(t, InputKeyUp, got[1].Kind)
	assert.Equal(t, "esc", got[1].Name)
}

func TestSimulatedOnActionRunsBeforeRecording(t *testing.T) {
	s := NewSimulated()
	var seen int
	s.OnAction(func(Action) { seen = len(s.Actions()) })
	require.NoError(t, s.MoveTo(1, 1))
	assert.Equal(t, 0, seen)
}

func TestSimulatedClose(t *testing.T) {
	s := NewSimulated()
	_, err := s.Install(func(Input) {})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, 0, s.Installed())
	assert.ErrorIs(t, s.MoveTo(1, 1), ErrClosed)
	_, err = s.Install(func(Input) {})
	assert.ErrorIs(t, err, ErrClosed)
}
