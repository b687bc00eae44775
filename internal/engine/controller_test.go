package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerToggle(t *testing.T) {
	s, sim := newTestSession(t)
	require.NoError(t, s.Load(moves(0, 10)))
	c := NewController(context.Background(), s, 1, 0)

	c.TogglePlay()
	assert.True(t, c.IsPlaying())
	require.Eventually(t, func() bool { return len(sim.Actions()) == 1 }, time.Second, 5*time.Millisecond)

	c.TogglePlay()
	assert.False(t, c.IsPlaying())
	assert.Equal(t, ReasonStopped, s.LastResult().Reason)
}

func TestControllerUsesCurrentSettings(t *testing.T) {
	s, sim := newTestSession(t)
	require.NoError(t, s.Load(moves(0)))
	c := NewController(context.Background(), s, 1, time.Second)
	c.SetPlayback(3, 0)

	repeat, interval := c.Playback()
	assert.Equal(t, 3, repeat)
	assert.Equal(t, time.Duration(0), interval)

	c.TogglePlay()
	waitDone(t, s, time.Second)
	assert.Len(t, sim.Actions(), 3)
}

func TestControllerToggleWithEmptyLog(t *testing.T) {
	s, _ := newTestSession(t)
	c := NewController(context.Background(), s, 1, 0)
	c.TogglePlay()
	assert.Equal(t, Idle, s.State())
}
