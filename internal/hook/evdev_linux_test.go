//go:build linux

package hook

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T) (*deviceReader, *[]Input) {
	t.Helper()
	prov, err := newPlatformProvider(Options{ScreenWidth: 100, ScreenHeight: 50, Logger: slog.Default()})
	require.NoError(t, err)
	var got []Input
	h := &evdevHook{p: prov.(*evdevProvider), sink: func(in Input) { got = append(got, in) }, stop: make(chan struct{})}
	return &deviceReader{hook: h, fd: -1}, &got
}

func TestDeviceReaderRelativeMotion(t *testing.T) {
	r, got := newTestReader(t)

	r.handle(evRel, relX, 5)
	r.handle(evRel, relY, -3)
	assert.Empty(t, *got, "motion is reported per frame")
	r.handle(evSyn, synReport, 0)

	require.Len(t, *got, 1)
	assert.Equal(t, InputMove, (*got)[0].Kind)
	assert.Equal(t, int32(55), (*got)[0].X)
	assert.Equal(t, int32(22), (*got)[0].Y)

	r.handle(evRel, relX, 1000)
	r.handle(evSyn, synReport, 0)
	assert.Equal(t, int32(99), (*got)[1].X, "clamped to screen")
}

func TestDeviceReaderAbsoluteMotion(t *testing.T) {
	r, got := newTestReader(t)
	r.absX = absRange{min: 0, max: 1000, ok: true}
	r.absY = absRange{min: 0, max: 1000, ok: true}

	r.handle(evAbs, absX, 500)
	r.handle(evSyn, synReport, 0)
	require.Len(t, *got, 1)
	assert.Equal(t, int32(49), (*got)[0].X)
	assert.Equal(t, int32(25), (*got)[0].Y, "unchanged axis keeps position")
}

func TestDeviceReaderWheelAndButtons(t *testing.T) {
	r, got := newTestReader(t)

	r.handle(evKey, btnLeft, keyPressed)
	r.handle(evKey, btnLeft, keyRepeated)
	r.handle(evRel, relWheel, -1)
	r.handle(evSyn, synReport, 0)

	require.Len(t, *got, 2)
	assert.Equal(t, InputClick, (*got)[0].Kind)
	assert.True(t, (*got)[0].Pressed)
	assert.Equal(t, int32(50), (*got)[0].X)
	assert.Equal(t, InputScroll, (*got)[1].Kind)
	assert.Equal(t, int32(-1), (*got)[1].DY)
}

func TestDeviceReaderKeys(t *testing.T) {
	r, got := newTestReader(t)

	r.handle(evKey, keyLeftShift, keyPressed)
	r.handle(evKey, 30, keyPressed)
	r.handle(evKey, 30, keyRepeated)
	r.handle(evKey, 30, keyReleased)
	r.handle(evKey, keyLeftShift, keyReleased)
	r.handle(evKey, 30, keyPressed)

	require.Len(t, *got, 6)
	assert.Equal(t, "shift", (*got)[0].Name)
	assert.Equal(t, 'A', (*got)[1].Char)
	assert.Equal(t, InputKeyDown, (*got)[2].Kind, "autorepeat reports key down")
	assert.Equal(t, InputKeyUp, (*got)[3].Kind)
	assert.Equal(t, 'a', (*got)[5].Char)
}
