package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Controller binds a Session to a playback configuration so playback can
// be toggled without arguments, as a hotkey does.
type Controller struct {
	*Session

	ctx context.Context

	mu       sync.Mutex
	repeat   int
	interval time.Duration
}

// NewController returns a controller that plays with repeat and interval
// until ctx is done.
func NewController(ctx context.Context, s *Session, repeat int, interval time.Duration) *Controller {
	return &Controller{Session: s, ctx: ctx, repeat: repeat, interval: interval}
}

// SetPlayback changes the settings used by the next TogglePlay.
func (c *Controller) SetPlayback(repeat int, interval time.Duration) {
	c.mu.Lock()
	c.repeat, c.interval = repeat, interval
	c.mu.Unlock()
}

// Playback returns the current settings.
func (c *Controller) Playback() (int, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeat, c.interval
}

// TogglePlay stops a running playback or starts a new one. Failures to
// start are logged.
func (c *Controller) TogglePlay() {
	if c.IsPlaying() {
		c.StopPlay()
		return
	}
	repeat, interval := c.Playback()
	if err := c.Play(c.ctx, repeat, interval); err != nil {
		level := c.playLog.Warn
		if errors.Is(err, ErrEmptyLog) {
			level = c.playLog.Info
		}
		level("toggle play ignored", "error", err)
	}
}
