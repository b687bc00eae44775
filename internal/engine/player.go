package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"macrorec/internal/hook"
	"macrorec/internal/macro"
)

// Reasons a playback ended.
const (
	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonCancelled = "cancelled"
)

// Result summarises one playback.
type Result struct {
	// Cycles is the number of cycles run to the end.
	Cycles int
	// Performed, Failed and Skipped count events across all cycles.
	Performed int
	Failed    int
	Skipped   int
	Reason    string
}

// run is one in-flight playback.
type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
	// performing is set while the player goroutine is inside an injector
	// call, the only place it can reach StopPlay from.
	performing atomic.Bool
}

// heldInputs tracks keys and buttons a run pressed and has not released.
type heldInputs struct {
	keys    map[macro.KeyToken]bool
	buttons map[macro.Button]bool
}

func (h *heldInputs) track(ev macro.Event) {
	switch e := ev.(type) {
	case macro.KeyPress:
		h.keys[e.Key] = true
	case macro.KeyRelease:
		delete(h.keys, e.Key)
	case macro.MouseClick:
		if e.Pressed {
			h.buttons[e.Button] = true
		} else {
			delete(h.buttons, e.Button)
		}
	}
}

// Play replays the log on a new goroutine and returns immediately.
// repeat <= 0 repeats until stopped; interval is the pause between
// cycles. Play fails with ErrInvalidState while recording and with
// ErrEmptyLog when there is nothing to play; it is a no-op while already
// playing. Cancelling ctx stops the playback.
func (s *Session) Play(ctx context.Context, repeat int, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Recording:
		return fmt.Errorf("play while recording: %w", ErrInvalidState)
	case Playing:
		return nil
	}
	if s.opts.Injector == nil {
		return fmt.Errorf("no input injector: %w", ErrInvalidState)
	}
	events := s.log.Events()
	if len(events) == 0 {
		return ErrEmptyLog
	}
	if interval < 0 {
		interval = 0
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.run = r
	s.state = Playing
	s.metrics.Playing.Set(1)
	s.playLog.Info("playback started", "events", len(events), "repeat", repeat, "interval", interval)

	go s.play(runCtx, r, events, repeat, interval)
	return nil
}

func (s *Session) play(ctx context.Context, r *run, events []macro.Event, repeat int, interval time.Duration) {
	var res Result
	held := &heldInputs{keys: map[macro.KeyToken]bool{}, buttons: map[macro.Button]bool{}}
	defer func() {
		r.performing.Store(true)
		s.releaseHeld(held)
		r.performing.Store(false)
		s.finish(r, res)
	}()

	first := events[0].Offset()
	for cycle := 0; repeat <= 0 || cycle < repeat; cycle++ {
		if cycle > 0 && interval > 0 {
			if !s.sleep(ctx, time.Now().Add(interval), s.opts.IntervalSlice) {
				res.Reason = s.reason(r)
				return
			}
		}

		base := time.Now().Add(-seconds(first))
		for _, ev := range events {
			target := base.Add(seconds(ev.Offset()))
			if !s.sleep(ctx, target, s.opts.PollSlice) {
				res.Reason = s.reason(r)
				return
			}
			s.metrics.EventLateness.ObserveDuration(time.Since(target))

			r.performing.Store(true)
			err := s.perform(ev)
			r.performing.Store(false)
			switch {
			case err == nil:
				held.track(ev)
				res.Performed++
				s.metrics.EventsPerformed.Inc()
			case errors.Is(err, hook.ErrUnmappedKey):
				res.Skipped++
				s.metrics.KeysUnmapped.Inc()
				s.playLog.Debug("event skipped", "event", ev, "error", err)
			default:
				res.Failed++
				s.metrics.InjectionErrors.Inc()
				s.playLog.Warn("event failed", "event", ev, "error", err)
			}
		}
		res.Cycles++
		s.metrics.CyclesCompleted.Inc()
	}
	res.Reason = ReasonCompleted
}

func (s *Session) reason(r *run) string {
	if r.stopped.Load() {
		return ReasonStopped
	}
	return ReasonCancelled
}

// sleep waits until target in slices of at most slice, returning false
// as soon as ctx is done.
func (s *Session) sleep(ctx context.Context, target time.Time, slice time.Duration) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		d := time.Until(target)
		if d <= 0 {
			return true
		}
		if d > slice {
			d = slice
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

// perform injects one event inside a suppression scope covering every
// sub-step. Panics from the injector are returned as errors.
func (s *Session) perform(ev macro.Event) (err error) {
	release := s.gate.Scope()
	defer release()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInjection, p)
		}
	}()

	inj := s.opts.Injector
	switch e := ev.(type) {
	case macro.MouseMove:
		err = inj.MoveTo(e.X, e.Y)
	case macro.MouseClick:
		if err = inj.MoveTo(e.X, e.Y); err == nil {
			err = inj.Button(e.Button, e.Pressed)
		}
	case macro.MouseScroll:
		if err = inj.MoveTo(e.X, e.Y); err == nil {
			err = inj.Scroll(e.DX, e.DY)
		}
	case macro.KeyPress:
		err = inj.Key(e.Key, true)
	case macro.KeyRelease:
		err = inj.Key(e.Key, false)
	default:
		err = fmt.Errorf("unsupported event %T", ev)
	}
	if err != nil && !errors.Is(err, hook.ErrUnmappedKey) {
		err = fmt.Errorf("%w: %s: %w", ErrInjection, ev.Kind(), err)
	}
	return err
}

// releaseHeld releases what the run left pressed, so a stopped playback
// or a recording that ends mid-chord does not leave a modifier down.
func (s *Session) releaseHeld(h *heldInputs) {
	if len(h.keys) == 0 && len(h.buttons) == 0 {
		return
	}
	release := s.gate.Scope()
	defer release()
	defer func() {
		if p := recover(); p != nil {
			s.playLog.Warn("releasing held input panicked", "panic", p)
		}
	}()

	inj := s.opts.Injector
	for k := range h.keys {
		if err := inj.Key(k, false); err != nil {
			s.playLog.Debug("key release failed", "key", k, "error", err)
		}
	}
	for b := range h.buttons {
		if err := inj.Button(b, false); err != nil {
			s.playLog.Debug("button release failed", "button", b, "error", err)
		}
	}
}

// finish runs on every exit of the player goroutine. It never blocks on
// other goroutines, so StopPlay waiting for it cannot deadlock.
func (s *Session) finish(r *run, res Result) {
	s.mu.Lock()
	if s.run == r {
		s.run = nil
		if s.state == Playing {
			s.state = Idle
		}
		s.metrics.Playing.Set(0)
	}
	s.last = res
	callbacks := append([]func(Result){}, s.onFinish...)
	s.mu.Unlock()

	r.cancel()
	s.playLog.Info("playback finished",
		"reason", res.Reason,
		"cycles", res.Cycles,
		"performed", res.Performed,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	for _, fn := range callbacks {
		fn(res)
	}
	close(r.done)
}

// StopPlay cancels the playback and waits up to StopTimeout for the
// player goroutine to exit. On return the session is not playing. It is
// a no-op when nothing is playing.
//
// When an injection in progress does not return within injectionGrace,
// StopPlay does not wait: the caller is then likely a hook sink fed
// synchronously by the injector on the player goroutine, which cannot
// exit until StopPlay returns.
func (s *Session) StopPlay() {
	s.mu.Lock()
	r := s.run
	if r == nil {
		s.mu.Unlock()
		return
	}
	r.stopped.Store(true)
	r.cancel()
	s.mu.Unlock()

	if injectionSettles(r) {
		select {
		case <-r.done:
		case <-time.After(s.opts.StopTimeout):
			s.playLog.Warn("player did not stop in time", "timeout", s.opts.StopTimeout)
		}
	}

	s.mu.Lock()
	if s.run == r {
		s.run = nil
		if s.state == Playing {
			s.state = Idle
		}
		s.metrics.Playing.Set(0)
	}
	s.mu.Unlock()
}

// injectionGrace bounds how long StopPlay waits for an injector call to
// return before it gives up waiting for the player.
const injectionGrace = 20 * time.Millisecond

// injectionSettles reports whether the player left its injector call
// within injectionGrace.
func injectionSettles(r *run) bool {
	deadline := time.Now().Add(injectionGrace)
	for r.performing.Load() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Wait blocks until the current playback ends or ctx is done. It returns
// immediately when nothing is playing.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
