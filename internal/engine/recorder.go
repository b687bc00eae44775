package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"macrorec/internal/hook"
	"macrorec/internal/macro"
)

// recording is one active capture: the hook subscription, the queue the
// hook sink feeds and the goroutine draining it into the log.
type recording struct {
	start time.Time
	log   *slog.Logger

	mu     sync.RWMutex
	closed bool
	inputs chan hook.Input

	hook    hook.Hook
	stopAt  atomic.Pointer[time.Time]
	dropped atomic.Int64
	warned  atomic.Bool
	// abandoned is set when StopRecording gave up waiting for the drain.
	abandoned atomic.Bool
	done      chan struct{}
}

// sink is installed as the hook callback. It never blocks: when the queue
// is full the input is dropped and counted.
func (r *recording) sink(in hook.Input) {
	if in.At.IsZero() {
		in.At = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.inputs <- in:
	default:
		r.dropped.Add(1)
		if !r.warned.Swap(true) {
			r.log.Warn("recorder queue full, dropping input", "capacity", cap(r.inputs))
		}
	}
}

// close stops accepting input. Inputs already queued are still drained.
func (r *recording) close(at time.Time) {
	r.stopAt.Store(&at)
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.inputs)
	}
	r.mu.Unlock()
}

// StartRecording clears the log and starts capturing global input. It
// fails with ErrInvalidState unless the session is idle and with
// ErrHookInstall when the hook cannot be installed.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("start recording while %s: %w", s.state, ErrInvalidState)
	}
	if s.opts.Source == nil {
		return fmt.Errorf("no input source: %w", ErrHookInstall)
	}

	s.log.Reset()
	rec := &recording{
		start:  time.Now(),
		log:    s.recLog,
		inputs: make(chan hook.Input, s.opts.BufferSize),
		done:   make(chan struct{}),
	}
	h, err := s.opts.Source.Install(rec.sink)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHookInstall, err)
	}
	rec.hook = h
	go s.drain(rec)

	s.rec = rec
	s.dropped = 0
	s.state = Recording
	s.metrics.Recording.Set(1)
	s.recLog.Info("recording started")
	return nil
}

// drain converts queued inputs into events until the queue is closed.
// Inputs observed after the stop instant are discarded.
func (s *Session) drain(rec *recording) {
	defer close(rec.done)
	for in := range rec.inputs {
		if stop := rec.stopAt.Load(); stop != nil && in.At.After(*stop) {
			continue
		}
		if rec.abandoned.Load() {
			continue
		}
		ev, ok := toEvent(in, in.At.Sub(rec.start).Seconds())
		if !ok {
			s.recLog.Debug("input has no key token, skipped", "code", in.Code)
			continue
		}
		s.log.Append(ev)
		s.metrics.EventsRecorded.Inc()
	}
}

// StopRecording ends the recording. It is a no-op unless the session is
// recording. Events captured up to the stop instant stay in the log.
func (s *Session) StopRecording() error {
	stopAt := time.Now()

	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return nil
	}
	rec := s.rec
	s.rec = nil
	s.state = Idle
	s.mu.Unlock()
	s.metrics.Recording.Set(0)

	var uninstallErr error
	if err := rec.hook.Uninstall(); err != nil {
		uninstallErr = fmt.Errorf("uninstall input hook: %w", err)
	}
	rec.close(stopAt)

	select {
	case <-rec.done:
	case <-time.After(s.opts.DrainTimeout):
		rec.abandoned.Store(true)
		s.recLog.Warn("recorder drain timed out", "timeout", s.opts.DrainTimeout)
	}

	s.mu.Lock()
	s.dropped = rec.dropped.Load()
	s.mu.Unlock()
	if n := rec.dropped.Load(); n > 0 {
		s.metrics.InputsDropped.Add(uint64(n))
	}
	s.recLog.Info("recording stopped", "events", s.log.Len(), "dropped", rec.dropped.Load())
	return uninstallErr
}

// toEvent converts a hook input observed t seconds into the recording.
// Keys with neither a printable character nor a name are rejected.
func toEvent(in hook.Input, t float64) (macro.Event, bool) {
	switch in.Kind {
	case hook.InputMove:
		return macro.MouseMove{Time: t, X: in.X, Y: in.Y}, true
	case hook.InputClick:
		return macro.MouseClick{Time: t, X: in.X, Y: in.Y, Button: in.Button, Pressed: in.Pressed}, true
	case hook.InputScroll:
		return macro.MouseScroll{Time: t, X: in.X, Y: in.Y, DX: in.DX, DY: in.DY}, true
	case hook.InputKeyDown, hook.InputKeyUp:
		tok, ok := macro.TokenFor(in.Char, in.Name)
		if !ok {
			return nil, false
		}
		if in.Kind == hook.InputKeyDown {
			return macro.KeyPress{Time: t, Key: tok}, true
		}
		return macro.KeyRelease{Time: t, Key: tok}, true
	default:
		return nil, false
	}
}
