// Package engine records global input into an event log and replays it.
//
// A Session owns one macro.Log and moves between three states: Idle,
// Recording and Playing. Recording and playback are mutually exclusive.
// Playback runs on a single goroutine and can be stopped from any
// goroutine, including hook callbacks.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"macrorec/internal/hook"
	"macrorec/internal/logging"
	"macrorec/internal/macro"
	"macrorec/internal/metrics"
	"macrorec/internal/suppress"
)

var (
	// ErrInvalidState is returned when an operation conflicts with the
	// current session state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrEmptyLog is returned by Play when there is nothing to replay.
	ErrEmptyLog = errors.New("event log is empty")

	// ErrHookInstall is returned when the global input hook cannot be
	// installed.
	ErrHookInstall = errors.New("cannot install input hook")

	// ErrInjection marks a single event that could not be replayed.
	ErrInjection = errors.New("input injection failed")
)

// State is the session state.
type State int32

const (
	Idle State = iota
	Recording
	Playing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Defaults for Options.
const (
	DefaultPollSlice     = 10 * time.Millisecond
	DefaultIntervalSlice = 50 * time.Millisecond
	DefaultStopTimeout   = time.Second
	DefaultDrainTimeout  = 100 * time.Millisecond
	DefaultBufferSize    = 4096
)

// Options configures a Session.
type Options struct {
	// Source installs the recording hook.
	Source hook.Source
	// Injector performs replayed events.
	Injector hook.Injector
	// Gate is entered around every injected event. A nil Gate gets a
	// private one.
	Gate *suppress.Gate

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// PollSlice bounds each wait for an event's target time.
	PollSlice time.Duration
	// IntervalSlice bounds each wait of the pause between cycles.
	IntervalSlice time.Duration
	// StopTimeout bounds how long StopPlay waits for the player.
	StopTimeout time.Duration
	// DrainTimeout bounds how long StopRecording waits for queued input.
	DrainTimeout time.Duration
	// BufferSize is the capacity of the recorder's input queue.
	BufferSize int
}

func (o *Options) setDefaults() {
	if o.Gate == nil {
		o.Gate = &suppress.Gate{}
	}
	if o.Logger == nil {
		o.Logger = logging.Default().Logger
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard()
	}
	if o.PollSlice <= 0 {
		o.PollSlice = DefaultPollSlice
	}
	if o.IntervalSlice <= 0 {
		o.IntervalSlice = DefaultIntervalSlice
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
}

// Session is one recorder/player over a single event log.
type Session struct {
	opts    Options
	gate    *suppress.Gate
	metrics *metrics.Metrics
	recLog  *slog.Logger
	playLog *slog.Logger

	log *macro.Log

	mu       sync.Mutex
	state    State
	rec      *recording
	run      *run
	last     Result
	dropped  int64
	onFinish []func(Result)
}

// New creates an idle session. A provider may serve as both Source and
// Injector.
func New(opts Options) *Session {
	opts.setDefaults()
	return &Session{
		opts:    opts,
		gate:    opts.Gate,
		metrics: opts.Metrics,
		recLog:  opts.Logger.With("component", "recorder"),
		playLog: opts.Logger.With("component", "player"),
		log:     macro.NewLog(),
	}
}

// NewWithProvider creates a session recording from and replaying through
// one provider.
func NewWithProvider(p hook.Provider, opts Options) *Session {
	opts.Source = p
	opts.Injector = p
	return New(opts)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsPlaying reports whether a playback is in progress.
func (s *Session) IsPlaying() bool {
	return s.State() == Playing
}

// IsRecording reports whether a recording is in progress.
func (s *Session) IsRecording() bool {
	return s.State() == Recording
}

// IsSuppressed reports whether the session is injecting input right now.
func (s *Session) IsSuppressed() bool {
	return s.gate.Suppressed()
}

// Gate returns the suppression gate used around injected events.
func (s *Session) Gate() *suppress.Gate {
	return s.gate
}

// Events returns a copy of the event log.
func (s *Session) Events() []macro.Event {
	return s.log.Events()
}

// Len returns the number of events in the log.
func (s *Session) Len() int {
	return s.log.Len()
}

// Load replaces the event log. It fails with ErrInvalidState unless the
// session is idle.
func (s *Session) Load(events []macro.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrInvalidState
	}
	s.log.Replace(events)
	return nil
}

// OnFinish registers a callback run on the player goroutine when a
// playback ends. Callbacks must not block.
func (s *Session) OnFinish(fn func(Result)) {
	s.mu.Lock()
	s.onFinish = append(s.onFinish, fn)
	s.mu.Unlock()
}

// LastResult returns the result of the most recent finished playback.
func (s *Session) LastResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// DroppedInputs returns how many hook inputs the latest recording dropped
// because its queue was full.
func (s *Session) DroppedInputs() int64 {
	s.mu.Lock()
	rec, dropped := s.rec, s.dropped
	s.mu.Unlock()
	if rec != nil {
		return rec.dropped.Load()
	}
	return dropped
}
