package hook

import (
	"fmt"
	"sync"
	"time"

	"macrorec/internal/macro"
)

// ActionKind identifies a synthesized input.
type ActionKind uint8

const (
	ActionMove ActionKind = iota + 1
	ActionButton
	ActionScroll
	ActionKey
)

// Action is one injection performed on a Simulated provider.
type Action struct {
	Kind    ActionKind
	At      time.Time
	X, Y    int32
	Button  macro.Button
	Pressed bool
	DX, DY  int32
	Key     macro.KeyToken
}

// Simulated is an in-memory Provider. Emit delivers input to installed
// sinks synchronously, like an OS hook thread would; injections are
// recorded and can be echoed back to the sinks.
type Simulated struct {
	mu       sync.Mutex
	sinks    map[int]Sink
	nextID   int
	actions  []Action
	x, y     int32
	echo     bool
	failWith func(Action) error
	onAction func(Action)
	closed   bool

	// InstallErr, when set, makes Install fail.
	InstallErr error
}

// NewSimulated creates a simulated provider.
func NewSimulated() *Simulated {
	return &Simulated{sinks: make(map[int]Sink)}
}

// SetEcho makes every successful injection re-enter the installed sinks
// as input, on the injecting goroutine.
func (s *Simulated) SetEcho(echo bool) {
	s.mu.Lock()
	s.echo = echo
	s.mu.Unlock()
}

// FailWith installs a function deciding whether an injection fails.
func (s *Simulated) FailWith(fn func(Action) error) {
	s.mu.Lock()
	s.failWith = fn
	s.mu.Unlock()
}

// OnAction registers a callback run synchronously for every injection
// before it is recorded.
func (s *Simulated) OnAction(fn func(Action)) {
	s.mu.Lock()
	s.onAction = fn
	s.mu.Unlock()
}

// Install registers a sink.
func (s *Simulated) Install(sink Sink) (Hook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.InstallErr != nil {
		return nil, s.InstallErr
	}
	id := s.nextID
	s.nextID++
	s.sinks[id] = sink
	return &simulatedHook{s: s, id: id}, nil
}

type simulatedHook struct {
	s    *Simulated
	id   int
	once sync.Once
}

func (h *simulatedHook) Uninstall() error {
	h.once.Do(func() {
		h.s.mu.Lock()
		delete(h.s.sinks, h.id)
		h.s.mu.Unlock()
	})
	return nil
}

// Installed returns the number of installed hooks.
func (s *Simulated) Installed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}

// Emit delivers input to every installed sink. A zero At is stamped with
// the current time.
func (s *Simulated) Emit(in Input) {
	if in.At.IsZero() {
		in.At = time.Now()
	}
	s.mu.Lock()
	sinks := make([]Sink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.mu.Unlock()

	for _, sink := range sinks {
		sink(in)
	}
}

// Actions returns a copy of the recorded injections.
func (s *Simulated) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Reset forgets recorded injections.
func (s *Simulated) Reset() {
	s.mu.Lock()
	s.actions = nil
	s.mu.Unlock()
}

// Position returns the simulated pointer position.
func (s *Simulated) Position() (int32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y
}

// MoveTo moves the simulated pointer.
func (s *Simulated) MoveTo(x, y int32) error {
	return s.inject(Action{Kind: ActionMove, X: x, Y: y})
}

// Button presses or releases a button at the pointer.
func (s *Simulated) Button(b macro.Button, pressed bool) error {
	if _, ok := buttonCodes[b]; !ok {
		return fmt.Errorf("button %s: %w", b, ErrUnmappedKey)
	}
	return s.inject(Action{Kind: ActionButton, Button: b, Pressed: pressed})
}

// Scroll scrolls at the pointer.
func (s *Simulated) Scroll(dx, dy int32) error {
	return s.inject(Action{Kind: ActionScroll, DX: dx, DY: dy})
}

// Key presses or releases a key. Tokens resolve through the same table as
// the evdev backend.
func (s *Simulated) Key(k macro.KeyToken, pressed bool) error {
	if _, ok := strokeFor(k); !ok {
		return fmt.Errorf("key %s: %w", k, ErrUnmappedKey)
	}
	return s.inject(Action{Kind: ActionKey, Key: k, Pressed: pressed})
}

// Close uninstalls every hook and rejects further use.
func (s *Simulated) Close() error {
	s.mu.Lock()
	s.closed = true
	s.sinks = make(map[int]Sink)
	s.mu.Unlock()
	return nil
}

func (s *Simulated) inject(a Action) error {
	a.At = time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	failWith, onAction, echo := s.failWith, s.onAction, s.echo
	s.mu.Unlock()

	if onAction != nil {
		onAction(a)
	}
	if failWith != nil {
		if err := failWith(a); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if a.Kind == ActionMove {
		s.x, s.y = a.X, a.Y
	}
	if a.Kind == ActionButton || a.Kind == ActionScroll {
		a.X, a.Y = s.x, s.y
	}
	s.actions = append(s.actions, a)
	s.mu.Unlock()

	if echo {
		s.Emit(a.input())
	}
	return nil
}

// input converts an action to the input an OS hook would report for it.
func (a Action) input() Input {
	in := Input{At: a.At, X: a.X, Y: a.Y}
	switch a.Kind {
	case ActionMove:
		in.Kind = InputMove
	case ActionButton:
		in.Kind = InputClick
		in.Button = a.Button
		in.Pressed = a.Pressed
	case ActionScroll:
		in.Kind = InputScroll
		in.DX, in.DY = a.DX, a.DY
	case ActionKey:
		in.Kind = InputKeyUp
		if a.Pressed {
			in.Kind = InputKeyDown
		}
		in.Char = a.Key.Char()
		in.Name = a.Key.Name()
		if stroke, ok := strokeFor(a.Key); ok {
			in.Code = stroke.code
		}
	}
	return in
}
