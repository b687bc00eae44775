// Package hook provides global input hooks and input injection.
//
// A Provider is the process-wide input capability: it installs global
// mouse and keyboard hooks delivering Input values to a Sink, and it
// synthesizes pointer, button, wheel and key input.
//
// Backends:
//   - evdev: Linux /dev/input readers plus a /dev/uinput virtual device
//     (requires the input group or root)
//   - simulated: in-memory provider for tests and dry runs
package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"macrorec/internal/macro"
)

// InputKind identifies what a hook observed.
type InputKind uint8

const (
	InputMove InputKind = iota + 1
	InputClick
	InputScroll
	InputKeyDown
	InputKeyUp
)

// String returns a short name for the kind.
func (k InputKind) String() string {
	switch k {
	case InputMove:
		return "move"
	case InputClick:
		return "click"
	case InputScroll:
		return "scroll"
	case InputKeyDown:
		return "key_down"
	case InputKeyUp:
		return "key_up"
	default:
		return "unknown"
	}
}

// Input is one raw notification from a global hook.
type Input struct {
	Kind InputKind
	// At is when the hook observed the input.
	At time.Time

	// Pointer position for move, click and scroll.
	X, Y int32

	Button  macro.Button
	Pressed bool

	DX, DY int32

	// Code is the platform key code. Char is the printable character the
	// key produces with the current modifiers, or 0. Name is the symbolic
	// key name ("shift", "f8"), or "" for plain character keys.
	Code uint16
	Char rune
	Name string
}

// IsKey reports whether the input is a key event.
func (in Input) IsKey() bool {
	return in.Kind == InputKeyDown || in.Kind == InputKeyUp
}

// Sink receives hook input. It is called from hook goroutines and must
// not block.
type Sink func(Input)

// Hook is an installed global subscription.
type Hook interface {
	// Uninstall stops delivery. After it returns the sink is not called
	// again.
	Uninstall() error
}

// Source installs global hooks.
type Source interface {
	Install(sink Sink) (Hook, error)
}

// Injector synthesizes input.
type Injector interface {
	MoveTo(x, y int32) error
	Button(b macro.Button, pressed bool) error
	Scroll(dx, dy int32) error
	// Key presses or releases a key. Named keys the platform cannot
	// resolve fail with ErrUnmappedKey.
	Key(k macro.KeyToken, pressed bool) error
}

// Provider is the complete input capability.
type Provider interface {
	Source
	Injector
	Close() error
}

var (
	// ErrNotAvailable is returned when the backend cannot run on this
	// platform or with the current permissions.
	ErrNotAvailable = errors.New("input hooks not available")

	// ErrUnmappedKey is returned when a key token has no platform key.
	ErrUnmappedKey = errors.New("key has no platform mapping")

	// ErrClosed is returned by a provider after Close.
	ErrClosed = errors.New("input provider closed")
)

// Backend names.
const (
	BackendEvdev     = "evdev"
	BackendSimulated = "simulated"
)

// Options configures New.
type Options struct {
	// Backend selects the implementation; empty means the platform
	// default.
	Backend string
	// Devices lists input device nodes to read; empty means autodetect.
	Devices []string
	// ScreenWidth and ScreenHeight bound pointer positions.
	ScreenWidth  int
	ScreenHeight int
	Logger       *slog.Logger
}

// DefaultScreenWidth and DefaultScreenHeight are used when Options leaves
// the screen size unset.
const (
	DefaultScreenWidth  = 1920
	DefaultScreenHeight = 1080
)

// New creates the provider selected by opts.
func New(opts Options) (Provider, error) {
	if opts.ScreenWidth <= 0 {
		opts.ScreenWidth = DefaultScreenWidth
	}
	if opts.ScreenHeight <= 0 {
		opts.ScreenHeight = DefaultScreenHeight
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch strings.ToLower(opts.Backend) {
	case BackendSimulated:
		return NewSimulated(), nil
	case "", BackendEvdev:
		return newPlatformProvider(opts)
	default:
		return nil, fmt.Errorf("unknown input backend %q", opts.Backend)
	}
}
