// Package macro defines the recorded input model: events, key tokens,
// mouse buttons, the ordered event log, and the record codec used by
// the recorder, the player and the persistence layer.
//
// Event times are seconds since the recording started. A log is replayed
// in insertion order, which is also temporal order.
package macro

import "fmt"

// Kind identifies an event variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMouseMove
	KindMouseClick
	KindMouseScroll
	KindKeyPress
	KindKeyRelease
)

var kindNames = map[Kind]string{
	KindMouseMove:   "mouse_move",
	KindMouseClick:  "mouse_click",
	KindMouseScroll: "mouse_scroll",
	KindKeyPress:    "key_press",
	KindKeyRelease:  "key_release",
}

// String returns the record type tag for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind parses a record type tag.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: unknown event type %q", ErrCodec, s)
}

// Kinds returns all known kinds in declaration order.
func Kinds() []Kind {
	return []Kind{KindMouseMove, KindMouseClick, KindMouseScroll, KindKeyPress, KindKeyRelease}
}

// Event is one captured input action. The concrete types are MouseMove,
// MouseClick, MouseScroll, KeyPress and KeyRelease; all are comparable.
type Event interface {
	Kind() Kind
	// Offset returns the event time in seconds since recording start.
	Offset() float64
	// WithOffset returns a copy of the event at a different time.
	WithOffset(t float64) Event

	sealed()
}

// MouseMove is a pointer movement to an absolute screen position.
type MouseMove struct {
	Time float64
	X, Y int32
}

// MouseClick is a button press or release at a screen position.
type MouseClick struct {
	Time    float64
	X, Y    int32
	Button  Button
	Pressed bool
}

// MouseScroll is a wheel movement at a screen position.
type MouseScroll struct {
	Time   float64
	X, Y   int32
	DX, DY int32
}

// KeyPress is a key going down.
type KeyPress struct {
	Time float64
	Key  KeyToken
}

// KeyRelease is a key going up.
type KeyRelease struct {
	Time float64
	Key  KeyToken
}

func (MouseMove) Kind() Kind   { return KindMouseMove }
func (MouseClick) Kind() Kind  { return KindMouseClick }
func (MouseScroll) Kind() Kind { return KindMouseScroll }
func (KeyPress) Kind() Kind    { return KindKeyPress }
func (KeyRelease) Kind() Kind  { return KindKeyRelease }

func (e MouseMove) Offset() float64   { return e.Time }
func (e MouseClick) Offset() float64  { return e.Time }
func (e MouseScroll) Offset() float64 { return e.Time }
func (e KeyPress) Offset() float64    { return e.Time }
func (e KeyRelease) Offset() float64  { return e.Time }

func (e MouseMove) WithOffset(t float64) Event   { e.Time = t; return e }
func (e MouseClick) WithOffset(t float64) Event  { e.Time = t; return e }
func (e MouseScroll) WithOffset(t float64) Event { e.Time = t; return e }
func (e KeyPress) WithOffset(t float64) Event    { e.Time = t; return e }
func (e KeyRelease) WithOffset(t float64) Event  { e.Time = t; return e }

func (MouseMove) sealed()   {}
func (MouseClick) sealed()  {}
func (MouseScroll) sealed() {}
func (KeyPress) sealed()    {}
func (KeyRelease) sealed()  {}

// String renders a compact human-readable form, used in logs and `info`.
func (e MouseMove) String() string {
	return fmt.Sprintf("%.3f move (%d,%d)", e.Time, e.X, e.Y)
}

func (e MouseClick) String() string {
	action := "release"
	if e.Pressed {
		action = "press"
	}
	return fmt.Sprintf("%.3f %s %s (%d,%d)", e.Time, e.Button, action, e.X, e.Y)
}

func (e MouseScroll) String() string {
	return fmt.Sprintf("%.3f scroll (%d,%d) at (%d,%d)", e.Time, e.DX, e.DY, e.X, e.Y)
}

func (e KeyPress) String() string {
	return fmt.Sprintf("%.3f key down %s", e.Time, e.Key)
}

func (e KeyRelease) String() string {
	return fmt.Sprintf("%.3f key up %s", e.Time, e.Key)
}
