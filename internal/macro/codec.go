package macro

import (
	"encoding/json"
	"fmt"
	"math"
)

// Record field names. These are part of the file format and must not
// change.
const (
	FieldType    = "type"
	FieldTime    = "time"
	FieldX       = "x"
	FieldY       = "y"
	FieldButton  = "button"
	FieldPressed = "pressed"
	FieldDX      = "dx"
	FieldDY      = "dy"
	FieldKey     = "key"
)

// Encode converts an event to its record form.
func Encode(e Event) Record {
	rec := Record{
		{Name: FieldType, Value: e.Kind().String()},
		{Name: FieldTime, Value: e.Offset()},
	}
	switch ev := e.(type) {
	case MouseMove:
		rec = append(rec, Field{FieldX, ev.X}, Field{FieldY, ev.Y})
	case MouseClick:
		rec = append(rec,
			Field{FieldX, ev.X},
			Field{FieldY, ev.Y},
			Field{FieldButton, ev.Button.String()},
			Field{FieldPressed, ev.Pressed},
		)
	case MouseScroll:
		rec = append(rec,
			Field{FieldX, ev.X},
			Field{FieldY, ev.Y},
			Field{FieldDX, ev.DX},
			Field{FieldDY, ev.DY},
		)
	case KeyPress:
		rec = append(rec, Field{FieldKey, ev.Key.String()})
	case KeyRelease:
		rec = append(rec, Field{FieldKey, ev.Key.String()})
	}
	return rec
}

// Decode converts a record back to an event. Unknown types and missing or
// malformed fields fail with ErrCodec; unknown extra fields are ignored.
func Decode(rec Record) (Event, error) {
	tag, err := stringField(rec, FieldType)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}
	t, err := timeField(rec)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindMouseMove:
		x, y, err := position(rec)
		if err != nil {
			return nil, err
		}
		return MouseMove{Time: t, X: x, Y: y}, nil

	case KindMouseClick:
		x, y, err := position(rec)
		if err != nil {
			return nil, err
		}
		name, err := stringField(rec, FieldButton)
		if err != nil {
			return nil, err
		}
		button, err := ParseButton(name)
		if err != nil {
			return nil, err
		}
		pressed, err := boolField(rec, FieldPressed)
		if err != nil {
			return nil, err
		}
		return MouseClick{Time: t, X: x, Y: y, Button: button, Pressed: pressed}, nil

	case KindMouseScroll:
		x, y, err := position(rec)
		if err != nil {
			return nil, err
		}
		dx, err := intField(rec, FieldDX)
		if err != nil {
			return nil, err
		}
		dy, err := intField(rec, FieldDY)
		if err != nil {
			return nil, err
		}
		return MouseScroll{Time: t, X: x, Y: y, DX: dx, DY: dy}, nil

	case KindKeyPress, KindKeyRelease:
		text, err := stringField(rec, FieldKey)
		if err != nil {
			return nil, err
		}
		key, err := ParseKeyToken(text)
		if err != nil {
			return nil, err
		}
		if kind == KindKeyPress {
			return KeyPress{Time: t, Key: key}, nil
		}
		return KeyRelease{Time: t, Key: key}, nil
	}
	return nil, fmt.Errorf("%w: unsupported event type %q", ErrCodec, tag)
}

// EncodeLog encodes events in order.
func EncodeLog(events []Event) []Record {
	out := make([]Record, len(events))
	for i, e := range events {
		out[i] = Encode(e)
	}
	return out
}

// DecodeLog decodes records in order; the error names the failing index.
func DecodeLog(records []Record) ([]Event, error) {
	out := make([]Event, 0, len(records))
	for i, rec := range records {
		e, err := Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func field(rec Record, name string) (any, error) {
	v, ok := rec.Get(name)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: missing field %q", ErrCodec, name)
	}
	return v, nil
}

func stringField(rec Record, name string) (string, error) {
	v, err := field(rec, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is %T, want string", ErrCodec, name, v)
	}
	return s, nil
}

func boolField(rec Record, name string) (bool, error) {
	v, err := field(rec, name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: field %q is %T, want bool", ErrCodec, name, v)
	}
	return b, nil
}

func numberField(rec Record, name string) (float64, error) {
	v, err := field(rec, name)
	if err != nil {
		return 0, err
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrCodec, name, err)
		}
	default:
		return 0, fmt.Errorf("%w: field %q is %T, want number", ErrCodec, name, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: field %q is not finite", ErrCodec, name)
	}
	return f, nil
}

func timeField(rec Record) (float64, error) {
	t, err := numberField(rec, FieldTime)
	if err != nil {
		return 0, err
	}
	if t < 0 {
		return 0, fmt.Errorf("%w: negative time %v", ErrCodec, t)
	}
	return t, nil
}

// intField reads an int32 field. Fractional values are rounded: some
// platforms report sub-pixel pointer positions.
func intField(rec Record, name string) (int32, error) {
	f, err := numberField(rec, name)
	if err != nil {
		return 0, err
	}
	f = math.Round(f)
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %q out of range", ErrCodec, name)
	}
	return int32(f), nil
}

func position(rec Record) (int32, int32, error) {
	x, err := intField(rec, FieldX)
	if err != nil {
		return 0, 0, err
	}
	y, err := intField(rec, FieldY)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
