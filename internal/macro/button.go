package macro

import "fmt"

// Button is a mouse button.
type Button uint8

const (
	ButtonUnknown Button = iota
	ButtonLeft
	ButtonRight
	ButtonMiddle
	ButtonX1
	ButtonX2
)

const buttonPrefix = "Button."

var buttonNames = map[Button]string{
	ButtonLeft:   "left",
	ButtonRight:  "right",
	ButtonMiddle: "middle",
	ButtonX1:     "x1",
	ButtonX2:     "x2",
}

// Buttons returns every known button.
func Buttons() []Button {
	return []Button{ButtonLeft, ButtonRight, ButtonMiddle, ButtonX1, ButtonX2}
}

// Name returns the short name ("left").
func (b Button) Name() string {
	if name, ok := buttonNames[b]; ok {
		return name
	}
	return "unknown"
}

// String returns the stable text form ("Button.left").
func (b Button) String() string {
	return buttonPrefix + b.Name()
}

// ParseButton accepts "Button.left" or "left".
func ParseButton(s string) (Button, error) {
	name := s
	if len(s) > len(buttonPrefix) && s[:len(buttonPrefix)] == buttonPrefix {
		name = s[len(buttonPrefix):]
	}
	for b, n := range buttonNames {
		if n == name {
			return b, nil
		}
	}
	return ButtonUnknown, fmt.Errorf("%w: unknown button %q", ErrCodec, s)
}
