package macro

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// namedPrefix marks a symbolic key in text form.
const namedPrefix = "Key."

// KeyToken is a keyboard key: either a printable character or a named
// (symbolic) key such as "space", "shift" or "f8". The zero value is
// invalid.
type KeyToken struct {
	char rune
	name string
}

// CharKey returns a token for a printable character.
func CharKey(r rune) KeyToken {
	return KeyToken{char: r}
}

// NamedKey returns a token for a symbolic key. Names are lower case.
func NamedKey(name string) KeyToken {
	return KeyToken{name: strings.ToLower(name)}
}

// IsChar reports whether the token is a character key.
func (k KeyToken) IsChar() bool { return k.char != 0 }

// IsNamed reports whether the token is a named key.
func (k KeyToken) IsNamed() bool { return k.char == 0 && k.name != "" }

// IsZero reports whether the token is unset.
func (k KeyToken) IsZero() bool { return k.char == 0 && k.name == "" }

// Char returns the character of a character key, or 0.
func (k KeyToken) Char() rune { return k.char }

// Name returns the symbolic name of a named key, or "".
func (k KeyToken) Name() string { return k.name }

// String returns the stable text form: 'a' for characters, Key.space for
// named keys.
func (k KeyToken) String() string {
	switch {
	case k.IsChar():
		return "'" + string(k.char) + "'"
	case k.IsNamed():
		return namedPrefix + k.name
	default:
		return ""
	}
}

// ParseKeyToken parses the text form produced by String. A bare single
// character is also accepted as a character key.
func ParseKeyToken(s string) (KeyToken, error) {
	if s == "" {
		return KeyToken{}, fmt.Errorf("%w: empty key", ErrCodec)
	}

	if strings.HasPrefix(s, namedPrefix) {
		name := s[len(namedPrefix):]
		if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			return KeyToken{}, fmt.Errorf("%w: malformed key name %q", ErrCodec, s)
		}
		return NamedKey(name), nil
	}

	if len(s) >= 3 && s[0] == '\'' && s[len(s)-1] == '\'' {
		inner := s[1 : len(s)-1]
		if r, ok := singleRune(inner); ok {
			return CharKey(r), nil
		}
		return KeyToken{}, fmt.Errorf("%w: malformed character key %q", ErrCodec, s)
	}

	if r, ok := singleRune(s); ok {
		return CharKey(r), nil
	}
	return KeyToken{}, fmt.Errorf("%w: malformed key %q", ErrCodec, s)
}

func singleRune(s string) (rune, bool) {
	r, size := utf8.DecodeRuneInString(s)
	// U+FFFD itself is a valid key; a one-byte RuneError is invalid UTF-8.
	if size == 0 || size != len(s) || r == 0 || (r == utf8.RuneError && size == 1) {
		return 0, false
	}
	return r, true
}

// TokenFor maps a physical key to a token: the printable character when
// there is one, otherwise the symbolic name. ok is false when the key has
// neither.
func TokenFor(char rune, name string) (KeyToken, bool) {
	if char != 0 && unicode.IsPrint(char) {
		return CharKey(char), true
	}
	if name != "" {
		return NamedKey(name), true
	}
	return KeyToken{}, false
}
