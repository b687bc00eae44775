package hook

import (
	"strconv"
	"unicode"

	"macrorec/internal/macro"
)

// Key codes follow linux/input-event-codes.h. The same table resolves
// tokens for the simulated backend so both behave alike.

const (
	keyEsc        = 1
	keyBackspace  = 14
	keyTab        = 15
	keyEnter      = 28
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyNumLock    = 69
	keyScrollLock = 70
	keyKPEnter    = 96
	keyRightCtrl  = 97
	keySysRq      = 99
	keyRightAlt   = 100
	keyHome       = 102
	keyUp         = 103
	keyPageUp     = 104
	keyLeft       = 105
	keyRight      = 106
	keyEnd        = 107
	keyDown       = 108
	keyPageDown   = 109
	keyInsert     = 110
	keyDelete     = 111
	keyMute       = 113
	keyVolumeDown = 114
	keyVolumeUp   = 115
	keyPause      = 119
	keyLeftMeta   = 125
	keyRightMeta  = 126
	keyCompose    = 127
	keyNextSong   = 163
	keyPlayPause  = 164
	keyPrevSong   = 165
)

const (
	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnSide   = 0x113
	btnExtra  = 0x114
)

// namedCodes maps symbolic key names to key codes. Several names may map
// to one code; codeNames holds the canonical name reported by hooks.
var namedCodes = map[string]uint16{
	"esc":          keyEsc,
	"backspace":    keyBackspace,
	"tab":          keyTab,
	"enter":        keyEnter,
	"ctrl":         keyLeftCtrl,
	"ctrl_l":       keyLeftCtrl,
	"ctrl_r":       keyRightCtrl,
	"shift":        keyLeftShift,
	"shift_l":      keyLeftShift,
	"shift_r":      keyRightShift,
	"alt":          keyLeftAlt,
	"alt_l":        keyLeftAlt,
	"alt_r":        keyRightAlt,
	"alt_gr":       keyRightAlt,
	"cmd":          keyLeftMeta,
	"cmd_l":        keyLeftMeta,
	"cmd_r":        keyRightMeta,
	"space":        keySpace,
	"caps_lock":    keyCapsLock,
	"num_lock":     keyNumLock,
	"scroll_lock":  keyScrollLock,
	"print_screen": keySysRq,
	"pause":        keyPause,
	"menu":         keyCompose,
	"home":         keyHome,
	"end":          keyEnd,
	"page_up":      keyPageUp,
	"page_down":    keyPageDown,
	"insert":       keyInsert,
	"delete":       keyDelete,
	"up":           keyUp,
	"down":         keyDown,
	"left":         keyLeft,
	"right":        keyRight,

	"media_volume_mute": keyMute,
	"media_volume_down": keyVolumeDown,
	"media_volume_up":   keyVolumeUp,
	"media_play_pause":  keyPlayPause,
	"media_next":        keyNextSong,
	"media_previous":    keyPrevSong,
}

var codeNames = map[uint16]string{
	keyEsc:        "esc",
	keyBackspace:  "backspace",
	keyTab:        "tab",
	keyEnter:      "enter",
	keyKPEnter:    "enter",
	keyLeftCtrl:   "ctrl",
	keyRightCtrl:  "ctrl_r",
	keyLeftShift:  "shift",
	keyRightShift: "shift_r",
	keyLeftAlt:    "alt",
	keyRightAlt:   "alt_r",
	keyLeftMeta:   "cmd",
	keyRightMeta:  "cmd_r",
	keySpace:      "space",
	keyCapsLock:   "caps_lock",
	keyNumLock:    "num_lock",
	keyScrollLock: "scroll_lock",
	keySysRq:      "print_screen",
	keyPause:      "pause",
	keyCompose:    "menu",
	keyHome:       "home",
	keyEnd:        "end",
	keyPageUp:     "page_up",
	keyPageDown:   "page_down",
	keyInsert:     "insert",
	keyDelete:     "delete",
	keyUp:         "up",
	keyDown:       "down",
	keyLeft:       "left",
	keyRight:      "right",
	keyMute:       "media_volume_mute",
	keyVolumeDown: "media_volume_down",
	keyVolumeUp:   "media_volume_up",
	keyPlayPause:  "media_play_pause",
	keyNextSong:   "media_next",
	keyPrevSong:   "media_previous",
}

// Function keys F1-F10 are contiguous; F11 and F12 are not.
var functionKeys = []uint16{59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 87, 88}

// charKey is a US-layout key producing lower without and upper with shift.
type charKey struct {
	lower, upper rune
}

var charCodes = map[uint16]charKey{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
}

// keypadCodes produce characters regardless of shift (num lock assumed on).
var keypadCodes = map[uint16]rune{
	82: '0', 79: '1', 80: '2', 81: '3', 75: '4', 76: '5', 77: '6', 71: '7', 72: '8', 73: '9',
	83: '.', 55: '*', 74: '-', 78: '+', 98: '/',
}

// charStroke is how to type a character: a key code and whether shift
// must be held.
type charStroke struct {
	code  uint16
	shift bool
}

var charStrokes = buildCharStrokes()

func init() {
	for i, code := range functionKeys {
		name := "f" + strconv.Itoa(i+1)
		namedCodes[name] = code
		codeNames[code] = name
	}
}

func buildCharStrokes() map[rune]charStroke {
	strokes := make(map[rune]charStroke, 2*len(charCodes)+2)
	for code, ck := range charCodes {
		strokes[ck.lower] = charStroke{code: code}
		strokes[ck.upper] = charStroke{code: code, shift: true}
	}
	strokes[' '] = charStroke{code: keySpace}
	strokes['\t'] = charStroke{code: keyTab}
	strokes['\n'] = charStroke{code: keyEnter}
	return strokes
}

// KeyCode resolves a symbolic key name.
func KeyCode(name string) (uint16, bool) {
	code, ok := namedCodes[name]
	return code, ok
}

// KeyName returns the canonical symbolic name of a key code.
func KeyName(code uint16) (string, bool) {
	name, ok := codeNames[code]
	return name, ok
}

// KeyChar returns the character a key produces with the given modifier
// state, or 0.
func KeyChar(code uint16, shift, capsLock bool) rune {
	if r, ok := keypadCodes[code]; ok {
		return r
	}
	ck, ok := charCodes[code]
	if !ok {
		return 0
	}
	upper := shift
	if capsLock && unicode.IsLetter(ck.lower) {
		upper = !upper
	}
	if upper {
		return ck.upper
	}
	return ck.lower
}

// strokeFor resolves a token to a key code and shift requirement.
func strokeFor(k macro.KeyToken) (charStroke, bool) {
	if k.IsNamed() {
		code, ok := namedCodes[k.Name()]
		return charStroke{code: code}, ok
	}
	if k.IsChar() {
		s, ok := charStrokes[k.Char()]
		return s, ok
	}
	return charStroke{}, false
}

// buttonCodes maps buttons to BTN_* codes.
var buttonCodes = map[macro.Button]uint16{
	macro.ButtonLeft:   btnLeft,
	macro.ButtonRight:  btnRight,
	macro.ButtonMiddle: btnMiddle,
	macro.ButtonX1:     btnSide,
	macro.ButtonX2:     btnExtra,
}

func buttonForCode(code uint16) (macro.Button, bool) {
	for b, c := range buttonCodes {
		if c == code {
			return b, true
		}
	}
	return macro.ButtonUnknown, false
}
