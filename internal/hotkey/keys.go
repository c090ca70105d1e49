package hotkey

import "strings"

// Key identifies one of the supported hotkeys.
type Key int

const (
	// KeyNone is the zero value; sources never publish it.
	KeyNone Key = iota
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
)

func (k Key) String() string {
	switch k {
	case KeyF7:
		return "f7"
	case KeyF8:
		return "f8"
	case KeyF9:
		return "f9"
	case KeyF10:
		return "f10"
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	default:
		return "none"
	}
}

// AllKeys lists every supported key.
func AllKeys() []Key {
	return []Key{KeyF7, KeyF8, KeyF9, KeyF10, KeyUp, KeyDown, KeyLeft, KeyRight}
}

// Known reports whether k is a supported key.
func (k Key) Known() bool {
	return k >= KeyF7 && k <= KeyRight
}

// ParseKey parses a key name such as "F9" or "left".
func ParseKey(name string) (Key, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range AllKeys() {
		if k.String() == name {
			return k, true
		}
	}
	return KeyNone, false
}
