package ime

import (
	"unicode/utf8"
)

// X11 keysyms the core needs by value.
const (
	KeyBackSpace uint32 = 0xff08
	KeyTab       uint32 = 0xff09
	KeyReturn    uint32 = 0xff0d
	KeyEscape    uint32 = 0xff1b
	KeyDelete    uint32 = 0xffff
	KeySpace     uint32 = 0x0020
	KeyTilde     uint32 = 0x007e
	KeyF24       uint32 = 0xffd5

	// keysymUnicodeOffset marks keysyms that carry a code point directly.
	keysymUnicodeOffset uint32 = 0x01000000
)

// Evdev key codes used when synthesizing events.
const (
	EvdevBackSpace uint32 = 14
	EvdevF24       uint32 = 194
)

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModLock
	ModControl
	ModAlt
	ModMeta // Super, Hyper or Meta
)

// composeBlockers are modifiers that turn a printable key into a shortcut.
const composeBlockers = ModControl | ModAlt | ModMeta

// KeyEvent is a single key press or release as seen by the core.
type KeyEvent struct {
	// Keysym is the X11 keysym.
	Keysym uint32
	// Keycode is the evdev hardware code, 0 when unknown.
	Keycode uint32
	// Modifiers held while the key was pressed.
	Modifiers Modifiers
	// Release is true for key release events.
	Release bool
}

// Press returns a press event for keysym.
func Press(keysym uint32) KeyEvent {
	return KeyEvent{Keysym: keysym}
}

// Released returns a copy of ev marked as a release.
func (ev KeyEvent) Released() KeyEvent {
	ev.Release = true
	return ev
}

// KeysymToRune converts an X11 keysym to the rune it produces.
// Returns 0 for keysyms that do not produce text.
func KeysymToRune(keysym uint32) rune {
	// Latin-1 keysyms equal their code points
	if keysym >= 0x20 && keysym <= 0x7e {
		return rune(keysym)
	}
	if keysym >= 0xa0 && keysym <= 0xff {
		return rune(keysym)
	}

	// Unicode keysyms (0x01000000 + codepoint)
	if keysym >= keysymUnicodeOffset && keysym <= keysymUnicodeOffset+utf8.MaxRune {
		r := rune(keysym - keysymUnicodeOffset)
		if utf8.ValidRune(r) {
			return r
		}
	}

	return 0
}

// RuneToKeysym converts a rune to the keysym a host needs to type it.
func RuneToKeysym(r rune) uint32 {
	if (r >= 0x20 && r <= 0x7e) || (r >= 0xa0 && r <= 0xff) {
		return uint32(r)
	}
	return keysymUnicodeOffset + uint32(r)
}

// KeysymToUTF8 returns the UTF-8 encoding of the text keysym produces.
func KeysymToUTF8(keysym uint32) (string, bool) {
	r := KeysymToRune(keysym)
	if r == 0 {
		return "", false
	}
	return string(r), true
}

// TextToKeysyms splits text into the keysyms that type it, one per rune.
func TextToKeysyms(text string) []uint32 {
	syms := make([]uint32, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		syms = append(syms, RuneToKeysym(r))
	}
	return syms
}

// IsComposable reports whether ev is a raw, unmodified, printable keystroke
// that the transliteration engine should see.
func IsComposable(ev KeyEvent) bool {
	if ev.Modifiers&composeBlockers != 0 {
		return false
	}
	return ev.Keysym >= KeySpace && ev.Keysym <= KeyTilde
}
