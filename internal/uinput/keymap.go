// Package uinput injects synthetic key events through a Linux virtual
// keyboard. It is the out-of-band channel used by the delayed-commit
// protocol: events written here reach the focused client through the
// window system rather than through IBus.
package uinput

import (
	"errors"
	"sort"

	"bogoime/internal/ime"
)

// Evdev key codes from linux/input-event-codes.h.
const (
	KeyEsc       uint16 = 1
	KeyBackspace uint16 = 14
	KeyTab       uint16 = 15
	KeyEnter     uint16 = 28
	KeyLeftShift uint16 = 42
	KeySpace     uint16 = 57
	KeyLeft      uint16 = 105
	KeyRight     uint16 = 106
	KeyDelete    uint16 = 111
	KeyF24       uint16 = 194

	// KeyMax is the highest code a device can enable.
	KeyMax uint16 = 0x2ff
)

// ErrUnmapped is returned for events with no evdev code on a US layout.
var ErrUnmapped = errors.New("uinput: no key code for event")

type mapping struct {
	code  uint16
	shift bool
}

// usLayout maps keysyms to the evdev code typing them on a US keyboard.
var usLayout = map[uint32]mapping{
	ime.KeyBackSpace: {code: KeyBackspace},
	ime.KeyTab:       {code: KeyTab},
	ime.KeyReturn:    {code: KeyEnter},
	ime.KeyEscape:    {code: KeyEsc},
	ime.KeyDelete:    {code: KeyDelete},
	ime.KeyF24:       {code: KeyF24},
	0xff51:           {code: KeyLeft},  // Left
	0xff53:           {code: KeyRight}, // Right
	' ':              {code: KeySpace},
}

func init() {
	letters := []uint16{
		30, 48, 46, 32, 18, 33, 34, 35, 23, 36, 37, 38, 50,
		49, 24, 25, 16, 19, 31, 20, 22, 47, 17, 45, 21, 44,
	}
	for i, code := range letters {
		usLayout[uint32('a'+i)] = mapping{code: code}
		usLayout[uint32('A'+i)] = mapping{code: code, shift: true}
	}

	// digit row: plain and shifted
	row := "1234567890"
	shifted := "!@#$%^&*()"
	for i := range row {
		code := uint16(2 + i)
		usLayout[uint32(row[i])] = mapping{code: code}
		usLayout[uint32(shifted[i])] = mapping{code: code, shift: true}
	}

	for _, p := range []struct {
		plain, shifted byte
		code           uint16
	}{
		{'-', '_', 12}, {'=', '+', 13}, {'[', '{', 26}, {']', '}', 27},
		{';', ':', 39}, {'\'', '"', 40}, {'`', '~', 41}, {'\\', '|', 43},
		{',', '<', 51}, {'.', '>', 52}, {'/', '?', 53},
	} {
		usLayout[uint32(p.plain)] = mapping{code: p.code}
		usLayout[uint32(p.shifted)] = mapping{code: p.code, shift: true}
	}
}

// Resolve returns the evdev code for ev and whether Shift must be held.
// A non-zero ev.Keycode is used as is.
func Resolve(ev ime.KeyEvent) (code uint16, shift bool, err error) {
	shift = ev.Modifiers&ime.ModShift != 0
	if ev.Keycode != 0 {
		if ev.Keycode > uint32(KeyMax) {
			return 0, false, ErrUnmapped
		}
		return uint16(ev.Keycode), shift, nil
	}

	m, ok := usLayout[ev.Keysym]
	if !ok {
		return 0, false, ErrUnmapped
	}
	return m.code, shift || m.shift, nil
}

// SupportedCodes returns every code the virtual keyboard enables: the
// layout table, Shift, and extra in ascending order without duplicates.
func SupportedCodes(extra ...uint16) []uint16 {
	seen := map[uint16]struct{}{KeyLeftShift: {}}
	for _, m := range usLayout {
		seen[m.code] = struct{}{}
	}
	for _, c := range extra {
		if c != 0 && c <= KeyMax {
			seen[c] = struct{}{}
		}
	}

	codes := make([]uint16, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
