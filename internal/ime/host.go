package ime

import (
	"errors"
)

// ErrNoInjector is returned when synthetic key injection is requested but no
// injector was configured.
var ErrNoInjector = errors.New("no synthetic key injector")

// KeyResult tells the host what to do with a key event after the core has
// seen it.
type KeyResult int

const (
	// ToNextHandler lets the host and the application process the key
	// natively. The core did nothing with it.
	ToNextHandler KeyResult = iota
	// Forward passes the key through to the application even though the
	// core observed or attempted to handle it.
	Forward
	// Block consumes the key.
	Block
)

// String returns the result name.
func (r KeyResult) String() string {
	switch r {
	case ToNextHandler:
		return "next"
	case Forward:
		return "forward"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Consumed reports whether the host must not deliver the key itself.
func (r KeyResult) Consumed() bool {
	return r == Block
}

// Capability is a set of host capability flags for one input context.
type Capability uint32

const (
	// CapSurroundingText means the client honors surrounding text deletion.
	CapSurroundingText Capability = 1 << iota
	// CapForwardKey means forwarded key events reach the client.
	CapForwardKey
)

// Has reports whether all flags in c are set.
func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

// Host is the input-context runtime the core delivers edits to. An adapter
// at the boundary implements it for one input context.
type Host interface {
	// CommitString inserts text at the cursor.
	CommitString(text string) error
	// DeleteSurroundingText deletes count characters starting offset
	// characters from the cursor. A negative offset reaches backwards.
	DeleteSurroundingText(offset, count int) error
	// ForwardKey sends a key event to the client through the host.
	ForwardKey(ev KeyEvent) error
	// Capabilities returns the capability flags of the input context.
	Capabilities() Capability
	// ApplicationName returns the focused client name, or "" if unknown.
	ApplicationName() string
}

// Injector synthesizes key events at the window-system level, outside the
// host's own event channel. Events are delivered in FIFO order with no
// acknowledgement.
type Injector interface {
	SynthesizeKey(ev KeyEvent) error
}

// tapKey sends a press and a release of ev through send.
func tapKey(send func(KeyEvent) error, ev KeyEvent) error {
	ev.Release = false
	if err := send(ev); err != nil {
		return err
	}
	return send(ev.Released())
}
