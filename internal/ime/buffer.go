package ime

import (
	"errors"
	"fmt"
)

// DefaultMaxRawBytes bounds the raw keystroke sequence of one session.
const DefaultMaxRawBytes = 4096

// ErrBufferFull is returned when the raw sequence cannot grow.
var ErrBufferFull = errors.New("raw sequence buffer full")

// Buffer holds the raw keystroke sequence and the last committed composed
// string of one input session.
type Buffer struct {
	raw      []byte
	previous string
	limit    int
}

// NewBuffer creates an empty buffer whose raw sequence may hold at most
// limit bytes. A limit <= 0 selects DefaultMaxRawBytes.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultMaxRawBytes
	}
	return &Buffer{
		raw:   make([]byte, 0, 64),
		limit: limit,
	}
}

// Append adds the UTF-8 encoding of one keystroke. The buffer is left
// untouched when the limit would be exceeded.
func (b *Buffer) Append(text string) error {
	if len(b.raw)+len(text) > b.limit {
		return fmt.Errorf("append %d bytes to %d/%d: %w", len(text), len(b.raw), b.limit, ErrBufferFull)
	}
	b.raw = append(b.raw, text...)
	return nil
}

// Truncate drops the last n bytes of the raw sequence.
func (b *Buffer) Truncate(n int) {
	if n <= 0 {
		return
	}
	if n > len(b.raw) {
		n = len(b.raw)
	}
	b.raw = b.raw[:len(b.raw)-n]
}

// Replace swaps the raw sequence for one repaired by the engine.
func (b *Buffer) Replace(raw string) error {
	if len(raw) > b.limit {
		return fmt.Errorf("replace with %d bytes (limit %d): %w", len(raw), b.limit, ErrBufferFull)
	}
	b.raw = append(b.raw[:0], raw...)
	return nil
}

// Raw returns a copy of the raw sequence.
func (b *Buffer) Raw() string {
	return string(b.raw)
}

// RawLen returns the raw sequence length in bytes.
func (b *Buffer) RawLen() int {
	return len(b.raw)
}

// Previous returns the composed string committed last.
func (b *Buffer) Previous() string {
	return b.previous
}

// SetPrevious records the composed string that is now on screen.
func (b *Buffer) SetPrevious(s string) {
	b.previous = s
}

// Limit returns the raw sequence limit in bytes.
func (b *Buffer) Limit() int {
	return b.limit
}

// Reset discards both the raw sequence and the previous composed string.
func (b *Buffer) Reset() {
	b.raw = b.raw[:0]
	b.previous = ""
}

// Session is the per-input-context state.
type Session struct {
	Buffer *Buffer

	// PendingCommit is the text parked by the delayed-commit protocol.
	PendingCommit string
	// HasPending is true while PendingCommit is set (it may be empty).
	HasPending bool
	// PendingDeleteCount counts synthetic deletions not yet echoed back.
	PendingDeleteCount int
	// Delayed is true while the session is in AwaitingDeletes.
	Delayed bool

	// intervening counts events intercepted while Delayed.
	intervening int
	// passedThrough holds keysyms whose press went to the client natively
	// while Delayed, so their release must follow it.
	passedThrough map[uint32]struct{}
}

// NewSession creates an idle session with an empty buffer.
func NewSession(maxRawBytes int) *Session {
	return &Session{Buffer: NewBuffer(maxRawBytes)}
}

// Check verifies the session invariants.
func (s *Session) Check() error {
	if s.PendingDeleteCount < 0 {
		return fmt.Errorf("negative pending delete count %d", s.PendingDeleteCount)
	}
	if s.PendingDeleteCount > 0 && !s.Delayed {
		return fmt.Errorf("%d pending deletes outside delayed mode", s.PendingDeleteCount)
	}
	if s.Delayed && !s.HasPending {
		return errors.New("delayed mode without a pending commit")
	}
	return nil
}

// State reports the delayed-commit state of the session.
func (s *Session) State() DelayedState {
	if s.Delayed {
		return StateAwaitingDeletes
	}
	return StateIdle
}

// clearPending returns the session to Idle without touching the buffer.
func (s *Session) clearPending() {
	s.PendingCommit = ""
	s.HasPending = false
	s.PendingDeleteCount = 0
	s.Delayed = false
	s.intervening = 0
	s.passedThrough = nil
}
