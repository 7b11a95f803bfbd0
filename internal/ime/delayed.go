package ime

import (
	"fmt"
)

// DefaultMaxPendingEvents bounds how many unrelated key presses may arrive
// while a delayed commit waits for its sentinel.
const DefaultMaxPendingEvents = 32

// DelayedState is the state of the delayed-commit protocol.
type DelayedState int

const (
	StateIdle DelayedState = iota
	StateAwaitingDeletes
)

// String returns the state name.
func (s DelayedState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDeletes:
		return "awaiting_deletes"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SentinelKey is the key injected after the deletions to mark the point at
// which they have all been delivered. It must never occur in normal input.
type SentinelKey struct {
	Keysym  uint32
	Keycode uint32
}

// DefaultSentinel returns F24, which no common layout produces.
func DefaultSentinel() SentinelKey {
	return SentinelKey{Keysym: KeyF24, Keycode: EvdevF24}
}

// Matches reports whether ev is the sentinel. Either the keysym or the
// keycode is enough, since layouts may not map the keycode back.
func (s SentinelKey) Matches(ev KeyEvent) bool {
	if s.Keysym != 0 && ev.Keysym == s.Keysym {
		return true
	}
	return s.Keycode != 0 && ev.Keycode == s.Keycode
}

// Event returns the sentinel press.
func (s SentinelKey) Event() KeyEvent {
	return KeyEvent{Keysym: s.Keysym, Keycode: s.Keycode}
}

// Interception describes what the protocol did with an event.
type Interception struct {
	// Handled is false when the event should go through normal processing.
	Handled bool
	Result  KeyResult
	// Committed is set when the pending text was committed.
	Committed bool
	// Forced is set when the commit happened without the sentinel.
	Forced bool
	// Unsent is set when a key could not be re-synthesized and went to the
	// client natively. The commit stays parked.
	Unsent error
}

// DelayedCommit runs the two-phase protocol for SyntheticKeyEvent delivery.
type DelayedCommit struct {
	host       Host
	injector   Injector
	sentinel   SentinelKey
	maxPending int
}

// NewDelayedCommit creates the protocol driver. maxPending <= 0 selects
// DefaultMaxPendingEvents.
func NewDelayedCommit(host Host, injector Injector, sentinel SentinelKey, maxPending int) *DelayedCommit {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingEvents
	}
	if sentinel.Keysym == 0 && sentinel.Keycode == 0 {
		sentinel = DefaultSentinel()
	}
	return &DelayedCommit{
		host:       host,
		injector:   injector,
		sentinel:   sentinel,
		maxPending: maxPending,
	}
}

// Sentinel returns the configured sentinel key.
func (d *DelayedCommit) Sentinel() SentinelKey {
	return d.sentinel
}

// Begin parks diff.Insert, injects diff.DeleteCount BackSpace taps and then
// the sentinel.
func (d *DelayedCommit) Begin(s *Session, diff Diff) error {
	if d.injector == nil {
		return ErrNoInjector
	}
	if s.Delayed {
		return fmt.Errorf("delayed commit already pending (%d deletes outstanding)", s.PendingDeleteCount)
	}

	s.PendingCommit = diff.Insert
	s.HasPending = true
	s.PendingDeleteCount = diff.DeleteCount
	s.Delayed = true
	s.intervening = 0

	backspace := KeyEvent{Keysym: KeyBackSpace, Keycode: EvdevBackSpace}
	for i := 0; i < diff.DeleteCount; i++ {
		if err := tapKey(d.injector.SynthesizeKey, backspace); err != nil {
			if i == 0 {
				s.clearPending()
				return fmt.Errorf("synthesize backspace: %w", err)
			}
			return d.abort(s, fmt.Errorf("synthesize backspace %d/%d: %w", i+1, diff.DeleteCount, err))
		}
	}
	if err := tapKey(d.injector.SynthesizeKey, d.sentinel.Event()); err != nil {
		return d.abort(s, fmt.Errorf("synthesize sentinel: %w", err))
	}
	return nil
}

// abort commits what is parked so that text deleted so far is replaced.
func (d *DelayedCommit) abort(s *Session, cause error) error {
	if err := d.Flush(s); err != nil {
		return fmt.Errorf("%w (flush: %v)", cause, err)
	}
	return cause
}

// Intercept routes ev while a commit is pending. Stray sentinel events are
// always swallowed, even when idle.
func (d *DelayedCommit) Intercept(s *Session, ev KeyEvent) (Interception, error) {
	isSentinel := d.sentinel.Matches(ev)

	if !s.Delayed {
		if isSentinel {
			return Interception{Handled: true, Result: Block}, nil
		}
		return Interception{}, nil
	}

	if isSentinel {
		if ev.Release {
			return Interception{Handled: true, Result: Block}, nil
		}
		err := d.Flush(s)
		return Interception{Handled: true, Result: Block, Committed: err == nil}, err
	}

	if ev.Keysym == KeyBackSpace {
		if ev.Release {
			return Interception{Handled: true, Result: Forward}, nil
		}
		if s.PendingDeleteCount > 0 {
			s.PendingDeleteCount--
			return Interception{Handled: true, Result: Forward}, nil
		}
	}

	if ev.Release {
		if _, ok := s.passedThrough[ev.Keysym]; ok {
			delete(s.passedThrough, ev.Keysym)
			return Interception{Handled: true, Result: Forward}, nil
		}
		// The press was re-synthesized as a full tap.
		return Interception{Handled: true, Result: Block}, nil
	}

	s.intervening++
	if s.intervening > d.maxPending {
		// The sentinel is presumed lost. Commit now and let this key go
		// through untouched.
		err := d.Flush(s)
		return Interception{Handled: true, Result: Forward, Committed: err == nil, Forced: true}, err
	}

	if err := tapKey(d.injector.SynthesizeKey, ev); err != nil {
		// Flushing here would commit ahead of the deletions still in
		// flight, so the key goes through and the wait continues.
		if s.passedThrough == nil {
			s.passedThrough = make(map[uint32]struct{})
		}
		s.passedThrough[ev.Keysym] = struct{}{}
		return Interception{
			Handled: true,
			Result:  Forward,
			Unsent:  fmt.Errorf("resynthesize key %#x: %w", ev.Keysym, err),
		}, nil
	}
	return Interception{Handled: true, Result: Block}, nil
}

// Flush commits the parked text, if any, and returns the session to Idle.
func (d *DelayedCommit) Flush(s *Session) error {
	text, has := s.PendingCommit, s.HasPending
	s.clearPending()
	if !has || text == "" {
		return nil
	}
	if err := d.host.CommitString(text); err != nil {
		return fmt.Errorf("commit pending text: %w", err)
	}
	return nil
}
