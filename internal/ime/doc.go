// Package ime is the platform-neutral core of the bogo input method.
//
// # Architecture Overview
//
// The input method never renders a preedit. Every accepted keystroke is
// appended to a raw sequence, the external transliteration engine turns the
// whole sequence into a composed string, and the difference between that
// string and the one committed last is written straight into the focused
// application:
//
//	Key Event → Codec → Buffer → Gateway → Diff → Selector → Host
//	                                                  ↓
//	                                          Delayed commit
//	                                      (synthetic channel only)
//
// # Delivery Methods
//
// Applications disagree about which editing primitives they honor, so the
// stale suffix is removed with one of three mechanisms:
//
//	┌────────────────────┬──────────────────────────────────────────────┐
//	│ Method             │ When                                         │
//	├────────────────────┼──────────────────────────────────────────────┤
//	│ SurroundingText    │ Host reports the capability, app not quirked │
//	│ ForwardedBackspace │ App is named, host forward channel exists    │
//	│ SyntheticKeyEvent  │ App is anonymous (XIM and friends)           │
//	└────────────────────┴──────────────────────────────────────────────┘
//
// Per-application quirks live in a QuirkTable, loaded from configuration.
//
// # Delayed Commit
//
// Synthetic key events travel through the window system while the commit
// goes through the host, and the two paths are not ordered against each
// other. When SyntheticKeyEvent is selected the commit is parked, N
// BackSpace events and one sentinel key are synthesized, and the commit is
// released only when the sentinel comes back around:
//
//	Idle ──Begin──→ AwaitingDeletes ──sentinel──→ Idle (commit)
//	                      │
//	                      └──too many events──→ Idle (forced commit)
//
// # Ownership
//
// An Engine owns exactly one Session and is not safe for concurrent use.
// Host adapters create one Engine per input context and serialize calls.
package ime
