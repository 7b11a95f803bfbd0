package ime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultSettleDelay is the pause between forwarded deletions and the
// commit. It is a latency compensation, not a correctness bound.
const DefaultSettleDelay = 30 * time.Millisecond

// Method is the mechanism used to remove the stale suffix.
type Method int

const (
	// MethodNone means nothing needs deleting.
	MethodNone Method = iota
	// SurroundingText deletes through the host in one synchronous call.
	SurroundingText
	// ForwardedBackspace sends BackSpace pairs through the host.
	ForwardedBackspace
	// SyntheticKeyEvent injects BackSpace pairs at the window-system level
	// and defers the commit.
	SyntheticKeyEvent
)

var methodNames = [...]string{
	MethodNone:         "none",
	SurroundingText:    "surrounding_text",
	ForwardedBackspace: "forwarded_backspace",
	SyntheticKeyEvent:  "synthetic_key_event",
}

// String returns the method name used in logs and metrics.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// Plan is a selected delivery.
type Plan struct {
	Method      Method
	DeleteCount int

	// ForwardCommit inserts by forwarding one key per rune.
	ForwardCommit bool
	// Settle waits after forwarded deletions before inserting.
	Settle bool
	// Degraded is set when SyntheticKeyEvent was replaced because no
	// injector is available.
	Degraded bool
}

// SelectMethod picks the delivery for deleting deleteCount characters in the
// application described by profile. The first matching rule wins:
//
//  1. nothing to delete: commit only
//  2. surrounding text usable: SurroundingText
//  3. application identified: ForwardedBackspace
//  4. otherwise: SyntheticKeyEvent
func SelectMethod(profile ApplicationProfile, deleteCount int) Plan {
	plan := Plan{
		DeleteCount:   deleteCount,
		ForwardCommit: profile.GTKForwardingOnly,
	}

	switch {
	case deleteCount <= 0:
		plan.Method = MethodNone
		plan.DeleteCount = 0
	case profile.SupportsSurroundingText:
		plan.Method = SurroundingText
		plan.ForwardCommit = false
	case !profile.XIMOnly:
		plan.Method = ForwardedBackspace
		plan.Settle = !profile.GTKForwardingOnly && !profile.QtNoDelay
	default:
		plan.Method = SyntheticKeyEvent
		plan.ForwardCommit = false
	}
	return plan
}

// Degrade turns a SyntheticKeyEvent plan into a ForwardedBackspace plan with
// a settle delay.
func (p Plan) Degrade() Plan {
	if p.Method != SyntheticKeyEvent {
		return p
	}
	p.Method = ForwardedBackspace
	p.Settle = true
	p.Degraded = true
	return p
}

// Settler waits for forwarded deletions to reach the client. It is the one
// place a host acknowledgement could replace the fixed delay.
type Settler interface {
	Settle(ctx context.Context, deletes int)
}

// SleepSettler blocks for a fixed Delay.
type SleepSettler struct {
	Delay time.Duration
}

// Settle sleeps unless there was nothing to delete or ctx ends first.
func (s SleepSettler) Settle(ctx context.Context, deletes int) {
	if deletes <= 0 || s.Delay <= 0 {
		return
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// errSyntheticPlan is returned if a SyntheticKeyEvent plan reaches the
// synchronous deliverer.
var errSyntheticPlan = errors.New("synthetic key plans are delivered by the delayed commit")

// Deliverer executes synchronous plans against a host.
type Deliverer struct {
	host    Host
	settler Settler
}

// NewDeliverer creates a deliverer. A nil settler never waits.
func NewDeliverer(host Host, settler Settler) *Deliverer {
	if settler == nil {
		settler = SleepSettler{}
	}
	return &Deliverer{host: host, settler: settler}
}

// Deliver deletes plan.DeleteCount characters and inserts diff.Insert.
func (d *Deliverer) Deliver(ctx context.Context, plan Plan, diff Diff) error {
	switch plan.Method {
	case MethodNone:
	case SurroundingText:
		n := plan.DeleteCount
		if err := d.host.DeleteSurroundingText(-n, n); err != nil {
			return fmt.Errorf("delete surrounding text (%d): %w", n, err)
		}
	case ForwardedBackspace:
		backspace := KeyEvent{Keysym: KeyBackSpace, Keycode: EvdevBackSpace}
		for i := 0; i < plan.DeleteCount; i++ {
			if err := tapKey(d.host.ForwardKey, backspace); err != nil {
				return fmt.Errorf("forward backspace %d/%d: %w", i+1, plan.DeleteCount, err)
			}
		}
		if plan.Settle {
			d.settler.Settle(ctx, plan.DeleteCount)
		}
	case SyntheticKeyEvent:
		return errSyntheticPlan
	default:
		return fmt.Errorf("unknown delivery %v", plan.Method)
	}

	return d.insert(plan, diff.Insert)
}

func (d *Deliverer) insert(plan Plan, text string) error {
	if text == "" {
		return nil
	}
	if !plan.ForwardCommit {
		if err := d.host.CommitString(text); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	}
	for _, sym := range TextToKeysyms(text) {
		if err := tapKey(d.host.ForwardKey, KeyEvent{Keysym: sym}); err != nil {
			return fmt.Errorf("forward keysym %#x: %w", sym, err)
		}
	}
	return nil
}
