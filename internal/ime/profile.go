package ime

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"
)

// QuirkRule describes how one family of applications must be edited.
// Pattern is a shell glob matched against the lower-cased application name.
type QuirkRule struct {
	Pattern string `json:"pattern" toml:"pattern" yaml:"pattern"`

	// DisableSurroundingText ignores the surrounding text capability even
	// when the host reports it.
	DisableSurroundingText bool `json:"disable_surrounding_text" toml:"disable_surrounding_text" yaml:"disable_surrounding_text"`

	// ForwardCommit inserts text one forwarded key at a time instead of a
	// single commit.
	ForwardCommit bool `json:"forward_commit" toml:"forward_commit" yaml:"forward_commit"`

	// SkipDelay drops the settle delay after forwarded deletions.
	SkipDelay bool `json:"skip_delay" toml:"skip_delay" yaml:"skip_delay"`

	Note string `json:"note,omitempty" toml:"note" yaml:"note,omitempty"`
}

// DefaultQuirkRules returns the built-in rules for applications known to
// mishandle surrounding text.
func DefaultQuirkRules() []QuirkRule {
	gtk := func(pattern string) QuirkRule {
		return QuirkRule{
			Pattern:                pattern,
			DisableSurroundingText: true,
			ForwardCommit:          true,
			Note:                   "gtk: bulk commit races forwarded backspaces",
		}
	}
	return []QuirkRule{
		gtk("firefox"),
		gtk("terminator"),
		gtk("gnome-terminal-*"),
		gtk("mate-terminal"),
		gtk("lxterminal"),
		gtk("geany"),
		{
			Pattern:                "konsole",
			DisableSurroundingText: true,
			SkipDelay:              true,
			Note:                   "qt: no settle delay needed",
		},
	}
}

// QuirkTable is an ordered, immutable list of rules. The first matching rule
// wins.
type QuirkTable struct {
	rules []QuirkRule
}

// NewQuirkTable validates every pattern and builds a table.
func NewQuirkTable(rules []QuirkRule) (*QuirkTable, error) {
	t := &QuirkTable{rules: make([]QuirkRule, 0, len(rules))}
	for i, r := range rules {
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		if r.Pattern == "" {
			return nil, fmt.Errorf("quirk rule %d: empty pattern", i)
		}
		if _, err := path.Match(r.Pattern, ""); err != nil {
			return nil, fmt.Errorf("quirk rule %d (%q): %w", i, r.Pattern, err)
		}
		t.rules = append(t.rules, r)
	}
	return t, nil
}

// DefaultQuirkTable returns a table built from DefaultQuirkRules.
func DefaultQuirkTable() *QuirkTable {
	t, err := NewQuirkTable(DefaultQuirkRules())
	if err != nil {
		panic(err)
	}
	return t
}

// Match returns the first rule whose pattern matches name.
func (t *QuirkTable) Match(name string) (QuirkRule, bool) {
	if t == nil || name == "" {
		return QuirkRule{}, false
	}
	name = strings.ToLower(name)
	for _, r := range t.rules {
		if ok, _ := path.Match(r.Pattern, name); ok {
			return r, true
		}
	}
	return QuirkRule{}, false
}

// Rules returns a copy of the rules in match order.
func (t *QuirkTable) Rules() []QuirkRule {
	if t == nil {
		return nil
	}
	out := make([]QuirkRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Len returns the number of rules.
func (t *QuirkTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// QuirkSource supplies the quirk table currently in force.
type QuirkSource interface {
	Quirks() *QuirkTable
}

// QuirkStore holds a table that can be swapped while engines read it.
type QuirkStore struct {
	table atomic.Pointer[QuirkTable]
}

// NewQuirkStore creates a store holding t, or the default table if t is nil.
func NewQuirkStore(t *QuirkTable) *QuirkStore {
	s := &QuirkStore{}
	if t == nil {
		t = DefaultQuirkTable()
	}
	s.table.Store(t)
	return s
}

// Quirks returns the current table.
func (s *QuirkStore) Quirks() *QuirkTable {
	return s.table.Load()
}

// Swap replaces the table and returns the previous one.
func (s *QuirkStore) Swap(t *QuirkTable) *QuirkTable {
	return s.table.Swap(t)
}

// ApplicationProfile classifies the focused application for delivery.
type ApplicationProfile struct {
	Name string

	// SupportsSurroundingText is the host capability after quirks.
	SupportsSurroundingText bool
	// GTKForwardingOnly inserts by forwarding keys one at a time.
	GTKForwardingOnly bool
	// QtNoDelay skips the settle delay.
	QtNoDelay bool
	// XIMOnly means the client did not identify itself.
	XIMOnly bool

	// Rule is the pattern of the matching quirk rule, if any.
	Rule string
}

// Classify derives the profile of the application name under capability
// flags caps.
func Classify(table *QuirkTable, name string, caps Capability) ApplicationProfile {
	p := ApplicationProfile{
		Name:                    name,
		SupportsSurroundingText: caps.Has(CapSurroundingText),
		XIMOnly:                 name == "",
	}

	rule, ok := table.Match(name)
	if !ok {
		return p
	}
	p.Rule = rule.Pattern
	if rule.DisableSurroundingText {
		p.SupportsSurroundingText = false
	}
	p.GTKForwardingOnly = rule.ForwardCommit
	p.QtNoDelay = rule.SkipDelay
	return p
}
