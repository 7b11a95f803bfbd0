// Package ibus exposes the composition core as an IBus engine over D-Bus.
//
// The ibus-daemon calls CreateEngine on the Factory once per input context
// and then drives the returned engine object with ProcessKeyEvent and focus
// calls. Each engine object owns one ime.Engine and implements ime.Host by
// emitting the CommitText, DeleteSurroundingText and ForwardKeyEvent
// signals back to the daemon.
package ibus

import (
	"bogoime/internal/ime"
)

// IBus D-Bus names.
const (
	IBusService          = "org.freedesktop.IBus"
	IBusPath             = "/org/freedesktop/IBus"
	IBusInterface        = "org.freedesktop.IBus"
	FactoryInterface     = "org.freedesktop.IBus.Factory"
	EngineInterface      = "org.freedesktop.IBus.Engine"
	ServiceInterface     = "org.freedesktop.IBus.Service"
	FactoryPath          = "/org/freedesktop/IBus/Factory"
	EnginePathPrefix     = "/org/freedesktop/IBus/Engine/"
	DefaultBusName       = "org.freedesktop.IBus.Bogo"
	DefaultEngineName    = "bogo"
	ErrorNoEngine        = "org.freedesktop.IBus.NoEngine"
	ComponentFile        = "bogo.xml"
	ComponentDescription = "Vietnamese input through an external transliteration engine"
)

// Key event state masks.
const (
	ShiftMask   uint32 = 1 << 0
	LockMask    uint32 = 1 << 1
	ControlMask uint32 = 1 << 2
	Mod1Mask    uint32 = 1 << 3 // Alt
	Mod4Mask    uint32 = 1 << 6 // Super
	SuperMask   uint32 = 1 << 26
	HyperMask   uint32 = 1 << 27
	MetaMask    uint32 = 1 << 28
	ReleaseMask uint32 = 1 << 30
)

// Client capabilities passed to SetCapabilities.
const (
	CapPreeditText     uint32 = 1 << 0
	CapAuxiliaryText   uint32 = 1 << 1
	CapLookupTable     uint32 = 1 << 2
	CapFocus           uint32 = 1 << 3
	CapProperty        uint32 = 1 << 4
	CapSurroundingText uint32 = 1 << 5
)

// ToKeyEvent converts the ProcessKeyEvent arguments. IBus passes evdev key
// codes, which the core uses unchanged.
func ToKeyEvent(keyval, keycode, state uint32) ime.KeyEvent {
	var mods ime.Modifiers
	if state&ShiftMask != 0 {
		mods |= ime.ModShift
	}
	if state&LockMask != 0 {
		mods |= ime.ModLock
	}
	if state&ControlMask != 0 {
		mods |= ime.ModControl
	}
	if state&Mod1Mask != 0 {
		mods |= ime.ModAlt
	}
	if state&(Mod4Mask|SuperMask|HyperMask|MetaMask) != 0 {
		mods |= ime.ModMeta
	}
	return ime.KeyEvent{
		Keysym:    keyval,
		Keycode:   keycode,
		Modifiers: mods,
		Release:   state&ReleaseMask != 0,
	}
}

// FromKeyEvent converts ev back to ForwardKeyEvent arguments.
func FromKeyEvent(ev ime.KeyEvent) (keyval, keycode, state uint32) {
	if ev.Modifiers&ime.ModShift != 0 {
		state |= ShiftMask
	}
	if ev.Modifiers&ime.ModLock != 0 {
		state |= LockMask
	}
	if ev.Modifiers&ime.ModControl != 0 {
		state |= ControlMask
	}
	if ev.Modifiers&ime.ModAlt != 0 {
		state |= Mod1Mask
	}
	if ev.Modifiers&ime.ModMeta != 0 {
		state |= Mod4Mask
	}
	if ev.Release {
		state |= ReleaseMask
	}
	return ev.Keysym, ev.Keycode, state
}

// ToCapability maps client capability flags to the core's. Forwarded keys
// always reach IBus clients.
func ToCapability(caps uint32) ime.Capability {
	c := ime.CapForwardKey
	if caps&CapSurroundingText != 0 {
		c |= ime.CapSurroundingText
	}
	return c
}
