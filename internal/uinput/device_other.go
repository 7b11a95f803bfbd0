//go:build !linux

package uinput

import (
	"errors"

	"bogoime/internal/ime"
)

// ErrUnsupported is returned by Open on systems without uinput.
var ErrUnsupported = errors.New("uinput: not supported on this platform")

// Device is unavailable on this platform.
type Device struct{}

// Open always fails on this platform.
func Open(Options) (*Device, error) {
	return nil, ErrUnsupported
}

// Name returns "".
func (d *Device) Name() string { return "" }

// SynthesizeKey always fails on this platform.
func (d *Device) SynthesizeKey(ime.KeyEvent) error { return ErrUnsupported }

// Close does nothing.
func (d *Device) Close() error { return nil }
