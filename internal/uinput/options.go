package uinput

import (
	"errors"
	"log/slog"
	"time"
)

// DefaultPath is the uinput control node.
const DefaultPath = "/dev/uinput"

// DefaultDeviceName names the virtual keyboard.
const DefaultDeviceName = "bogoime virtual keyboard"

// ErrClosed is returned by SynthesizeKey after Close.
var ErrClosed = errors.New("uinput: device closed")

// Options configures Open.
type Options struct {
	Path string
	Name string

	// ExtraKeys are enabled in addition to the layout table, typically
	// the sentinel key code.
	ExtraKeys []uint16

	// SettleTime is slept after the device is created.
	SettleTime time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.Name == "" {
		o.Name = DefaultDeviceName
	}
	if o.SettleTime == 0 {
		o.SettleTime = 200 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
