// Package translit connects the composition engine to an external
// transliteration engine. Two transports are provided: a D-Bus client for
// engines running as a session service, and a child process speaking
// newline-delimited JSON.
package translit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"bogoime/internal/ime"
)

// Backend names.
const (
	BackendDBus    = "dbus"
	BackendCommand = "command"
)

// ErrClosed is returned by calls on a closed backend.
var ErrClosed = errors.New("translit: backend closed")

// Backend is a Transliterator with a lifecycle.
type Backend interface {
	ime.Transliterator

	// Ping reports whether the engine is reachable.
	Ping(ctx context.Context) error

	// Name identifies the transport in logs and health output.
	Name() string

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string

	// Command backend.
	Command string
	Args    []string
	Env     []string

	// D-Bus backend. Conn defaults to the session bus.
	Conn     *dbus.Conn
	DBusName string
	DBusPath dbus.ObjectPath

	Logger *slog.Logger
}

// Open creates the backend named by opts.Backend.
func Open(opts Options) (Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch opts.Backend {
	case BackendCommand:
		if opts.Command == "" {
			return nil, fmt.Errorf("translit: command backend needs a command")
		}
		return NewCommand(opts.Command, opts.Args, CommandOptions{Env: opts.Env, Logger: opts.Logger}), nil

	case BackendDBus, "":
		conn := opts.Conn
		if conn == nil {
			var err error
			conn, err = dbus.ConnectSessionBus()
			if err != nil {
				return nil, fmt.Errorf("translit: connect session bus: %w", err)
			}
		}
		return NewDBus(conn, opts.DBusName, opts.DBusPath), nil

	default:
		return nil, fmt.Errorf("translit: unknown backend %q", opts.Backend)
	}
}
