package translit

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
)

// Engine interface exported by D-Bus transliteration services.
const (
	DefaultDBusName                 = "org.bogo.Engine"
	DefaultDBusPath dbus.ObjectPath = "/org/bogo/Engine"
	DBusInterface                   = "org.bogo.Engine"
)

// caller is the part of dbus.BusObject the client uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBus calls an engine exported on the session bus.
type DBus struct {
	obj    caller
	name   string
	closed atomic.Bool
}

// NewDBus returns a client for the engine at name and path.
func NewDBus(conn *dbus.Conn, name string, path dbus.ObjectPath) *DBus {
	if name == "" {
		name = DefaultDBusName
	}
	if path == "" {
		path = DefaultDBusPath
	}
	return &DBus{
		obj:  conn.Object(name, path),
		name: name,
	}
}

func newDBusWithCaller(obj caller, name string) *DBus {
	return &DBus{obj: obj, name: name}
}

// Name implements Backend.
func (d *DBus) Name() string {
	return "dbus:" + d.name
}

// ProcessSequence implements ime.Transliterator.
func (d *DBus) ProcessSequence(ctx context.Context, raw string) (string, error) {
	if d.closed.Load() {
		return "", ErrClosed
	}

	var composed string
	call := d.obj.CallWithContext(ctx, DBusInterface+".ProcessSequence", 0, raw)
	if call.Err != nil {
		return "", fmt.Errorf("dbus ProcessSequence: %w", call.Err)
	}
	if err := call.Store(&composed); err != nil {
		return "", fmt.Errorf("dbus ProcessSequence reply: %w", err)
	}
	return composed, nil
}

// HandleBackspace implements ime.Transliterator.
func (d *DBus) HandleBackspace(ctx context.Context, previous, raw string) (string, string, error) {
	if d.closed.Load() {
		return "", "", ErrClosed
	}

	var composed, repaired string
	call := d.obj.CallWithContext(ctx, DBusInterface+".HandleBackspace", 0, previous, raw)
	if call.Err != nil {
		return "", "", fmt.Errorf("dbus HandleBackspace: %w", call.Err)
	}
	if err := call.Store(&composed, &repaired); err != nil {
		return "", "", fmt.Errorf("dbus HandleBackspace reply: %w", err)
	}
	return composed, repaired, nil
}

// Ping calls org.freedesktop.DBus.Peer.Ping on the engine object.
func (d *DBus) Ping(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if call := d.obj.CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0); call.Err != nil {
		return fmt.Errorf("dbus ping %s: %w", d.name, call.Err)
	}
	return nil
}

// Close marks the client closed. The bus connection is shared and stays
// open.
func (d *DBus) Close() error {
	d.closed.Store(true)
	return nil
}
