package ibus

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// ResolveAddress picks the IBus bus address: configured, then IBUS_ADDRESS,
// then the output of `ibus address`. An empty result means the session bus.
func ResolveAddress(ctx context.Context, configured string, run Runner) string {
	if configured != "" {
		return configured
	}
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr
	}
	if run == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := run(ctx, "ibus", "address")
	if err != nil {
		return ""
	}
	addr := strings.TrimSpace(string(out))
	if addr == "(null)" {
		return ""
	}
	return addr
}

// Connect opens the IBus bus at addr, or the session bus when addr is "".
func Connect(addr string) (*dbus.Conn, error) {
	if addr == "" {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("connect session bus: %w", err)
		}
		return conn, nil
	}
	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("connect ibus bus %s: %w", addr, err)
	}
	return conn, nil
}
