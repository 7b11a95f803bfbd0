package ibus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoDisplay is returned when no X11 display is reachable.
var ErrNoDisplay = errors.New("ibus: no X11 display for focus tracking")

// FocusTracker names the application owning the active X11 window. It
// serves clients that call the legacy FocusIn without identifying
// themselves.
type FocusTracker struct {
	run     Runner
	procDir string
	timeout time.Duration
}

// NewFocusTracker returns a tracker using run, or ExecRunner when nil.
func NewFocusTracker(run Runner) *FocusTracker {
	if run == nil {
		run = ExecRunner
	}
	return &FocusTracker{run: run, procDir: "/proc", timeout: 300 * time.Millisecond}
}

// Available reports whether an X11 display is set. XWayland counts.
func (f *FocusTracker) Available() bool {
	return os.Getenv("DISPLAY") != ""
}

// Application returns the program name of the active window: the process
// name when the window has a pid, else the lower-cased window class.
func (f *FocusTracker) Application(ctx context.Context) (string, error) {
	if !f.Available() {
		return "", ErrNoDisplay
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	name, err := f.xdotool(ctx)
	if err == nil {
		return name, nil
	}
	name, xerr := f.xprop(ctx)
	if xerr != nil {
		return "", fmt.Errorf("focus: xdotool: %v; xprop: %w", err, xerr)
	}
	return name, nil
}

func (f *FocusTracker) xdotool(ctx context.Context) (string, error) {
	out, err := f.run(ctx, "xdotool", "getactivewindow", "getwindowpid")
	if err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(out))); perr == nil {
			if name := f.procName(pid); name != "" {
				return name, nil
			}
		}
	}

	out, err = f.run(ctx, "xdotool", "getactivewindow", "getwindowclassname")
	if err != nil {
		return "", err
	}
	class := strings.ToLower(strings.TrimSpace(string(out)))
	if class == "" {
		return "", errors.New("empty window class")
	}
	return class, nil
}

func (f *FocusTracker) xprop(ctx context.Context) (string, error) {
	out, err := f.run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", err
	}
	// _NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007
	parts := strings.Fields(string(out))
	if len(parts) < 5 {
		return "", fmt.Errorf("parse xprop output %q", strings.TrimSpace(string(out)))
	}
	window := parts[len(parts)-1]

	out, err = f.run(ctx, "xprop", "-id", window, "_NET_WM_PID", "WM_CLASS")
	if err != nil {
		return "", err
	}

	var class string
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.HasPrefix(key, "_NET_WM_PID"):
			if pid, err := strconv.Atoi(value); err == nil {
				if name := f.procName(pid); name != "" {
					return name, nil
				}
			}
		case strings.HasPrefix(key, "WM_CLASS"):
			class = parseWMClass(value)
		}
	}
	if class == "" {
		return "", errors.New("active window has no pid or class")
	}
	return class, nil
}

// parseWMClass returns the class half of `"instance", "class"`.
func parseWMClass(value string) string {
	parts := strings.Split(value, ",")
	return strings.ToLower(strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`))
}

func (f *FocusTracker) procName(pid int) string {
	if pid <= 0 {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(f.procDir, strconv.Itoa(pid), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ParseClientName extracts the program from the client string of
// FocusInId, such as "gtk3-im:firefox". Clients that do not name a program,
// like "xim", yield "".
func ParseClientName(client string) string {
	i := strings.LastIndexByte(client, ':')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(client[i+1:])
}
