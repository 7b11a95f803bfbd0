//go:build linux

package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"bogoime/internal/ime"
)

// ioctl requests from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiDevSetup   = 0x405c5503
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
)

const (
	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0

	busVirtual = 0x06

	maxNameSize = 80
)

// inputEvent matches the Linux input_event struct.
type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputSetup matches struct uinput_setup.
type uinputSetup struct {
	ID           inputID
	Name         [maxNameSize]byte
	FFEffectsMax uint32
}

// Device is a virtual keyboard. It implements ime.Injector.
type Device struct {
	mu     sync.Mutex
	w      io.Writer
	close  func() error
	name   string
	keys   map[uint16]struct{}
	logger *slog.Logger
	closed bool
}

// Open creates the virtual keyboard described by opts.
func Open(opts Options) (*Device, error) {
	opts = opts.withDefaults()

	f, err := os.OpenFile(opts.Path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	fd := int(f.Fd())

	codes := SupportedCodes(opts.ExtraKeys...)
	if err := setup(fd, opts.Name, codes); err != nil {
		f.Close()
		return nil, err
	}

	// udev needs a moment before the new device delivers events
	time.Sleep(opts.SettleTime)

	d := newDevice(f, opts.Name, codes, opts.Logger)
	d.close = func() error {
		derr := unix.IoctlSetInt(fd, uiDevDestroy, 0)
		if err := f.Close(); err != nil {
			return err
		}
		if derr != nil {
			return fmt.Errorf("destroy uinput device: %w", derr)
		}
		return nil
	}
	opts.Logger.Info("virtual keyboard created",
		"device", opts.Name,
		"path", opts.Path,
		"keys", len(codes),
	)
	return d, nil
}

func setup(fd int, name string, codes []uint16) error {
	for _, bit := range []int{evKey, evSyn} {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, bit); err != nil {
			return fmt.Errorf("UI_SET_EVBIT %d: %w", bit, err)
		}
	}
	for _, code := range codes {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(code)); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	s := uinputSetup{ID: inputID{Bustype: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}}
	copy(s.Name[:maxNameSize-1], name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevSetup, uintptr(unsafe.Pointer(&s))); errno != 0 {
		return fmt.Errorf("UI_DEV_SETUP: %w", errno)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	return nil
}

func newDevice(w io.Writer, name string, codes []uint16, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	keys := make(map[uint16]struct{}, len(codes))
	for _, c := range codes {
		keys[c] = struct{}{}
	}
	return &Device{w: w, name: name, keys: keys, logger: logger}
}

// Name returns the device name shown to the window system.
func (d *Device) Name() string {
	return d.name
}

// SynthesizeKey writes ev followed by a sync report. A press of a shifted
// key is wrapped in a Shift press and the matching release lifts Shift.
func (d *Device) SynthesizeKey(ev ime.KeyEvent) error {
	code, shift, err := Resolve(ev)
	if err != nil {
		return fmt.Errorf("%w: keysym %#x", err, ev.Keysym)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if _, ok := d.keys[code]; !ok {
		return fmt.Errorf("%w: code %d not enabled", ErrUnmapped, code)
	}

	var events []inputEvent
	if ev.Release {
		events = append(events, keyEvent(code, 0))
		if shift {
			events = append(events, keyEvent(KeyLeftShift, 0))
		}
	} else {
		if shift {
			events = append(events, keyEvent(KeyLeftShift, 1))
		}
		events = append(events, keyEvent(code, 1))
	}
	events = append(events, inputEvent{Type: evSyn, Code: synReport})

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, events); err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	if _, err := d.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", d.name, err)
	}

	d.logger.Debug("synthesized key",
		"code", code,
		"release", ev.Release,
		"shift", shift,
	)
	return nil
}

func keyEvent(code uint16, value int32) inputEvent {
	return inputEvent{Type: evKey, Code: code, Value: value}
}

// Close destroys the virtual keyboard.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.close != nil {
		return d.close()
	}
	return nil
}
