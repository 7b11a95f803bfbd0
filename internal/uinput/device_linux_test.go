//go:build linux

package uinput

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"bogoime/internal/ime"
)

var _ ime.Injector = (*Device)(nil)

func testDevice(buf *bytes.Buffer) *Device {
	return newDevice(buf, "test keyboard", SupportedCodes(KeyF24),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeEvents(t *testing.T, data []byte) []inputEvent {
	t.Helper()
	size := binary.Size(inputEvent{})
	if len(data)%size != 0 {
		t.Fatalf("written %d bytes, not a multiple of %d", len(data), size)
	}
	events := make([]inputEvent, len(data)/size)
	if err := binary.Read(bytes.NewReader(data), binary.NativeEndian, events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	return events
}

type wantEvent struct {
	typ   uint16
	code  uint16
	value int32
}

func checkEvents(t *testing.T, got []inputEvent, want []wantEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		g := got[i]
		if g.Type != w.typ || g.Code != w.code || g.Value != w.value {
			t.Errorf("event %d = {%d %d %d}, want {%d %d %d}",
				i, g.Type, g.Code, g.Value, w.typ, w.code, w.value)
		}
	}
}

func TestSynthesizeTap(t *testing.T) {
	var buf bytes.Buffer
	d := testDevice(&buf)

	ev := ime.Press(ime.KeyBackSpace)
	if err := d.SynthesizeKey(ev); err != nil {
		t.Fatalf("press: %v", err)
	}
	if err := d.SynthesizeKey(ev.Released()); err != nil {
		t.Fatalf("release: %v", err)
	}

	checkEvents(t, decodeEvents(t, buf.Bytes()), []wantEvent{
		{evKey, KeyBackspace, 1},
		{evSyn, synReport, 0},
		{evKey, KeyBackspace, 0},
		{evSyn, synReport, 0},
	})
}

func TestSynthesizeShifted(t *testing.T) {
	var buf bytes.Buffer
	d := testDevice(&buf)

	ev := ime.Press('A')
	if err := d.SynthesizeKey(ev); err != nil {
		t.Fatal(err)
	}
	if err := d.SynthesizeKey(ev.Released()); err != nil {
		t.Fatal(err)
	}

	checkEvents(t, decodeEvents(t, buf.Bytes()), []wantEvent{
		{evKey, KeyLeftShift, 1},
		{evKey, 30, 1},
		{evSyn, synReport, 0},
		{evKey, 30, 0},
		{evKey, KeyLeftShift, 0},
		{evSyn, synReport, 0},
	})
}

func TestSynthesizeSentinelKeycode(t *testing.T) {
	var buf bytes.Buffer
	d := testDevice(&buf)

	if err := d.SynthesizeKey(ime.DefaultSentinel().Event()); err != nil {
		t.Fatal(err)
	}
	checkEvents(t, decodeEvents(t, buf.Bytes()), []wantEvent{
		{evKey, KeyF24, 1},
		{evSyn, synReport, 0},
	})
}

func TestSynthesizeErrors(t *testing.T) {
	var buf bytes.Buffer
	d := testDevice(&buf)

	err := d.SynthesizeKey(ime.Press(ime.RuneToKeysym('ư')))
	if !errors.Is(err, ErrUnmapped) {
		t.Errorf("unicode keysym: got %v, want ErrUnmapped", err)
	}

	err = d.SynthesizeKey(ime.KeyEvent{Keycode: 183})
	if !errors.Is(err, ErrUnmapped) {
		t.Errorf("code not enabled: got %v, want ErrUnmapped", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.SynthesizeKey(ime.Press('a')); !errors.Is(err, ErrClosed) {
		t.Errorf("after Close: got %v, want ErrClosed", err)
	}
	if buf.Len() != 0 {
		t.Errorf("failed calls wrote %d bytes", buf.Len())
	}
}

func TestUinputSetupLayout(t *testing.T) {
	if got := binary.Size(uinputSetup{}); got != 92 {
		t.Errorf("uinput_setup size = %d, want 92", got)
	}
}
