package ibus

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bogoime/internal/ime"
	"bogoime/internal/logging"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type emitted struct {
	name   string
	values []interface{}
}

type fakeConn struct {
	mu       sync.Mutex
	exported map[dbus.ObjectPath]interface{}
	emits    []emitted
}

func newFakeConn() *fakeConn {
	return &fakeConn{exported: make(map[dbus.ObjectPath]interface{})}
}

func (c *fakeConn) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == nil {
		delete(c.exported, path)
		return nil
	}
	c.exported[path] = v
	return nil
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{name: strings.TrimPrefix(name, EngineInterface+"."), values: values})
	return nil
}

// take returns and clears the recorded signals, with CommitText
// arguments decoded to their string.
func (c *fakeConn) take(t *testing.T) []emitted {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.emits
	c.emits = nil
	for i, e := range out {
		if e.name == "CommitText" {
			s, err := TextString(e.values[0].(dbus.Variant))
			require.NoError(t, err)
			out[i].values = []interface{}{s}
		}
	}
	return out
}

// toyEngine composes "aw" to "ă" and "dd" to "đ". Raw input containing
// "q" panics.
type toyEngine struct{}

func (toyEngine) ProcessSequence(_ context.Context, raw string) (string, error) {
	if strings.Contains(raw, "q") {
		panic("toy engine: q")
	}
	return strings.NewReplacer("aw", "ă", "dd", "đ").Replace(raw), nil
}

func (toyEngine) HandleBackspace(_ context.Context, previous, raw string) (string, string, error) {
	_, size := utf8.DecodeLastRuneInString(previous)
	return previous[:len(previous)-size], raw[:len(raw)-1], nil
}

type recordingInjector struct {
	events []ime.KeyEvent
}

func (r *recordingInjector) SynthesizeKey(ev ime.KeyEvent) error {
	r.events = append(r.events, ev)
	return nil
}

type noSettle struct{}

func (noSettle) Settle(context.Context, int) {}

func testFactory(t *testing.T, conn Conn, inj ime.Injector, focus ApplicationSource) *Factory {
	t.Helper()
	gateway := ime.NewGateway(toyEngine{}, ime.GatewayOptions{Normalize: true})
	build := func(host ime.Host, logger *slog.Logger) *ime.Engine {
		opts := ime.Options{
			Sentinel: ime.DefaultSentinel(),
			Settler:  noSettle{},
			Quirks:   ime.NewQuirkStore(ime.DefaultQuirkTable()),
			Logger:   logger,
		}
		if inj != nil {
			opts.Injector = inj
		}
		return ime.NewEngine(host, gateway, opts)
	}
	return NewFactory(context.Background(), conn, FactoryOptions{
		Build:  build,
		Focus:  focus,
		Panics: logging.NewPanicHandler(logging.PanicHandlerConfig{Logger: testLogger}),
		Logger: testLogger,
	})
}

func createEngine(t *testing.T, f *Factory) *EngineObject {
	t.Helper()
	path, derr := f.CreateEngine(DefaultEngineName)
	require.Nil(t, derr)
	e, ok := f.Engine(path)
	require.True(t, ok)
	return e
}

func press(t *testing.T, e *EngineObject, keyval, keycode uint32) bool {
	t.Helper()
	consumed, derr := e.ProcessKeyEvent(keyval, keycode, 0)
	require.Nil(t, derr)
	return consumed
}

func release(t *testing.T, e *EngineObject, keyval, keycode uint32) bool {
	t.Helper()
	consumed, derr := e.ProcessKeyEvent(keyval, keycode, ReleaseMask)
	require.Nil(t, derr)
	return consumed
}

func TestEngineSurroundingText(t *testing.T) {
	conn := newFakeConn()
	e := createEngine(t, testFactory(t, conn, nil, nil))

	e.SetCapabilities(CapPreeditText | CapFocus | CapSurroundingText)
	e.FocusInId("/org/freedesktop/IBus/InputContext_7", "gtk3-im:gedit")

	assert.True(t, press(t, e, 'a', 30))
	assert.False(t, release(t, e, 'a', 30))
	assert.True(t, press(t, e, 'w', 17))

	assert.Equal(t, []emitted{
		{name: "CommitText", values: []interface{}{"a"}},
		{name: "DeleteSurroundingText", values: []interface{}{int32(-1), uint32(1)}},
		{name: "CommitText", values: []interface{}{"ă"}},
	}, conn.take(t))

	info := e.Info()
	assert.Equal(t, "gedit", info.Engine.Application)
	assert.Equal(t, 2, info.Engine.RawBytes)
	assert.Equal(t, "surrounding_text", info.Engine.LastMethod)
}

func TestEngineForwardedBackspace(t *testing.T) {
	conn := newFakeConn()
	e := createEngine(t, testFactory(t, conn, nil, nil))

	e.FocusInId("/org/freedesktop/IBus/InputContext_1", "gtk3-im:gedit")
	assert.True(t, press(t, e, 'd', 32))
	assert.True(t, press(t, e, 'd', 32))

	assert.Equal(t, []emitted{
		{name: "CommitText", values: []interface{}{"d"}},
		{name: "ForwardKeyEvent", values: []interface{}{ime.KeyBackSpace, ime.EvdevBackSpace, uint32(0)}},
		{name: "ForwardKeyEvent", values: []interface{}{ime.KeyBackSpace, ime.EvdevBackSpace, ReleaseMask}},
		{name: "CommitText", values: []interface{}{"đ"}},
	}, conn.take(t))
}

func TestEngineSyntheticDelivery(t *testing.T) {
	conn := newFakeConn()
	inj := &recordingInjector{}
	e := createEngine(t, testFactory(t, conn, inj, nil))

	// xim clients do not name the program
	e.FocusInId("/org/freedesktop/IBus/InputContext_2", "xim")
	assert.True(t, press(t, e, 'a', 30))
	assert.True(t, press(t, e, 'w', 17))

	sentinel := ime.DefaultSentinel().Event()
	require.Equal(t, []ime.KeyEvent{
		{Keysym: ime.KeyBackSpace, Keycode: ime.EvdevBackSpace},
		{Keysym: ime.KeyBackSpace, Keycode: ime.EvdevBackSpace, Release: true},
		sentinel,
		sentinel.Released(),
	}, inj.events)
	assert.Equal(t, []emitted{{name: "CommitText", values: []interface{}{"a"}}}, conn.take(t))

	// the injected events come back through IBus
	assert.False(t, press(t, e, ime.KeyBackSpace, ime.EvdevBackSpace))
	assert.False(t, release(t, e, ime.KeyBackSpace, ime.EvdevBackSpace))
	assert.Empty(t, conn.take(t))

	assert.True(t, press(t, e, ime.KeyF24, ime.EvdevF24))
	assert.True(t, release(t, e, ime.KeyF24, ime.EvdevF24))
	assert.Equal(t, []emitted{{name: "CommitText", values: []interface{}{"ă"}}}, conn.take(t))
}

func TestEngineFocusTrackerNamesLegacyClients(t *testing.T) {
	conn := newFakeConn()
	focus := staticFocus("firefox")
	e := createEngine(t, testFactory(t, conn, nil, focus))

	e.FocusIn()
	assert.Equal(t, "firefox", e.ApplicationName())

	e.FocusInId("/org/freedesktop/IBus/InputContext_3", "gtk3-im:geany")
	assert.Equal(t, "geany", e.ApplicationName())
}

type staticFocus string

func (s staticFocus) Application(context.Context) (string, error) {
	return string(s), nil
}

func TestEngineFocusOutEndsComposition(t *testing.T) {
	conn := newFakeConn()
	e := createEngine(t, testFactory(t, conn, nil, nil))

	e.SetCapabilities(CapSurroundingText)
	e.FocusInId("/org/freedesktop/IBus/InputContext_4", "gtk3-im:gedit")
	press(t, e, 'a', 30)
	e.FocusOut()
	conn.take(t)

	// a fresh composition: "w" alone is not combined with the earlier "a"
	press(t, e, 'w', 17)
	assert.Equal(t, []emitted{{name: "CommitText", values: []interface{}{"w"}}}, conn.take(t))
	assert.False(t, e.Info().Focused)
}

func TestEngineRecoversFromPanic(t *testing.T) {
	conn := newFakeConn()
	f := testFactory(t, conn, nil, nil)
	e := createEngine(t, f)
	e.SetCapabilities(CapSurroundingText)

	assert.False(t, press(t, e, 'q', 16))
	assert.Equal(t, 1, f.opts.Panics.Count())

	assert.True(t, press(t, e, 'a', 30))
	assert.Equal(t, []emitted{{name: "CommitText", values: []interface{}{"a"}}}, conn.take(t))
}

func TestEngineSetSurroundingText(t *testing.T) {
	e := createEngine(t, testFactory(t, newFakeConn(), nil, nil))

	e.SetSurroundingText(NewText("xin chào"), 8, 8)
	info := e.Info()
	assert.Equal(t, 8, info.SurroundingLen)
	assert.Equal(t, uint32(8), info.CursorPos)
}
