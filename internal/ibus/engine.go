package ibus

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"

	"bogoime/internal/ime"
	"bogoime/internal/logging"
)

// Conn is the part of *dbus.Conn the engine objects use.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// CoreBuilder creates the composition core for one input context.
type CoreBuilder func(host ime.Host, logger *slog.Logger) *ime.Engine

// ApplicationSource names the focused application when the client does
// not. *FocusTracker implements it.
type ApplicationSource interface {
	Application(ctx context.Context) (string, error)
}

// EngineObject is one exported org.freedesktop.IBus.Engine. godbus calls
// its methods from several goroutines; mu serializes them.
type EngineObject struct {
	path    dbus.ObjectPath
	conn    Conn
	build   CoreBuilder
	focus   ApplicationSource
	panics  *logging.PanicHandler
	log     *slog.Logger
	ctx     context.Context
	destroy func(*EngineObject)

	mu          sync.Mutex
	core        *ime.Engine
	caps        uint32
	client      string
	focused     bool
	enabled     bool
	surrounding int
	cursor      uint32
	contentHint uint32
}

func newEngineObject(ctx context.Context, path dbus.ObjectPath, conn Conn, opts FactoryOptions, destroy func(*EngineObject)) *EngineObject {
	e := &EngineObject{
		path:    path,
		conn:    conn,
		build:   opts.Build,
		focus:   opts.Focus,
		panics:  opts.Panics,
		log:     opts.Logger.With("engine", string(path)),
		ctx:     ctx,
		destroy: destroy,
	}
	e.core = e.build(e, e.log)
	return e
}

// Path returns the object path of the engine.
func (e *EngineObject) Path() dbus.ObjectPath {
	return e.path
}

// CommitString implements ime.Host.
func (e *EngineObject) CommitString(s string) error {
	return e.conn.Emit(e.path, EngineInterface+".CommitText", NewText(s))
}

// DeleteSurroundingText implements ime.Host.
func (e *EngineObject) DeleteSurroundingText(offset, count int) error {
	return e.conn.Emit(e.path, EngineInterface+".DeleteSurroundingText", int32(offset), uint32(count))
}

// ForwardKey implements ime.Host.
func (e *EngineObject) ForwardKey(ev ime.KeyEvent) error {
	keyval, keycode, state := FromKeyEvent(ev)
	return e.conn.Emit(e.path, EngineInterface+".ForwardKeyEvent", keyval, keycode, state)
}

// Capabilities implements ime.Host.
func (e *EngineObject) Capabilities() ime.Capability {
	return ToCapability(e.caps)
}

// ApplicationName implements ime.Host.
func (e *EngineObject) ApplicationName() string {
	return e.client
}

// ProcessKeyEvent handles a key event. It returns true when the key was
// consumed. A panic in the core resets the context and lets the key
// through.
func (e *EngineObject) ProcessKeyEvent(keyval, keycode, state uint32) (consumed bool, derr *dbus.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.panics.Handle(r, "ProcessKeyEvent", map[string]string{
				"engine":      string(e.path),
				"application": e.client,
			})
			e.core = e.build(e, e.log)
			consumed, derr = false, nil
		}
	}()

	ev := ToKeyEvent(keyval, keycode, state)
	result := e.core.ProcessKey(e.ctx, ev)
	return result.Consumed(), nil
}

// FocusIn is the legacy focus call without a client id.
func (e *EngineObject) FocusIn() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.focusIn(e.lookupApplication())
	return nil
}

// FocusInId is called on focus with the client identity.
func (e *EngineObject) FocusInId(object dbus.ObjectPath, client string) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := ParseClientName(client)
	if name == "" {
		name = e.lookupApplication()
	}
	e.focusIn(name)
	return nil
}

func (e *EngineObject) lookupApplication() string {
	if e.focus == nil {
		return ""
	}
	name, err := e.focus.Application(e.ctx)
	if err != nil {
		e.log.Debug("focus lookup failed", "error", err)
		return ""
	}
	return name
}

func (e *EngineObject) focusIn(name string) {
	if name != e.client {
		e.core.Reset()
	}
	e.client = name
	e.focused = true
	e.log.Debug("focus in", "application", name)
}

// FocusOut ends the composition.
func (e *EngineObject) FocusOut() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.focusOut()
	return nil
}

// FocusOutId is FocusOut with the client object path.
func (e *EngineObject) FocusOutId(object dbus.ObjectPath) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.focusOut()
	return nil
}

func (e *EngineObject) focusOut() {
	e.core.FocusOut()
	e.focused = false
	e.log.Debug("focus out", "application", e.client)
}

// Reset ends the composition, as when the client moves the cursor.
func (e *EngineObject) Reset() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.core.Reset()
	return nil
}

// Enable is called when the user switches to this engine.
func (e *EngineObject) Enable() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = true
	return nil
}

// Disable is called when the user switches away.
func (e *EngineObject) Disable() *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = false
	e.core.Reset()
	return nil
}

// SetCapabilities records the client capability flags.
func (e *EngineObject) SetCapabilities(caps uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.caps = caps
	e.log.Debug("capabilities", "caps", caps, "surrounding_text", caps&CapSurroundingText != 0)
	return nil
}

// SetSurroundingText records the size of the text around the cursor. The
// text itself is not kept.
func (e *EngineObject) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	s, err := TextString(text)
	if err != nil {
		e.log.Debug("surrounding text", "error", err)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.surrounding = utf8.RuneCountInString(s)
	e.cursor = cursorPos
	return nil
}

// SetContentType records the input purpose and hints.
func (e *EngineObject) SetContentType(purpose, hints uint32) *dbus.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.contentHint = hints
	return nil
}

// SetCursorLocation is ignored; there is no candidate window.
func (e *EngineObject) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// PropertyActivate is ignored; the engine exports no properties.
func (e *EngineObject) PropertyActivate(name string, state uint32) *dbus.Error {
	return nil
}

func (e *EngineObject) PageUp() *dbus.Error     { return nil }
func (e *EngineObject) PageDown() *dbus.Error   { return nil }
func (e *EngineObject) CursorUp() *dbus.Error   { return nil }
func (e *EngineObject) CursorDown() *dbus.Error { return nil }

func (e *EngineObject) CandidateClicked(index, button, state uint32) *dbus.Error {
	return nil
}

// Destroy flushes the composition and unexports the engine.
func (e *EngineObject) Destroy() *dbus.Error {
	e.mu.Lock()
	e.core.FocusOut()
	e.mu.Unlock()

	if e.destroy != nil {
		e.destroy(e)
	}
	return nil
}

// SessionInfo describes one live engine for diagnostics.
type SessionInfo struct {
	Path           string       `json:"path"`
	Focused        bool         `json:"focused"`
	Enabled        bool         `json:"enabled"`
	Capabilities   uint32       `json:"capabilities"`
	ContentHints   uint32       `json:"content_hints"`
	SurroundingLen int          `json:"surrounding_len"`
	CursorPos      uint32       `json:"cursor_pos"`
	Engine         ime.Snapshot `json:"engine"`
}

// Info returns a snapshot of the engine.
func (e *EngineObject) Info() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	return SessionInfo{
		Path:           string(e.path),
		Focused:        e.focused,
		Enabled:        e.enabled,
		Capabilities:   e.caps,
		ContentHints:   e.contentHint,
		SurroundingLen: e.surrounding,
		CursorPos:      e.cursor,
		Engine:         e.core.Snapshot(),
	}
}
