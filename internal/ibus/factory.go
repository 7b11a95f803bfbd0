package ibus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"

	"bogoime/internal/logging"
)

// FactoryOptions configures the engines a Factory creates.
type FactoryOptions struct {
	// EngineName is the only name CreateEngine accepts.
	EngineName string
	Build      CoreBuilder

	// Focus names clients that do not identify themselves. Optional.
	Focus  ApplicationSource
	Panics *logging.PanicHandler
	Logger *slog.Logger

	// OnCreate and OnDestroy observe the engine count. Optional.
	OnCreate  func(active int)
	OnDestroy func(active int)
}

// Factory implements org.freedesktop.IBus.Factory. It exports one engine
// object per input context.
type Factory struct {
	conn Conn
	opts FactoryOptions
	ctx  context.Context

	mu      sync.Mutex
	next    uint32
	engines map[dbus.ObjectPath]*EngineObject
}

// NewFactory returns a factory exporting engines on conn. ctx bounds every
// engine call made on behalf of those engines.
func NewFactory(ctx context.Context, conn Conn, opts FactoryOptions) *Factory {
	if opts.EngineName == "" {
		opts.EngineName = DefaultEngineName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Panics == nil {
		opts.Panics = logging.NewPanicHandler(logging.PanicHandlerConfig{Logger: opts.Logger})
	}
	return &Factory{
		conn:    conn,
		opts:    opts,
		ctx:     ctx,
		engines: make(map[dbus.ObjectPath]*EngineObject),
	}
}

// CreateEngine exports a new engine and returns its path.
func (f *Factory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	if name != f.opts.EngineName {
		f.opts.Logger.Warn("unknown engine requested", "name", name)
		return "", dbus.NewError(ErrorNoEngine, []interface{}{"unknown engine: " + name})
	}

	f.mu.Lock()
	f.next++
	path := dbus.ObjectPath(fmt.Sprintf("%s%d", EnginePathPrefix, f.next))
	f.mu.Unlock()

	e := newEngineObject(f.ctx, path, f.conn, f.opts, f.remove)
	if err := f.conn.Export(e, path, EngineInterface); err != nil {
		f.opts.Logger.Error("export engine", "path", path, "error", err)
		return "", dbus.MakeFailedError(err)
	}

	f.mu.Lock()
	f.engines[path] = e
	active := len(f.engines)
	f.mu.Unlock()

	f.opts.Logger.Info("engine created", "path", path, "active", active)
	if f.opts.OnCreate != nil {
		f.opts.OnCreate(active)
	}
	return path, nil
}

func (f *Factory) remove(e *EngineObject) {
	f.mu.Lock()
	if _, ok := f.engines[e.path]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.engines, e.path)
	active := len(f.engines)
	f.mu.Unlock()

	if err := f.conn.Export(nil, e.path, EngineInterface); err != nil {
		f.opts.Logger.Warn("unexport engine", "path", e.path, "error", err)
	}
	f.opts.Logger.Info("engine destroyed", "path", e.path, "active", active)
	if f.opts.OnDestroy != nil {
		f.opts.OnDestroy(active)
	}
}

// Engine returns the engine exported at path.
func (f *Factory) Engine(path dbus.ObjectPath) (*EngineObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.engines[path]
	return e, ok
}

// Sessions returns a snapshot of every live engine ordered by path.
func (f *Factory) Sessions() []SessionInfo {
	f.mu.Lock()
	engines := make([]*EngineObject, 0, len(f.engines))
	for _, e := range f.engines {
		engines = append(engines, e)
	}
	f.mu.Unlock()

	infos := make([]SessionInfo, 0, len(engines))
	for _, e := range engines {
		infos = append(infos, e.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// Close flushes and unexports every engine.
func (f *Factory) Close() {
	f.mu.Lock()
	engines := make([]*EngineObject, 0, len(f.engines))
	for _, e := range f.engines {
		engines = append(engines, e)
	}
	f.mu.Unlock()

	for _, e := range engines {
		e.Destroy()
	}
}
