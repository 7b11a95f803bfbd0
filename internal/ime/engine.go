package ime

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"
)

// Recorder receives engine events for metrics. All methods must be cheap.
type Recorder interface {
	KeyProcessed(result KeyResult)
	Delivered(method Method, deletes int)
	SessionReset(reason string)
	DelayedCommitted(forced bool)
	EngineCall(op string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) KeyProcessed(KeyResult)                  {}
func (nopRecorder) Delivered(Method, int)                   {}
func (nopRecorder) SessionReset(string)                     {}
func (nopRecorder) DelayedCommitted(bool)                   {}
func (nopRecorder) EngineCall(string, time.Duration, error) {}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	MaxRawBytes      int
	MaxPendingEvents int
	Sentinel         SentinelKey

	// Injector enables SyntheticKeyEvent delivery. Without one, anonymous
	// clients fall back to forwarded backspaces.
	Injector Injector
	Settler  Settler
	Quirks   QuirkSource
	Logger   *slog.Logger
	Recorder Recorder
}

// Stats counts what one engine has done.
type Stats struct {
	Keys           uint64 `json:"keys"`
	Composed       uint64 `json:"composed"`
	Deliveries     uint64 `json:"deliveries"`
	Noops          uint64 `json:"noops"`
	Resets         uint64 `json:"resets"`
	DelayedCommits uint64 `json:"delayed_commits"`
	ForcedFlushes  uint64 `json:"forced_flushes"`
	Errors         uint64 `json:"errors"`
}

// Snapshot is a point-in-time view of an engine for diagnostics. It never
// contains typed text.
type Snapshot struct {
	Application    string       `json:"application"`
	State          DelayedState `json:"-"`
	StateName      string       `json:"state"`
	RawBytes       int          `json:"raw_bytes"`
	ComposedRunes  int          `json:"composed_runes"`
	PendingDeletes int          `json:"pending_deletes"`
	LastMethod     string       `json:"last_method,omitempty"`
	Stats          Stats        `json:"stats"`
}

// Engine handles the key events of one input context. It is not safe for
// concurrent use.
type Engine struct {
	host      Host
	gateway   *Gateway
	session   *Session
	delayed   *DelayedCommit
	deliverer *Deliverer
	injector  Injector
	quirks    QuirkSource
	log       *slog.Logger
	rec       Recorder

	lastMethod Method
	delivered  bool
	stats      Stats
}

// NewEngine creates an engine delivering to host.
func NewEngine(host Host, gateway *Gateway, opts Options) *Engine {
	if opts.Quirks == nil {
		opts.Quirks = NewQuirkStore(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Settler == nil {
		opts.Settler = SleepSettler{Delay: DefaultSettleDelay}
	}

	return &Engine{
		host:      host,
		gateway:   gateway,
		session:   NewSession(opts.MaxRawBytes),
		delayed:   NewDelayedCommit(host, opts.Injector, opts.Sentinel, opts.MaxPendingEvents),
		deliverer: NewDeliverer(host, opts.Settler),
		injector:  opts.Injector,
		quirks:    opts.Quirks,
		log:       opts.Logger,
		rec:       opts.Recorder,
	}
}

// ProcessKey handles one key event and tells the host what to do with it.
func (e *Engine) ProcessKey(ctx context.Context, ev KeyEvent) KeyResult {
	e.stats.Keys++
	result := e.processKey(ctx, ev)
	e.rec.KeyProcessed(result)
	return result
}

func (e *Engine) processKey(ctx context.Context, ev KeyEvent) KeyResult {
	icpt, err := e.delayed.Intercept(e.session, ev)
	if icpt.Committed {
		e.stats.DelayedCommits++
		e.rec.DelayedCommitted(icpt.Forced)
	}
	if icpt.Forced {
		e.stats.ForcedFlushes++
		e.log.Warn("delayed commit forced without sentinel",
			"app", e.host.ApplicationName(),
			"limit", e.delayed.maxPending)
		// The intercepted key goes to the client untouched, so what is on
		// screen no longer matches the buffer.
		e.reset("forced flush")
	}
	if icpt.Unsent != nil {
		e.stats.Errors++
		e.log.Warn("key passed through during delayed commit",
			"error", icpt.Unsent,
			"pending_deletes", e.session.PendingDeleteCount)
	}
	if err != nil {
		e.fail("delayed commit", err)
		return icpt.Result
	}
	if icpt.Handled {
		return icpt.Result
	}

	if ev.Release {
		return ToNextHandler
	}

	switch {
	case ev.Keysym == KeyBackSpace && ev.Modifiers&composeBlockers == 0:
		return e.backspace(ctx)
	case IsComposable(ev):
		return e.compose(ctx, ev)
	default:
		e.reset("non-composable key")
		return ToNextHandler
	}
}

func (e *Engine) compose(ctx context.Context, ev KeyEvent) KeyResult {
	text, _ := KeysymToUTF8(ev.Keysym)
	buf := e.session.Buffer

	if err := buf.Append(text); err != nil {
		e.stats.Errors++
		e.log.Warn("keystroke dropped", "error", err)
		return Block
	}

	start := time.Now()
	res, err := e.gateway.Process(ctx, buf.Raw())
	e.rec.EngineCall("process", time.Since(start), err)
	if err != nil {
		e.fail("process sequence", err)
		return Forward
	}

	if err := e.commit(ctx, res.Composed); err != nil {
		e.fail("deliver", err)
		return Forward
	}
	e.stats.Composed++
	return Block
}

func (e *Engine) backspace(ctx context.Context) KeyResult {
	buf := e.session.Buffer
	if buf.RawLen() == 0 || buf.Previous() == "" {
		e.reset("backspace outside composition")
		return ToNextHandler
	}

	start := time.Now()
	res, err := e.gateway.Backspace(ctx, buf.Previous(), buf.Raw())
	e.rec.EngineCall("backspace", time.Since(start), err)
	if err != nil {
		e.fail("handle backspace", err)
		return Forward
	}
	if err := buf.Replace(res.Raw); err != nil {
		e.fail("replace raw sequence", err)
		return Forward
	}

	if err := e.commit(ctx, res.Composed); err != nil {
		e.fail("deliver", err)
		return Forward
	}
	return Block
}

// commit reconciles the screen with next. A no-op diff delivers nothing.
func (e *Engine) commit(ctx context.Context, next string) error {
	buf := e.session.Buffer
	diff := ComputeDiff(buf.Previous(), next)
	if diff.IsNoop() {
		e.stats.Noops++
		return nil
	}

	app := e.host.ApplicationName()
	profile := Classify(e.quirks.Quirks(), app, e.host.Capabilities())
	plan := SelectMethod(profile, diff.DeleteCount)

	if plan.Method == SyntheticKeyEvent && e.injector == nil {
		plan = plan.Degrade()
		e.log.Debug("no injector, degrading synthetic delivery", "app", app)
	}

	e.log.Debug("delivering",
		"app", app,
		"rule", profile.Rule,
		"method", plan.Method.String(),
		"deletes", plan.DeleteCount,
		"forward_commit", plan.ForwardCommit,
		"settle", plan.Settle)

	var err error
	if plan.Method == SyntheticKeyEvent {
		err = e.delayed.Begin(e.session, diff)
	} else {
		err = e.deliverer.Deliver(ctx, plan, diff)
	}
	if err != nil {
		return err
	}

	buf.SetPrevious(next)
	e.lastMethod = plan.Method
	e.delivered = true
	e.stats.Deliveries++
	e.rec.Delivered(plan.Method, plan.DeleteCount)
	return nil
}

// fail logs err and resets the session.
func (e *Engine) fail(op string, err error) {
	e.stats.Errors++
	level := slog.LevelWarn
	if errors.Is(err, ErrMalformedText) || errors.Is(err, ErrEngineUnavailable) {
		level = slog.LevelError
	}
	e.log.Log(context.Background(), level, op+" failed", "error", err)
	e.reset(op + " error")
}

// reset flushes any parked commit and clears the buffer.
func (e *Engine) reset(reason string) {
	if e.session.Delayed {
		if err := e.delayed.Flush(e.session); err != nil {
			e.stats.Errors++
			e.log.Warn("flush on reset failed", "error", err)
		} else {
			e.stats.DelayedCommits++
			e.stats.ForcedFlushes++
			e.rec.DelayedCommitted(true)
		}
	}
	e.session.clearPending()

	if e.session.Buffer.RawLen() == 0 && e.session.Buffer.Previous() == "" {
		return
	}
	e.session.Buffer.Reset()
	e.stats.Resets++
	e.rec.SessionReset(reason)
}

// Reset ends the current composition, as on an explicit host reset.
func (e *Engine) Reset() {
	e.reset("reset")
}

// FocusOut ends the current composition when the context loses focus.
func (e *Engine) FocusOut() {
	e.reset("focus out")
}

// Session returns the engine's session. Callers must not mutate it.
func (e *Engine) Session() *Session {
	return e.session
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Snapshot returns a diagnostics view of the engine.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Application:    e.host.ApplicationName(),
		State:          e.session.State(),
		RawBytes:       e.session.Buffer.RawLen(),
		ComposedRunes:  utf8.RuneCountInString(e.session.Buffer.Previous()),
		PendingDeletes: e.session.PendingDeleteCount,
		Stats:          e.stats,
	}
	s.StateName = s.State.String()
	if e.delivered {
		s.LastMethod = e.lastMethod.String()
	}
	return s
}
