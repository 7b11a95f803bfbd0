package ime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// fakeHost records every call as a short string.
type fakeHost struct {
	app  string
	caps Capability

	calls     []string
	commitErr error
}

func (h *fakeHost) CommitString(text string) error {
	if h.commitErr != nil {
		return h.commitErr
	}
	h.calls = append(h.calls, "commit:"+text)
	return nil
}

func (h *fakeHost) DeleteSurroundingText(offset, count int) error {
	h.calls = append(h.calls, fmt.Sprintf("delete:%d,%d", offset, count))
	return nil
}

func (h *fakeHost) ForwardKey(ev KeyEvent) error {
	h.calls = append(h.calls, "forward:"+describeKey(ev))
	return nil
}

func (h *fakeHost) Capabilities() Capability { return h.caps }
func (h *fakeHost) ApplicationName() string  { return h.app }

func (h *fakeHost) commits() []string {
	var out []string
	for _, c := range h.calls {
		if len(c) > 7 && c[:7] == "commit:" {
			out = append(out, c[7:])
		}
	}
	return out
}

// fakeInjector records synthesized events.
type fakeInjector struct {
	events  []string
	failAt  int
	written int
}

func (i *fakeInjector) SynthesizeKey(ev KeyEvent) error {
	i.written++
	if i.failAt > 0 && i.written >= i.failAt {
		return errors.New("uinput write failed")
	}
	i.events = append(i.events, describeKey(ev))
	return nil
}

func describeKey(ev KeyEvent) string {
	dir := "down"
	if ev.Release {
		dir = "up"
	}
	return fmt.Sprintf("%#x/%s", ev.Keysym, dir)
}

// fakeSettler counts settle calls.
type fakeSettler struct {
	calls []int
}

func (s *fakeSettler) Settle(_ context.Context, deletes int) {
	s.calls = append(s.calls, deletes)
}

type backspaceReply struct {
	composed string
	raw      string
}

// tableEngine is a transliterator backed by lookup tables. Unknown raw
// sequences compose to themselves.
type tableEngine struct {
	mu         sync.Mutex
	sequences  map[string]string
	backspaces map[string]backspaceReply
	err        error
	calls      int
}

func newTableEngine() *tableEngine {
	return &tableEngine{
		sequences: map[string]string{
			"a":     "a",
			"aw":    "ă",
			"awn":   "ăn",
			"cafe":  "cafe",
			"cafes": "café",
			"dd":    "đ",
		},
		backspaces: map[string]backspaceReply{
			"ă|aw":   {composed: "a", raw: "a"},
			"ăn|awn": {composed: "ă", raw: "aw"},
		},
	}
}

func (t *tableEngine) ProcessSequence(_ context.Context, raw string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	if out, ok := t.sequences[raw]; ok {
		return out, nil
	}
	return raw, nil
}

func (t *tableEngine) HandleBackspace(_ context.Context, previous, raw string) (string, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return "", "", t.err
	}
	if r, ok := t.backspaces[previous+"|"+raw]; ok {
		return r.composed, r.raw, nil
	}
	runes := []rune(previous)
	return string(runes[:len(runes)-1]), raw[:len(raw)-1], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine wires an engine around fakes.
func newTestEngine(host *fakeHost, injector Injector) (*Engine, *tableEngine, *fakeSettler) {
	translit := newTableEngine()
	settler := &fakeSettler{}
	e := NewEngine(host, NewGateway(translit, GatewayOptions{Normalize: true}), Options{
		Injector: injector,
		Settler:  settler,
		Logger:   discardLogger(),
	})
	return e, translit, settler
}

func typeKeys(e *Engine, keys string) []KeyResult {
	var results []KeyResult
	for _, r := range keys {
		results = append(results, e.ProcessKey(context.Background(), Press(uint32(r))))
	}
	return results
}
