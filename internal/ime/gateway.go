package ime

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformedText is returned when the engine produces unusable text.
var ErrMalformedText = errors.New("malformed text from transliteration engine")

// ErrEngineUnavailable is returned by backends that cannot reach the engine.
var ErrEngineUnavailable = errors.New("transliteration engine unavailable")

// Transliterator is the external engine that turns raw keystrokes into
// composed text. Implementations must be safe to call from several input
// contexts at once.
type Transliterator interface {
	// ProcessSequence returns the composed string for the raw sequence.
	ProcessSequence(ctx context.Context, raw string) (string, error)

	// HandleBackspace removes one composed character and returns the
	// repaired composed string together with the raw sequence producing it.
	HandleBackspace(ctx context.Context, previous, raw string) (composed, repairedRaw string, err error)
}

// CompositionResult is the engine output for one keystroke.
type CompositionResult struct {
	Composed string
	// Raw is the repaired raw sequence. Only set by Backspace.
	Raw    string
	HasRaw bool
}

// GatewayOptions tunes a Gateway.
type GatewayOptions struct {
	// Normalize rewrites engine output to NFC before it is diffed.
	Normalize bool
	// CallTimeout bounds a single engine call. Zero means no bound.
	CallTimeout time.Duration
}

// Gateway validates and normalizes everything the engine returns.
type Gateway struct {
	engine Transliterator
	opts   GatewayOptions
}

// NewGateway wraps engine.
func NewGateway(engine Transliterator, opts GatewayOptions) *Gateway {
	return &Gateway{engine: engine, opts: opts}
}

// Process asks the engine to compose the full raw sequence.
func (g *Gateway) Process(ctx context.Context, raw string) (CompositionResult, error) {
	if !utf8.ValidString(raw) {
		return CompositionResult{}, fmt.Errorf("raw sequence: %w", ErrMalformedText)
	}

	ctx, cancel := g.callContext(ctx)
	defer cancel()

	composed, err := g.engine.ProcessSequence(ctx, raw)
	if err != nil {
		return CompositionResult{}, fmt.Errorf("process sequence: %w", err)
	}
	composed, err = g.clean(composed)
	if err != nil {
		return CompositionResult{}, err
	}
	return CompositionResult{Composed: composed}, nil
}

// Backspace asks the engine to repair the composition after a BackSpace.
func (g *Gateway) Backspace(ctx context.Context, previous, raw string) (CompositionResult, error) {
	if !utf8.ValidString(raw) || !utf8.ValidString(previous) {
		return CompositionResult{}, fmt.Errorf("backspace input: %w", ErrMalformedText)
	}

	ctx, cancel := g.callContext(ctx)
	defer cancel()

	composed, repaired, err := g.engine.HandleBackspace(ctx, previous, raw)
	if err != nil {
		return CompositionResult{}, fmt.Errorf("handle backspace: %w", err)
	}
	composed, err = g.clean(composed)
	if err != nil {
		return CompositionResult{}, err
	}
	if !utf8.ValidString(repaired) {
		return CompositionResult{}, fmt.Errorf("repaired raw sequence: %w", ErrMalformedText)
	}
	return CompositionResult{Composed: composed, Raw: repaired, HasRaw: true}, nil
}

func (g *Gateway) clean(composed string) (string, error) {
	if !utf8.ValidString(composed) {
		return "", fmt.Errorf("composed %q: %w", composed, ErrMalformedText)
	}
	if g.opts.Normalize {
		composed = norm.NFC.String(composed)
	}
	return composed, nil
}

func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, g.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}
