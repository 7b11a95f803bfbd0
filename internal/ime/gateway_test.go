package ime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcEngine adapts functions to Transliterator.
type funcEngine struct {
	process   func(ctx context.Context, raw string) (string, error)
	backspace func(ctx context.Context, previous, raw string) (string, string, error)
}

func (f funcEngine) ProcessSequence(ctx context.Context, raw string) (string, error) {
	return f.process(ctx, raw)
}

func (f funcEngine) HandleBackspace(ctx context.Context, previous, raw string) (string, string, error) {
	return f.backspace(ctx, previous, raw)
}

func TestGatewayProcess(t *testing.T) {
	g := NewGateway(newTableEngine(), GatewayOptions{})
	res, err := g.Process(context.Background(), "aw")
	require.NoError(t, err)
	assert.Equal(t, "ă", res.Composed)
	assert.False(t, res.HasRaw)
}

func TestGatewayNormalizes(t *testing.T) {
	decomposed := funcEngine{process: func(context.Context, string) (string, error) {
		return "a\u0306", nil
	}}

	res, err := NewGateway(decomposed, GatewayOptions{Normalize: true}).Process(context.Background(), "aw")
	require.NoError(t, err)
	assert.Equal(t, "\u0103", res.Composed)

	res, err = NewGateway(decomposed, GatewayOptions{}).Process(context.Background(), "aw")
	require.NoError(t, err)
	assert.Equal(t, "a\u0306", res.Composed)
}

func TestGatewayRejectsMalformed(t *testing.T) {
	bad := funcEngine{
		process: func(context.Context, string) (string, error) {
			return "a\xff", nil
		},
		backspace: func(context.Context, string, string) (string, string, error) {
			return "a", "\xc3", nil
		},
	}
	g := NewGateway(bad, GatewayOptions{Normalize: true})

	_, err := g.Process(context.Background(), "a")
	assert.ErrorIs(t, err, ErrMalformedText)

	_, err = g.Backspace(context.Background(), "ă", "aw")
	assert.ErrorIs(t, err, ErrMalformedText)

	_, err = g.Process(context.Background(), "\xff")
	assert.ErrorIs(t, err, ErrMalformedText)
}

func TestGatewayWrapsEngineErrors(t *testing.T) {
	cause := errors.New("engine crashed")
	g := NewGateway(funcEngine{
		process: func(context.Context, string) (string, error) { return "", cause },
	}, GatewayOptions{})

	_, err := g.Process(context.Background(), "a")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "process sequence")
}

func TestGatewayBackspace(t *testing.T) {
	g := NewGateway(newTableEngine(), GatewayOptions{})
	res, err := g.Backspace(context.Background(), "ăn", "awn")
	require.NoError(t, err)
	assert.Equal(t, CompositionResult{Composed: "ă", Raw: "aw", HasRaw: true}, res)
}

func TestGatewayCallTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	g := NewGateway(funcEngine{
		process: func(ctx context.Context, raw string) (string, error) {
			deadline, hasDeadline = ctx.Deadline()
			return raw, nil
		},
	}, GatewayOptions{CallTimeout: time.Second})

	_, err := g.Process(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}
