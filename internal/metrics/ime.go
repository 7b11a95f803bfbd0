package metrics

import (
	"sync"
	"time"

	"bogoime/internal/ime"
)

// IMEMetrics records input-method activity. It implements ime.Recorder and
// is shared by every input context.
type IMEMetrics struct {
	registry *Registry

	KeysTotal          *Counter
	ConsumedKeysTotal  *Counter
	DelayedCommits     *Counter
	ForcedFlushes      *Counter
	EngineErrorsTotal  *Counter
	ActiveContexts     *Gauge
	EngineCallDuration *Histogram

	mu         sync.Mutex
	deliveries map[ime.Method]*Counter
	resets     map[string]*Counter
}

var _ ime.Recorder = (*IMEMetrics)(nil)

// NewIMEMetrics creates and registers all input-method metrics.
func NewIMEMetrics(registry *Registry) *IMEMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &IMEMetrics{
		registry: registry,

		KeysTotal: registry.RegisterCounter(
			"keys_total",
			"Key events received from the host",
			nil,
		),
		ConsumedKeysTotal: registry.RegisterCounter(
			"keys_consumed_total",
			"Key events consumed by the input method",
			nil,
		),
		DelayedCommits: registry.RegisterCounter(
			"delayed_commits_total",
			"Commits released by the sentinel key",
			nil,
		),
		ForcedFlushes: registry.RegisterCounter(
			"forced_flushes_total",
			"Delayed commits released without the sentinel key",
			nil,
		),
		EngineErrorsTotal: registry.RegisterCounter(
			"engine_errors_total",
			"Failed transliteration engine calls",
			nil,
		),
		ActiveContexts: registry.RegisterGauge(
			"active_contexts",
			"Input contexts with a live engine",
			nil,
		),
		EngineCallDuration: registry.RegisterHistogram(
			"engine_call_duration_seconds",
			"Transliteration engine call latency",
			nil,
			LatencyBuckets,
		),

		deliveries: make(map[ime.Method]*Counter),
		resets:     make(map[string]*Counter),
	}

	for _, method := range []ime.Method{ime.MethodNone, ime.SurroundingText, ime.ForwardedBackspace, ime.SyntheticKeyEvent} {
		m.delivery(method)
	}
	return m
}

func (m *IMEMetrics) delivery(method ime.Method) *Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.deliveries[method]
	if !ok {
		c = m.registry.RegisterCounter(
			"deliveries_total",
			"Edits delivered to the focused application by method",
			Labels{"method": method.String()},
		)
		m.deliveries[method] = c
	}
	return c
}

func (m *IMEMetrics) reset(reason string) *Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.resets[reason]
	if !ok {
		c = m.registry.RegisterCounter(
			"session_resets_total",
			"Composition sessions discarded by reason",
			Labels{"reason": reason},
		)
		m.resets[reason] = c
	}
	return c
}

// KeyProcessed counts a key event and whether it was consumed.
func (m *IMEMetrics) KeyProcessed(result ime.KeyResult) {
	m.KeysTotal.Inc()
	if result.Consumed() {
		m.ConsumedKeysTotal.Inc()
	}
}

// Delivered counts one delivery.
func (m *IMEMetrics) Delivered(method ime.Method, _ int) {
	m.delivery(method).Inc()
}

// SessionReset counts a discarded session.
func (m *IMEMetrics) SessionReset(reason string) {
	m.reset(reason).Inc()
}

// DelayedCommitted counts a released delayed commit.
func (m *IMEMetrics) DelayedCommitted(forced bool) {
	if forced {
		m.ForcedFlushes.Inc()
		return
	}
	m.DelayedCommits.Inc()
}

// EngineCall records the latency of a transliteration engine call.
func (m *IMEMetrics) EngineCall(_ string, d time.Duration, err error) {
	m.EngineCallDuration.ObserveDuration(d)
	if err != nil {
		m.EngineErrorsTotal.Inc()
	}
}

// Registry returns the registry the metrics live in.
func (m *IMEMetrics) Registry() *Registry {
	return m.registry
}
