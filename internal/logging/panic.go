package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// PanicReport describes a recovered panic.
type PanicReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version,omitempty"`
	Operation    string            `json:"operation"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Context      map[string]string `json:"context,omitempty"`
}

// PanicHandler recovers panics in D-Bus method handlers so that a bug in
// one input context does not take the engine process down.
type PanicHandler struct {
	mu      sync.Mutex
	dir     string
	version string
	logger  *slog.Logger
	onPanic func(PanicReport)
	count   int
}

// PanicHandlerConfig configures a PanicHandler.
type PanicHandlerConfig struct {
	// Dir receives one JSON report per panic. Empty disables the files.
	Dir string

	Version string
	Logger  *slog.Logger

	// OnPanic is called after the report is written.
	OnPanic func(PanicReport)
}

// DefaultPanicDir returns $XDG_STATE_HOME/bogoime/panics.
func DefaultPanicDir() string {
	return filepath.Join(StateDir(), "panics")
}

// NewPanicHandler creates a PanicHandler.
func NewPanicHandler(cfg PanicHandlerConfig) *PanicHandler {
	if cfg.Logger == nil {
		cfg.Logger = Default().Logger
	}
	return &PanicHandler{
		dir:     cfg.Dir,
		version: cfg.Version,
		logger:  cfg.Logger,
		onPanic: cfg.OnPanic,
	}
}

// Recover must be deferred directly:
//
//	defer h.Recover("ProcessKeyEvent", nil)
func (h *PanicHandler) Recover(op string, ctx map[string]string) {
	if r := recover(); r != nil {
		h.Handle(r, op, ctx)
	}
}

// Handle records a recovered panic value.
func (h *PanicHandler) Handle(value any, op string, ctx map[string]string) PanicReport {
	report := PanicReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Operation:    op,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprint(value),
		StackTrace:   string(debug.Stack()),
		Context:      ctx,
	}

	h.mu.Lock()
	h.count++
	var werr error
	if h.dir != "" {
		werr = h.write(report)
	}
	h.mu.Unlock()

	h.logger.Error("recovered panic",
		"operation", op,
		"panic", report.PanicValue,
	)
	if werr != nil {
		h.logger.Warn("write panic report", "error", werr)
	}
	if h.onPanic != nil {
		h.onPanic(report)
	}
	return report
}

func (h *PanicHandler) write(report PanicReport) error {
	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		return fmt.Errorf("create panic dir: %w", err)
	}

	name := fmt.Sprintf("panic-%s-%d.json", report.Timestamp.Format("20060102-150405"), h.count)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal panic report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(h.dir, name), data, 0o640); err != nil {
		return fmt.Errorf("write panic report: %w", err)
	}
	return nil
}

// Count returns the number of panics recovered so far.
func (h *PanicHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Reports reads the reports in the panic directory.
func (h *PanicHandler) Reports() ([]PanicReport, error) {
	if h.dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "panic-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]PanicReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report PanicReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Prune removes reports older than maxAge.
func (h *PanicHandler) Prune(maxAge time.Duration) error {
	if h.dir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "panic-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
