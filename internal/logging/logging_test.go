package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("round trip of %v gave %v, %v", level, parsed, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.FilePath != "/tmp/state/bogoime/bogoime.log" {
		t.Errorf("unexpected default path %s", cfg.FilePath)
	}
	if cfg.LogText {
		t.Error("typed text must be redacted by default")
	}
}

func newBufferLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Writer = &buf
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	line, _, _ := strings.Cut(buf.String(), "\n")
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return entry
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: LevelInfo, Format: FormatJSON, Component: "test"})

	logger.Info("engine ready", "method", "surrounding_text")

	entry := decodeLine(t, buf)
	if entry["msg"] != "engine ready" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["component"] != "test" {
		t.Errorf("unexpected component %v", entry["component"])
	}
	if entry["method"] != "surrounding_text" {
		t.Errorf("unexpected method %v", entry["method"])
	}
}

func TestTypedTextRedaction(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: LevelDebug, Format: FormatJSON})
	logger.Debug("composed", "raw", "vieetj", "composed", "việt", "app", "gedit")

	entry := decodeLine(t, buf)
	if entry["raw"] != Redacted || entry["composed"] != Redacted {
		t.Errorf("typed text leaked: %v", entry)
	}
	if entry["app"] != "gedit" {
		t.Errorf("unexpected app %v", entry["app"])
	}

	logger, buf = newBufferLogger(t, &Config{Level: LevelDebug, Format: FormatJSON, LogText: true})
	logger.Debug("composed", "raw", "vieetj", "password", "hunter2")

	entry = decodeLine(t, buf)
	if entry["raw"] != "vieetj" {
		t.Errorf("expected raw text with LogText, got %v", entry["raw"])
	}
	if entry["password"] != Redacted {
		t.Errorf("credentials must stay redacted, got %v", entry["password"])
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"secret", true},
		{"api_key", true},
		{"auth_token", true},
		{"bearer", true},
		{"private_key", true},
		{"cookie", true},
		{"keysym", false},
		{"keycode", false},
		{"app", false},
		{"method", false},
		{"deletes", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestLoggerWithComponent(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: LevelInfo, Format: FormatJSON, Component: "bogoime"})

	logger.WithComponent("ibus").With("path", "/org/freedesktop/IBus/Engine/1").Info("focus in")

	entry := decodeLine(t, buf)
	if entry["component"] != "ibus" {
		t.Errorf("expected component ibus, got %v", entry["component"])
	}
	if entry["path"] != "/org/freedesktop/IBus/Engine/1" {
		t.Errorf("unexpected path %v", entry["path"])
	}
}

func TestFileRotator(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 3})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	data := []byte("test log line\n")
	n, err := rotator.Write(data)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected to write %d bytes, wrote %d", len(data), n)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log file was not created: %v", err)
	}
	if err := rotator.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	rotator.maxBytes = 32

	line := []byte("0123456789abcdef0123456789\n")
	for i := 0; i < 5; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	backups, err := rotator.Backups()
	if err != nil {
		t.Fatalf("failed to list backups: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("expected 2 backups after pruning, got %v", backups)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read current log: %v", err)
	}
	if !bytes.Equal(data, line) {
		t.Errorf("current log should hold only the last line, got %q", data)
	}
}

func TestFileRotatorCompress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{FilePath: logPath, Compress: true})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	rotator.maxBytes = 8

	rotator.Write([]byte("first line\n"))
	rotator.Write([]byte("second line\n"))
	rotator.Close()

	backups, _ := rotator.Backups()
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".log.gz") {
		t.Errorf("expected one gzip backup, got %v", backups)
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "bogo.log")
	logger, err := New(&Config{Level: LevelInfo, Output: "file", FilePath: logPath, MaxSize: 1})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestPanicHandler(t *testing.T) {
	dir := t.TempDir()
	logger, buf := newBufferLogger(t, &Config{Level: LevelInfo, Format: FormatJSON})

	var seen []PanicReport
	h := NewPanicHandler(PanicHandlerConfig{
		Dir:     dir,
		Version: "1.0.0",
		Logger:  logger.Logger,
		OnPanic: func(r PanicReport) { seen = append(seen, r) },
	})

	func() {
		defer h.Recover("ProcessKeyEvent", map[string]string{"path": "/engine/1"})
		panic("index out of range")
	}()

	if h.Count() != 1 || len(seen) != 1 {
		t.Fatalf("expected one recovered panic, got %d/%d", h.Count(), len(seen))
	}
	if seen[0].Operation != "ProcessKeyEvent" {
		t.Errorf("unexpected operation %q", seen[0].Operation)
	}
	if !strings.Contains(buf.String(), "recovered panic") {
		t.Errorf("panic was not logged: %s", buf.String())
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("failed to read reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].PanicValue != "index out of range" || reports[0].Version != "1.0.0" {
		t.Errorf("unexpected report %+v", reports[0])
	}
	if reports[0].Context["path"] != "/engine/1" {
		t.Errorf("context not recorded: %v", reports[0].Context)
	}

	if err := h.Prune(-time.Second); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if reports, _ := h.Reports(); len(reports) != 0 {
		t.Errorf("reports were not pruned: %d", len(reports))
	}
}

func TestPanicHandlerWithoutDir(t *testing.T) {
	logger, _ := newBufferLogger(t, &Config{Level: LevelInfo})
	h := NewPanicHandler(PanicHandlerConfig{Logger: logger.Logger})

	func() {
		defer h.Recover("Reset", nil)
		panic("boom")
	}()

	if h.Count() != 1 {
		t.Errorf("expected count 1, got %d", h.Count())
	}
	if reports, err := h.Reports(); err != nil || reports != nil {
		t.Errorf("expected no reports, got %v, %v", reports, err)
	}
}
