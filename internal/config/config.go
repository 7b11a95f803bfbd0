// Package config handles configuration loading and validation for bogoime.
//
// Configuration is read from TOML (default), JSON or YAML, checked against
// an embedded JSON Schema, overridden by BOGO_* environment variables and
// finally validated field by field.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"bogoime/internal/ime"
	"bogoime/internal/logging"
)

// Version is the current configuration format version.
const Version = 1

// Transliteration backends.
const (
	BackendDBus    = "dbus"
	BackendCommand = "command"
)

// Duration is a time.Duration written as "30ms", "1s" and so on.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the complete bogoime configuration.
type Config struct {
	Version     int               `toml:"version" json:"version" yaml:"version"`
	Engine      EngineConfig      `toml:"engine" json:"engine" yaml:"engine"`
	Delivery    DeliveryConfig    `toml:"delivery" json:"delivery" yaml:"delivery"`
	Quirks      []ime.QuirkRule   `toml:"quirks" json:"quirks,omitempty" yaml:"quirks,omitempty"`
	Injector    InjectorConfig    `toml:"injector" json:"injector" yaml:"injector"`
	IBus        IBusConfig        `toml:"ibus" json:"ibus" yaml:"ibus"`
	Logging     LoggingConfig     `toml:"logging" json:"logging" yaml:"logging"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics" json:"diagnostics" yaml:"diagnostics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// EngineConfig selects and tunes the transliteration engine.
type EngineConfig struct {
	// Backend is "dbus" or "command".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Command and Args start a JSON-lines engine process.
	Command string   `toml:"command" json:"command" yaml:"command"`
	Args    []string `toml:"args" json:"args,omitempty" yaml:"args,omitempty"`

	// DBusName and DBusPath locate an engine on the session bus.
	DBusName string `toml:"dbus_name" json:"dbus_name" yaml:"dbus_name"`
	DBusPath string `toml:"dbus_path" json:"dbus_path" yaml:"dbus_path"`

	CallTimeout Duration `toml:"call_timeout" json:"call_timeout" yaml:"call_timeout"`

	// Normalize applies NFC to everything the engine returns.
	Normalize bool `toml:"normalize" json:"normalize" yaml:"normalize"`
}

// DeliveryConfig tunes how edits reach the application.
type DeliveryConfig struct {
	SettleDelay      Duration `toml:"settle_delay" json:"settle_delay" yaml:"settle_delay"`
	MaxPendingEvents int      `toml:"max_pending_events" json:"max_pending_events" yaml:"max_pending_events"`
	MaxRawBytes      int      `toml:"max_raw_bytes" json:"max_raw_bytes" yaml:"max_raw_bytes"`
	SentinelKeysym   uint32   `toml:"sentinel_keysym" json:"sentinel_keysym" yaml:"sentinel_keysym"`
	SentinelKeycode  uint32   `toml:"sentinel_keycode" json:"sentinel_keycode" yaml:"sentinel_keycode"`

	// BuiltinQuirks appends the built-in rules after the configured ones.
	BuiltinQuirks bool `toml:"builtin_quirks" json:"builtin_quirks" yaml:"builtin_quirks"`
}

// InjectorConfig configures the uinput virtual keyboard.
type InjectorConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	DeviceName string `toml:"device_name" json:"device_name" yaml:"device_name"`
	Path       string `toml:"path" json:"path" yaml:"path"`
}

// IBusConfig controls the connection to ibus-daemon.
type IBusConfig struct {
	// Address overrides IBUS_ADDRESS and `ibus address`.
	Address      string `toml:"address" json:"address" yaml:"address"`
	BusName      string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`
	EngineName   string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`
	FocusTracker bool   `toml:"focus_tracker" json:"focus_tracker" yaml:"focus_tracker"`
	ComponentDir string `toml:"component_dir" json:"component_dir" yaml:"component_dir"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
	LogText    bool   `toml:"log_text" json:"log_text" yaml:"log_text"`
}

// DiagnosticsConfig configures the local HTTP endpoint. Empty Listen
// disables it.
type DiagnosticsConfig struct {
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			Backend:     BackendDBus,
			DBusName:    "org.bogo.Engine",
			DBusPath:    "/org/bogo/Engine",
			CallTimeout: Duration{500 * time.Millisecond},
			Normalize:   true,
		},
		Delivery: DeliveryConfig{
			SettleDelay:      Duration{ime.DefaultSettleDelay},
			MaxPendingEvents: ime.DefaultMaxPendingEvents,
			MaxRawBytes:      ime.DefaultMaxRawBytes,
			SentinelKeysym:   ime.KeyF24,
			SentinelKeycode:  ime.EvdevF24,
			BuiltinQuirks:    true,
		},
		Injector: InjectorConfig{
			Enabled:    true,
			DeviceName: "bogoime virtual keyboard",
			Path:       "/dev/uinput",
		},
		IBus: IBusConfig{
			BusName:    "org.freedesktop.IBus.Bogo",
			EngineName: "bogo",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/bogoime or BOGO_CONFIG_DIR.
func ConfigDir() string {
	if dir := os.Getenv("BOGO_CONFIG_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bogoime")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bogoime")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies BOGO_* environment variables. Malformed
// numeric values are ignored and left to validation of the file value.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("BOGO_ENGINE_BACKEND"); v != "" {
		c.Engine.Backend = v
	}
	if v := os.Getenv("BOGO_ENGINE_COMMAND"); v != "" {
		c.Engine.Command = v
	}
	if v := os.Getenv("BOGO_ENGINE_DBUS_NAME"); v != "" {
		c.Engine.DBusName = v
	}
	if v := os.Getenv("BOGO_ENGINE_DBUS_PATH"); v != "" {
		c.Engine.DBusPath = v
	}
	if v, ok := envDuration("BOGO_ENGINE_CALL_TIMEOUT"); ok {
		c.Engine.CallTimeout = v
	}
	if v, ok := envDuration("BOGO_SETTLE_DELAY"); ok {
		c.Delivery.SettleDelay = v
	}
	if v, ok := envInt("BOGO_MAX_PENDING_EVENTS"); ok {
		c.Delivery.MaxPendingEvents = v
	}
	if v, ok := envBool("BOGO_INJECTOR_ENABLED"); ok {
		c.Injector.Enabled = v
	}
	if v := os.Getenv("BOGO_IBUS_ADDRESS"); v != "" {
		c.IBus.Address = v
	}
	if v, ok := envBool("BOGO_FOCUS_TRACKER"); ok {
		c.IBus.FocusTracker = v
	}
	if v := os.Getenv("BOGO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BOGO_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("BOGO_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("BOGO_DIAG_LISTEN"); v != "" {
		c.Diagnostics.Listen = v
	}
}

func envDuration(name string) (Duration, bool) {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return Duration{}, false
	}
	return Duration{d}, true
}

func envInt(name string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(name))
	return n, err == nil
}

func envBool(name string) (bool, bool) {
	b, err := strconv.ParseBool(os.Getenv(name))
	return b, err == nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:     c.Version,
		Engine:      c.Engine,
		Delivery:    c.Delivery,
		Injector:    c.Injector,
		IBus:        c.IBus,
		Logging:     c.Logging,
		Diagnostics: c.Diagnostics,
	}
	clone.Engine.Args = append([]string(nil), c.Engine.Args...)
	clone.Quirks = append([]ime.QuirkRule(nil), c.Quirks...)
	return clone
}

// QuirkTable compiles the configured rules, followed by the built-in rules
// when delivery.builtin_quirks is set. First match wins.
func (c *Config) QuirkTable() (*ime.QuirkTable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rules := append([]ime.QuirkRule(nil), c.Quirks...)
	if c.Delivery.BuiltinQuirks {
		rules = append(rules, ime.DefaultQuirkRules()...)
	}
	return ime.NewQuirkTable(rules)
}

// Sentinel returns the configured sentinel key.
func (c *Config) Sentinel() ime.SentinelKey {
	return ime.SentinelKey{
		Keysym:  c.Delivery.SentinelKeysym,
		Keycode: c.Delivery.SentinelKeycode,
	}
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     strings.ToLower(c.Logging.Output),
		FilePath:   expandPath(c.Logging.FilePath),
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxAge:     c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		LogText:    c.Logging.LogText,
		Component:  "bogoime",
	}, nil
}
