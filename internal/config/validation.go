package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig is matched by every ValidationErrors value.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) hold.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the offending field names.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ValidateConfig checks semantic constraints the schema cannot express.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateDelivery(&c.Delivery)...)
	errs = append(errs, validateQuirks(c)...)
	errs = append(errs, validateInjector(&c.Injector)...)
	errs = append(errs, validateIBus(&c.IBus)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateDiagnostics(&c.Diagnostics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	switch e.Backend {
	case BackendDBus:
		if e.DBusName == "" {
			errs = append(errs, ValidationError{"engine.dbus_name", "required for the dbus backend"})
		}
		if !strings.HasPrefix(e.DBusPath, "/") {
			errs = append(errs, ValidationError{"engine.dbus_path", fmt.Sprintf("invalid object path %q", e.DBusPath)})
		}
	case BackendCommand:
		if e.Command == "" {
			errs = append(errs, ValidationError{"engine.command", "required for the command backend"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "engine.backend",
			Message: fmt.Sprintf("unknown backend %q (valid: dbus, command)", e.Backend),
		})
	}

	if e.CallTimeout.Duration < 0 {
		errs = append(errs, ValidationError{"engine.call_timeout", "cannot be negative"})
	}
	return errs
}

func validateDelivery(d *DeliveryConfig) ValidationErrors {
	var errs ValidationErrors

	if d.SettleDelay.Duration < 0 || d.SettleDelay.Duration > time.Second {
		errs = append(errs, ValidationError{"delivery.settle_delay", "must be between 0 and 1s"})
	}
	if d.MaxPendingEvents < 1 {
		errs = append(errs, ValidationError{"delivery.max_pending_events", "must be at least 1"})
	}
	if d.MaxRawBytes < 16 {
		errs = append(errs, ValidationError{"delivery.max_raw_bytes", "must be at least 16"})
	}
	if d.SentinelKeysym == 0 && d.SentinelKeycode == 0 {
		errs = append(errs, ValidationError{"delivery.sentinel_keysym", "a sentinel keysym or keycode is required"})
	}
	return errs
}

func validateQuirks(c *Config) ValidationErrors {
	var errs ValidationErrors
	for i, r := range c.Quirks {
		field := fmt.Sprintf("quirks.%d.pattern", i)
		pattern := strings.TrimSpace(r.Pattern)
		if pattern == "" {
			errs = append(errs, ValidationError{field, "pattern is required"})
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), ""); err != nil {
			errs = append(errs, ValidationError{field, fmt.Sprintf("invalid glob %q", r.Pattern)})
		}
	}
	return errs
}

func validateInjector(in *InjectorConfig) ValidationErrors {
	var errs ValidationErrors
	if !in.Enabled {
		return nil
	}
	if in.Path == "" {
		errs = append(errs, ValidationError{"injector.path", "required when the injector is enabled"})
	}
	if len(in.DeviceName) >= 80 {
		errs = append(errs, ValidationError{"injector.device_name", "must be shorter than 80 bytes"})
	}
	return errs
}

func validateIBus(b *IBusConfig) ValidationErrors {
	var errs ValidationErrors
	if b.BusName == "" {
		errs = append(errs, ValidationError{"ibus.bus_name", "required field is missing"})
	}
	if b.EngineName == "" {
		errs = append(errs, ValidationError{"ibus.engine_name", "required field is missing"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{"logging.max_size_mb", "max size must be at least 1 MB"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{"logging.max_backups", "max backups cannot be negative"})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{"logging.max_age_days", "max age cannot be negative"})
	}
	return errs
}

func validateDiagnostics(d *DiagnosticsConfig) ValidationErrors {
	if d.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(d.Listen); err != nil {
		return ValidationErrors{{"diagnostics.listen", fmt.Sprintf("invalid address %q: %v", d.Listen, err)}}
	}
	return nil
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
