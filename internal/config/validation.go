package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"macrorec/internal/hook"
	"macrorec/internal/interference"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// CronParser parses schedule expressions: standard five fields with an
// optional leading seconds field, or a descriptor such as @hourly.
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

type validator struct {
	errs []error
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) atLeast(field string, value, min int) {
	if value < min {
		v.add(field, "must be at least %d, got %d", min, value)
	}
}

// ValidateConfig checks every section and reports all problems at once.
// The error matches ErrInvalidConfig and each *ValidationError.
func ValidateConfig(c *Config) error {
	v := &validator{}

	if c.Version < 1 || c.Version > Version {
		v.add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	validatePlayback(v, &c.Playback)
	validateRecording(v, &c.Recording)
	validateHotkey(v, &c.Hotkey)
	validateHook(v, &c.Hook)
	validateLogging(v, &c.Logging)
	validateMetrics(v, &c.Metrics)
	validateSchedule(v, c.Schedule)

	if len(v.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(v.errs...))
}

func validatePlayback(v *validator, p *PlaybackConfig) {
	v.atLeast("playback.repeat", p.Repeat, 0)
	v.atLeast("playback.interval_ms", p.IntervalMs, 0)
	v.atLeast("playback.poll_slice_ms", p.PollSliceMs, 1)
	v.atLeast("playback.interval_slice_ms", p.IntervalSliceMs, 1)
	v.atLeast("playback.stop_timeout_ms", p.StopTimeoutMs, 1)
}

func validateRecording(v *validator, r *RecordingConfig) {
	v.atLeast("recording.drain_timeout_ms", r.DrainTimeoutMs, 1)
	v.atLeast("recording.buffer_size", r.BufferSize, 1)
}

func validateHotkey(v *validator, h *HotkeyConfig) {
	if _, err := interference.ParseHotkey(h.Toggle); err != nil {
		v.add("hotkey.toggle", "%v", err)
	}
}

func validateHook(v *validator, h *HookConfig) {
	switch h.Backend {
	case hook.BackendEvdev, hook.BackendSimulated:
	default:
		v.add("hook.backend", "invalid backend: %q (valid: %s, %s)", h.Backend, hook.BackendEvdev, hook.BackendSimulated)
	}
	for i, dev := range h.Devices {
		if !filepath.IsAbs(dev) {
			v.add(fmt.Sprintf("hook.devices[%d]", i), "device path must be absolute: %s", dev)
		}
	}
	v.atLeast("hook.screen_width", h.ScreenWidth, 1)
	v.atLeast("hook.screen_height", h.ScreenHeight, 1)
}

func validateLogging(v *validator, l *LoggingConfig) {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		v.add("logging.level", "invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	switch l.Format {
	case "text", "json":
	default:
		v.add("logging.format", "invalid log format: %s (valid: text, json)", l.Format)
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			v.add("logging.file_path", "file path is required when output is %q", l.Output)
		}
		v.atLeast("logging.max_size_mb", l.MaxSizeMB, 1)
	default:
		v.add("logging.output", "invalid log output: %q (valid: stdout, stderr, file, both)", l.Output)
	}

	v.atLeast("logging.max_backups", l.MaxBackups, 0)
}

func validateMetrics(v *validator, m *MetricsConfig) {
	if !m.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		v.add("metrics.listen", "invalid listen address %q: %v", m.Listen, err)
	}
}

func validateSchedule(v *validator, entries []ScheduleEntry) {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		field := fmt.Sprintf("schedule[%d]", i)
		if e.Name == "" {
			v.add(field+".name", "required field is missing")
		} else if seen[e.Name] {
			v.add(field+".name", "duplicate schedule name %q", e.Name)
		}
		seen[e.Name] = true

		if _, err := CronParser.Parse(e.Cron); err != nil {
			v.add(field+".cron", "invalid cron expression %q: %v", e.Cron, err)
		}
		if e.Recording == "" {
			v.add(field+".recording", "required field is missing")
		}
		v.atLeast(field+".repeat", e.Repeat, 0)
		v.atLeast(field+".interval_ms", e.IntervalMs, 0)
	}
}
