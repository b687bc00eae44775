// Package config handles configuration loading, validation, and management for macrorec.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/jinzhu/copier"

	"macrorec/internal/logging"
)

// Version is the current configuration schema version.
const Version = 2

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MACROREC_"

// Config holds the complete macrorec configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Playback defaults for play, run and the hotkey.
	Playback PlaybackConfig `toml:"playback" json:"playback" yaml:"playback"`

	// Recording configuration for the capture engine.
	Recording RecordingConfig `toml:"recording" json:"recording" yaml:"recording"`

	// Hotkey configuration for the interference detector.
	Hotkey HotkeyConfig `toml:"hotkey" json:"hotkey" yaml:"hotkey"`

	// Hook configuration for the input backend.
	Hook HookConfig `toml:"hook" json:"hook" yaml:"hook"`

	// Storage configuration for recordings.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics endpoint configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Notify configuration for desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Schedule lists cron-driven playbacks.
	Schedule []ScheduleEntry `toml:"schedule" json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// PlaybackConfig holds playback defaults.
type PlaybackConfig struct {
	// Repeat is the number of cycles; 0 repeats until stopped.
	Repeat int `toml:"repeat" json:"repeat" yaml:"repeat" env:"MACROREC_PLAYBACK_REPEAT" jsonschema:"minimum=0"`

	// IntervalMs is the pause between cycles in milliseconds.
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms" env:"MACROREC_PLAYBACK_INTERVAL_MS" jsonschema:"minimum=0"`

	// PollSliceMs bounds each wait before an event, and so the latency
	// of a stop request.
	PollSliceMs int `toml:"poll_slice_ms" json:"poll_slice_ms" yaml:"poll_slice_ms" env:"MACROREC_PLAYBACK_POLL_SLICE_MS" jsonschema:"minimum=1"`

	// IntervalSliceMs bounds each wait between cycles.
	IntervalSliceMs int `toml:"interval_slice_ms" json:"interval_slice_ms" yaml:"interval_slice_ms" env:"MACROREC_PLAYBACK_INTERVAL_SLICE_MS" jsonschema:"minimum=1"`

	// StopTimeoutMs bounds how long a stop waits for the player.
	StopTimeoutMs int `toml:"stop_timeout_ms" json:"stop_timeout_ms" yaml:"stop_timeout_ms" env:"MACROREC_PLAYBACK_STOP_TIMEOUT_MS" jsonschema:"minimum=1"`

	// IntervalSec is the version 1 interval in seconds. Migration moves
	// it to IntervalMs.
	IntervalSec float64 `toml:"interval_sec,omitempty" json:"interval_sec,omitempty" yaml:"interval_sec,omitempty" jsonschema:"-"`
}

// Interval returns the pause between cycles.
func (p PlaybackConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// PollSlice returns the playback poll slice.
func (p PlaybackConfig) PollSlice() time.Duration {
	return time.Duration(p.PollSliceMs) * time.Millisecond
}

// IntervalSlice returns the inter-cycle poll slice.
func (p PlaybackConfig) IntervalSlice() time.Duration {
	return time.Duration(p.IntervalSliceMs) * time.Millisecond
}

// StopTimeout returns the stop timeout.
func (p PlaybackConfig) StopTimeout() time.Duration {
	return time.Duration(p.StopTimeoutMs) * time.Millisecond
}

// RecordingConfig holds capture engine settings.
type RecordingConfig struct {
	// DrainTimeoutMs bounds how long stopping waits for queued input.
	DrainTimeoutMs int `toml:"drain_timeout_ms" json:"drain_timeout_ms" yaml:"drain_timeout_ms" env:"MACROREC_RECORDING_DRAIN_TIMEOUT_MS" jsonschema:"minimum=1"`

	// BufferSize is the capacity of the hook-to-recorder queue.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size" env:"MACROREC_RECORDING_BUFFER_SIZE" jsonschema:"minimum=1"`
}

// DrainTimeout returns the drain timeout.
func (r RecordingConfig) DrainTimeout() time.Duration {
	return time.Duration(r.DrainTimeoutMs) * time.Millisecond
}

// HotkeyConfig holds hotkey and interference settings.
type HotkeyConfig struct {
	// Toggle is the key that starts and stops playback.
	Toggle string `toml:"toggle" json:"toggle" yaml:"toggle" env:"MACROREC_HOTKEY_TOGGLE"`

	// Interference stops playback on any real user input.
	Interference bool `toml:"interference" json:"interference" yaml:"interference" env:"MACROREC_HOTKEY_INTERFERENCE"`
}

// HookConfig holds input backend settings.
type HookConfig struct {
	// Backend is "evdev" or "simulated".
	Backend string `toml:"backend" json:"backend" yaml:"backend" env:"MACROREC_HOOK_BACKEND" jsonschema:"enum=evdev,enum=simulated"`

	// Devices lists input device nodes; empty means autodetect.
	Devices []string `toml:"devices" json:"devices" yaml:"devices" env:"MACROREC_HOOK_DEVICES" envSeparator:","`

	// ScreenWidth and ScreenHeight bound pointer positions.
	ScreenWidth  int `toml:"screen_width" json:"screen_width" yaml:"screen_width" env:"MACROREC_HOOK_SCREEN_WIDTH"`
	ScreenHeight int `toml:"screen_height" json:"screen_height" yaml:"screen_height" env:"MACROREC_HOOK_SCREEN_HEIGHT"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// LibraryPath is the SQLite recording library.
	LibraryPath string `toml:"library_path" json:"library_path" yaml:"library_path" env:"MACROREC_LIBRARY_PATH"`

	// RecordingsDir is where relative recording paths resolve.
	RecordingsDir string `toml:"recordings_dir" json:"recordings_dir" yaml:"recordings_dir" env:"MACROREC_RECORDINGS_DIR"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level" env:"MACROREC_LOG_LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// Format is the output format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format" env:"MACROREC_LOG_FORMAT" jsonschema:"enum=text,enum=json"`

	// Output is "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output" env:"MACROREC_LOG_OUTPUT" jsonschema:"enum=stdout,enum=stderr,enum=file,enum=both"`

	// FilePath is the log file path.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path" env:"MACROREC_LOG_PATH"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to retain.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// AddSource adds file and line to every record.
	AddSource bool `toml:"add_source" json:"add_source" yaml:"add_source"`
}

// LoggerConfig converts the section to a logging configuration.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = l.Output
	cfg.FilePath = l.FilePath
	cfg.MaxSize = int64(l.MaxSizeMB)
	cfg.MaxBackups = l.MaxBackups
	cfg.AddSource = l.AddSource
	return cfg, nil
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled" env:"MACROREC_METRICS_ENABLED"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen" env:"MACROREC_METRICS_LISTEN"`
}

// NotifyConfig holds desktop notification settings.
type NotifyConfig struct {
	// Enabled sends a notification when user input stops playback.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled" env:"MACROREC_NOTIFY_ENABLED"`
}

// ScheduleEntry is one cron-driven playback.
type ScheduleEntry struct {
	Name string `toml:"name" json:"name" yaml:"name"`

	// Cron is a cron expression; a leading seconds field is optional.
	Cron string `toml:"cron" json:"cron" yaml:"cron"`

	// Recording is a .rec path or a library id or name.
	Recording string `toml:"recording" json:"recording" yaml:"recording"`

	Repeat     int `toml:"repeat" json:"repeat" yaml:"repeat" jsonschema:"minimum=0"`
	IntervalMs int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms" jsonschema:"minimum=0"`
}

// Interval returns the pause between cycles.
func (s ScheduleEntry) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Playback: PlaybackConfig{
			Repeat:          1,
			IntervalMs:      1000,
			PollSliceMs:     10,
			IntervalSliceMs: 50,
			StopTimeoutMs:   1000,
		},
		Recording: RecordingConfig{
			DrainTimeoutMs: 100,
			BufferSize:     4096,
		},
		Hotkey: HotkeyConfig{
			Toggle:       "f8",
			Interference: true,
		},
		Hook: HookConfig{
			Backend:      "evdev",
			Devices:      []string{},
			ScreenWidth:  1920,
			ScreenHeight: 1080,
		},
		Storage: StorageConfig{
			LibraryPath:   filepath.Join(dir, "library.db"),
			RecordingsDir: filepath.Join(dir, "recordings"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "macrorec.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
	}
}

// ConfigPath returns the configuration file to use when none is given:
// an existing file found by FindConfigFile, or config.toml in DataDir.
func ConfigPath() string {
	if found := FindConfigFile(); found != "" {
		return found
	}
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the base macrorec directory. MACROREC_DATA_DIR
// overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv(EnvPrefix + "DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from path, returning defaults when the file
// does not exist. It applies environment overrides and migrations but
// does not validate; use a Loader for the full pipeline.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if cfg.Version < Version {
		if _, err := MigrateConfig(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dirs := []string{
		filepath.Dir(c.Storage.LibraryPath),
		c.Storage.RecordingsDir,
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies MACROREC_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{}
	if err := copier.CopyWithOption(clone, c, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which a Config copy
		// cannot produce.
		panic(fmt.Sprintf("config: clone: %v", err))
	}
	return clone
}

// ResolveRecording resolves a relative recording path against
// RecordingsDir when the path does not exist as given.
func (c *Config) ResolveRecording(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	c.mu.RLock()
	dir := c.Storage.RecordingsDir
	c.mu.RUnlock()
	if dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
