package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("MACROREC_DATA_DIR", "/data/macrorec")
	cfg := DefaultConfig()

	if cfg.Playback.Repeat != 1 {
		t.Errorf("expected repeat 1, got %d", cfg.Playback.Repeat)
	}
	if cfg.Playback.Interval() != time.Second {
		t.Errorf("expected interval 1s, got %v", cfg.Playback.Interval())
	}
	if cfg.Playback.PollSlice() != 10*time.Millisecond {
		t.Errorf("expected poll slice 10ms, got %v", cfg.Playback.PollSlice())
	}
	if cfg.Playback.StopTimeout() != time.Second {
		t.Errorf("expected stop timeout 1s, got %v", cfg.Playback.StopTimeout())
	}
	if cfg.Recording.DrainTimeout() != 100*time.Millisecond {
		t.Errorf("expected drain timeout 100ms, got %v", cfg.Recording.DrainTimeout())
	}
	if cfg.Hotkey.Toggle != "f8" || !cfg.Hotkey.Interference {
		t.Errorf("unexpected hotkey defaults: %+v", cfg.Hotkey)
	}
	if cfg.Storage.LibraryPath != filepath.Join("/data/macrorec", "library.db") {
		t.Errorf("unexpected library path: %s", cfg.Storage.LibraryPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MACROREC_DATA_DIR", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(t.TempDir())

	if got := ConfigPath(); got != filepath.Join(dir, "config.toml") {
		t.Errorf("unexpected config path %s", got)
	}

	if err := os.MkdirAll(filepath.Join(dir, "xdg", "macrorec"), 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "xdg", "macrorec", "config.json"), "{}")
	if got := ConfigPath(); got != filepath.Join(dir, "xdg", "macrorec", "config.json") {
		t.Errorf("expected the existing file, got %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Playback.Repeat != 1 {
		t.Errorf("expected defaults, got repeat %d", cfg.Playback.Repeat)
	}
}

func TestLoadValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, configPath, `
version = 2

[playback]
repeat = 0
interval_ms = 250

[hotkey]
toggle = "f9"
interference = false

[hook]
backend = "simulated"
devices = ["/dev/input/event3", "/dev/input/event5"]

[[schedule]]
name = "morning"
cron = "0 9 * * 1-5"
recording = "standup.rec"
repeat = 2
interval_ms = 500
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Playback.Repeat != 0 {
		t.Errorf("expected repeat 0, got %d", cfg.Playback.Repeat)
	}
	if cfg.Playback.Interval() != 250*time.Millisecond {
		t.Errorf("expected interval 250ms, got %v", cfg.Playback.Interval())
	}
	if cfg.Playback.PollSliceMs != 10 {
		t.Errorf("unset fields should keep defaults, got poll slice %d", cfg.Playback.PollSliceMs)
	}
	if cfg.Hotkey.Toggle != "f9" || cfg.Hotkey.Interference {
		t.Errorf("unexpected hotkey: %+v", cfg.Hotkey)
	}
	if len(cfg.Hook.Devices) != 2 || cfg.Hook.Devices[1] != "/dev/input/event5" {
		t.Errorf("unexpected devices: %v", cfg.Hook.Devices)
	}
	if len(cfg.Schedule) != 1 {
		t.Fatalf("expected 1 schedule entry, got %d", len(cfg.Schedule))
	}
	if e := cfg.Schedule[0]; e.Name != "morning" || e.Repeat != 2 || e.Interval() != 500*time.Millisecond {
		t.Errorf("unexpected schedule entry: %+v", e)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should be valid: %v", err)
	}
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"config.json": `{"playback": {"repeat": 4}}`,
		"config.yaml": "playback:\n  repeat: 4\n",
		"config.yml":  "playback:\n  repeat: 4\n",
		"config.conf": "[playback]\nrepeat = 4\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			writeFile(t, path, content)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Playback.Repeat != 4 {
				t.Errorf("expected repeat 4, got %d", cfg.Playback.Repeat)
			}
			if cfg.Playback.IntervalMs != 1000 {
				t.Errorf("expected default interval, got %d", cfg.Playback.IntervalMs)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, configPath, "this is not valid toml {{{\n")

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MACROREC_LOG_LEVEL", "debug")
	t.Setenv("MACROREC_HOOK_BACKEND", "simulated")
	t.Setenv("MACROREC_HOOK_DEVICES", "/dev/input/event1,/dev/input/event2")
	t.Setenv("MACROREC_LIBRARY_PATH", "/srv/macros.db")
	t.Setenv("MACROREC_PLAYBACK_REPEAT", "5")
	t.Setenv("MACROREC_PLAYBACK_INTERVAL_MS", "20")
	t.Setenv("MACROREC_METRICS_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Hook.Backend != "simulated" {
		t.Errorf("expected backend simulated, got %s", cfg.Hook.Backend)
	}
	if len(cfg.Hook.Devices) != 2 {
		t.Errorf("expected 2 devices, got %v", cfg.Hook.Devices)
	}
	if cfg.Storage.LibraryPath != "/srv/macros.db" {
		t.Errorf("unexpected library path %s", cfg.Storage.LibraryPath)
	}
	if cfg.Playback.Repeat != 5 || cfg.Playback.IntervalMs != 20 {
		t.Errorf("unexpected playback %+v", cfg.Playback)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled")
	}
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("MACROREC_PLAYBACK_REPEAT", "many")
	if _, err := Load(filepath.Join(t.TempDir(), "config.toml")); err == nil {
		t.Error("expected error for non-numeric override")
	}
}

func TestLoaderReadsDotEnv(t *testing.T) {
	const key = "MACROREC_HOTKEY_TOGGLE"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), key+"=f10\n")

	cfg, err := NewLoader(filepath.Join(dir, "config.toml"), nil).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hotkey.Toggle != "f10" {
		t.Errorf("expected toggle from .env, got %s", cfg.Hotkey.Toggle)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Playback.Repeat = -1
	cfg.Playback.PollSliceMs = 0
	cfg.Hotkey.Toggle = "hyper"
	cfg.Hook.Backend = "x11"
	cfg.Hook.Devices = []string{"event3"}
	cfg.Logging.Level = "loud"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = "nope"
	cfg.Schedule = []ScheduleEntry{
		{Name: "a", Cron: "not cron", Recording: "a.rec"},
		{Name: "a", Cron: "@hourly"},
	}

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a *ValidationError in %v", err)
	}

	for _, field := range []string{
		"playback.repeat",
		"playback.poll_slice_ms",
		"hotkey.toggle",
		"hook.backend",
		"hook.devices[0]",
		"logging.level",
		"metrics.listen",
		"schedule[0].cron",
		"schedule[1].name",
		"schedule[1].recording",
	} {
		if !strings.Contains(err.Error(), "config: "+field+":") {
			t.Errorf("missing problem for %s in:\n%v", field, err)
		}
	}
}

func TestValidateCronForms(t *testing.T) {
	for _, expr := range []string{"0 9 * * 1-5", "30 0 9 * * *", "@every 1h30m", "@daily"} {
		cfg := DefaultConfig()
		cfg.Schedule = []ScheduleEntry{{Name: "s", Cron: expr, Recording: "x.rec"}}
		if err := cfg.Validate(); err != nil {
			t.Errorf("cron %q should be valid: %v", expr, err)
		}
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hook.Devices = []string{"/dev/input/event3"}
	cfg.Schedule = []ScheduleEntry{{Name: "s", Cron: "@daily", Recording: "x.rec"}}

	clone := cfg.Clone()
	clone.Hook.Devices[0] = "/dev/input/event9"
	clone.Schedule[0].Name = "changed"
	clone.Playback.Repeat = 9

	if cfg.Hook.Devices[0] != "/dev/input/event3" {
		t.Error("clone shares the devices slice")
	}
	if cfg.Schedule[0].Name != "s" {
		t.Error("clone shares the schedule slice")
	}
	if cfg.Playback.Repeat != 1 {
		t.Error("clone shares playback settings")
	}
	if clone.Hotkey != cfg.Hotkey {
		t.Error("clone lost hotkey settings")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Playback.Repeat = 3
	cfg.Hook.Devices = []string{"/dev/input/event4"}
	cfg.Schedule = []ScheduleEntry{{Name: "s", Cron: "@daily", Recording: "x.rec", Repeat: 2}}

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "nested", name)
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Playback.Repeat != 3 {
				t.Errorf("expected repeat 3, got %d", loaded.Playback.Repeat)
			}
			if len(loaded.Hook.Devices) != 1 || loaded.Hook.Devices[0] != "/dev/input/event4" {
				t.Errorf("unexpected devices %v", loaded.Hook.Devices)
			}
			if len(loaded.Schedule) != 1 || loaded.Schedule[0].Repeat != 2 {
				t.Errorf("unexpected schedule %+v", loaded.Schedule)
			}
		})
	}
}

func TestMigrateV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "version = 1\n\n[playback]\ninterval_sec = 1.5\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Playback.IntervalMs != 1500 {
		t.Errorf("expected interval 1500ms, got %d", cfg.Playback.IntervalMs)
	}

	result, err := MigrateFile(path)
	if err != nil {
		t.Fatalf("MigrateFile failed: %v", err)
	}
	if result == nil || result.Backup == "" || len(result.Changes) != 1 {
		t.Fatalf("unexpected migration result %+v", result)
	}
	if _, err := os.Stat(result.Backup); err != nil {
		t.Errorf("backup missing: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "interval_sec") {
		t.Errorf("migrated file still has interval_sec:\n%s", data)
	}

	again, err := MigrateFile(path)
	if err != nil || again != nil {
		t.Errorf("second migration should be a no-op, got %+v, %v", again, err)
	}
}

func TestMigrateInvalidInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 1
	cfg.Playback.IntervalSec = -2
	result, err := MigrateConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected a warning, got %+v", result)
	}
	if cfg.Playback.IntervalMs != 1000 {
		t.Errorf("interval should keep its default, got %d", cfg.Playback.IntervalMs)
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[playback]\nrepeat = 1\n")

	loader := NewLoader(path, nil)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	changed := make(chan *Config, 4)
	loader.OnChange(func(c *Config) { changed <- c })
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer loader.Close()

	writeFile(t, path, "[playback]\nrepeat = 6\n")
	select {
	case c := <-changed:
		if c.Playback.Repeat != 6 {
			t.Errorf("expected repeat 6, got %d", c.Playback.Repeat)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after file change")
	}
	if loader.Config().Playback.Repeat != 6 {
		t.Errorf("loader config not updated")
	}

	writeFile(t, path, "[playback]\nrepeat = -3\n")
	select {
	case err := <-loader.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected validation error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no error for invalid config")
	}
	if loader.Config().Playback.Repeat != 6 {
		t.Errorf("invalid config should not replace the current one")
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	if cfg.Playback.Repeat != 1 {
		t.Errorf("expected defaults")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil || created {
		t.Errorf("expected existing file to load, got created=%v err=%v", created, err)
	}
}

func TestResolveRecording(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.RecordingsDir = dir

	if got := cfg.ResolveRecording("missing.rec"); got != filepath.Join(dir, "missing.rec") {
		t.Errorf("unexpected resolution %s", got)
	}
	if got := cfg.ResolveRecording("/abs/x.rec"); got != "/abs/x.rec" {
		t.Errorf("absolute paths must be kept, got %s", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.LibraryPath = filepath.Join(dir, "db", "library.db")
	cfg.Storage.RecordingsDir = filepath.Join(dir, "recordings")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, sub := range []string{"db", "recordings"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", sub)
		}
	}
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON failed: %v", err)
	}
	var doc struct {
		Properties map[string]struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	for _, section := range []string{"playback", "recording", "hotkey", "hook", "storage", "logging", "metrics", "notify", "schedule"} {
		if _, ok := doc.Properties[section]; !ok {
			t.Errorf("schema missing section %s", section)
		}
	}
	if _, ok := doc.Properties["playback"].Properties["interval_ms"]; !ok {
		t.Error("schema missing playback.interval_ms")
	}
	if _, ok := doc.Properties["playback"].Properties["interval_sec"]; ok {
		t.Error("schema exposes the legacy interval_sec")
	}
	if len(doc.Required) != 0 {
		t.Errorf("no field should be required, got %v", doc.Required)
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MACROREC_DATA_DIR", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(t.TempDir())

	if got := FindConfigFile(); got != "" {
		t.Errorf("expected no config file, got %s", got)
	}
	writeFile(t, filepath.Join(dir, "config.yaml"), "version: 2\n")
	if got := FindConfigFile(); got != filepath.Join(dir, "config.yaml") {
		t.Errorf("unexpected config file %s", got)
	}
}
