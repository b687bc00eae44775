package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"macrorec/internal/logging"
)

// debounceDelay coalesces the bursts of events editors produce on save.
const debounceDelay = 100 * time.Millisecond

// Loader owns the active configuration of a long-running command. It
// reloads the file when it changes on disk and hands every valid
// revision to the OnChange callbacks.
type Loader struct {
	path string
	log  *slog.Logger

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)
	watcher   *fsnotify.Watcher
	stopped   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	errs   chan error
}

// NewLoader returns a Loader for path, or for ConfigPath() when path is
// empty.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	if logger == nil {
		logger = logging.Default().WithComponent("config")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:   path,
		log:    logger,
		errs:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Path is the file the Loader reads.
func (l *Loader) Path() string { return l.path }

// Load reads the .env file next to the configuration, then the
// configuration itself, applies environment overrides and migrations,
// and validates the result.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := LoadDotEnv(filepath.Dir(l.path)); err != nil {
		return nil, err
	}
	cfg, err := l.readValid()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return cfg, nil
}

func (l *Loader) readValid() (*Config, error) {
	cfg, err := Load(l.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Config is the most recent valid configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch reloads the configuration whenever its file is written or
// replaced. A file that fails to load or validate is reported on Errors
// and the previous configuration stays in effect.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	// Editors save by renaming over the file, so the directory is watched.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}

	stopped := make(chan struct{})
	l.mu.Lock()
	l.watcher = w
	l.stopped = stopped
	l.mu.Unlock()

	go l.watch(w, stopped)
	return nil
}

func (l *Loader) watch(w *fsnotify.Watcher, stopped chan struct{}) {
	defer close(stopped)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	name := filepath.Base(l.path)
	for {
		select {
		case <-l.ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceDelay, l.reload)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) report(err error) {
	l.log.Warn("config reload failed", "path", l.path, "error", err)
	select {
	case l.errs <- err:
	default:
	}
}

func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}
	cfg, err := l.readValid()
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.current = cfg
	listeners := append([]func(*Config){}, l.listeners...)
	l.mu.Unlock()

	l.log.Info("config reloaded", "path", l.path)
	for _, fn := range listeners {
		fn(cfg)
	}
}

// OnChange adds fn to the callbacks run after each successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Errors delivers reload failures. Failures are dropped while a
// previous one is still unread.
func (l *Loader) Errors() <-chan error { return l.errs }

// Close stops watching. It is safe to call when Watch was never called.
func (l *Loader) Close() error {
	l.cancel()
	l.mu.Lock()
	w, stopped := l.watcher, l.stopped
	l.watcher = nil
	l.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-stopped
	return err
}

// LoadDotEnv loads dir/.env into the environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

type decodeFunc func(data []byte, cfg *Config) error

var decoders = map[string]decodeFunc{
	".toml": func(data []byte, cfg *Config) error { return toml.Unmarshal(data, cfg) },
	".json": func(data []byte, cfg *Config) error { return json.Unmarshal(data, cfg) },
	".yaml": func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
	".yml":  func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
}

// loadConfigFromFile decodes path over the defaults, choosing the format
// from the extension. A missing file yields the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return sniffFormat(data)
	}
	cfg := DefaultConfig()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", strings.ToUpper(ext[1:]), err)
	}
	return cfg, nil
}

// sniffFormat tries TOML, JSON and YAML in turn for files without a
// known extension.
func sniffFormat(data []byte) (*Config, error) {
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		cfg := DefaultConfig()
		if decoders[ext](data, cfg) == nil {
			return cfg, nil
		}
	}
	return nil, errors.New("parse config: not TOML, JSON or YAML")
}

// LoadOrCreate loads path, first writing the default configuration there
// if the file does not exist. The boolean reports whether it was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("write default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := NewLoader(path, nil).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
