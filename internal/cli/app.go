package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"macrorec/internal/config"
	"macrorec/internal/engine"
	"macrorec/internal/health"
	"macrorec/internal/hook"
	"macrorec/internal/interference"
	"macrorec/internal/library"
	"macrorec/internal/logging"
	"macrorec/internal/macro"
	"macrorec/internal/metrics"
	"macrorec/internal/notify"
	"macrorec/internal/recfile"
)

// app holds what a command needs: configuration, logging, metrics and,
// on demand, the input backend and the recording library.
type app struct {
	opts   *RootOptions
	loader *config.Loader
	cfg    *config.Config
	logger *logging.Logger
	log    *slog.Logger

	registry *metrics.Registry
	metrics  *metrics.Metrics

	provider     hook.Provider
	ownsProvider bool
	lib          *library.Library
}

func newApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.ConfigPath()
	}

	// Logging is configured from the file before the full load so the
	// loader itself logs through it.
	if err := config.LoadDotEnv(filepath.Dir(path)); err != nil {
		return nil, WrapExitError(ExitCommandError, "load .env", err)
	}
	boot, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	logger, err := newLogger(cmd, boot.Logging, opts.LogLevel)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}
	logging.SetDefault(logger)

	loader := config.NewLoader(path, logger.WithComponent("config"))
	cfg, err := loader.Load()
	if err != nil {
		logger.Close()
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Backend != "" {
		cfg = cfg.Clone()
		cfg.Hook.Backend = opts.Backend
	}

	registry := metrics.NewRegistry("macrorec")
	return &app{
		opts:     opts,
		loader:   loader,
		cfg:      cfg,
		logger:   logger,
		log:      logger.Logger,
		registry: registry,
		metrics:  metrics.New(registry),
	}, nil
}

func newLogger(cmd *cobra.Command, section config.LoggingConfig, level string) (*logging.Logger, error) {
	lc, err := section.LoggerConfig()
	if err != nil {
		lc = logging.DefaultConfig()
	}
	if level != "" {
		if lc.Level, err = logging.ParseLevel(level); err != nil {
			return nil, err
		}
	}
	if lc.Output == "stderr" {
		lc.Writer = cmd.ErrOrStderr()
	}
	return logging.New(lc)
}

// Close releases the backend, the library and the log file.
func (a *app) Close() {
	if a.lib != nil {
		if err := a.lib.Close(); err != nil {
			a.log.Error("error closing library", "error", err)
		}
	}
	if a.provider != nil && a.ownsProvider {
		if err := a.provider.Close(); err != nil {
			a.log.Error("error closing input backend", "error", err)
		}
	}
	a.loader.Close()
	a.logger.Close()
}

// inputProvider opens the configured input backend once.
func (a *app) inputProvider() (hook.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	if a.opts.Provider != nil {
		a.provider = a.opts.Provider
		return a.provider, nil
	}
	p, err := hook.New(hook.Options{
		Backend:      a.cfg.Hook.Backend,
		Devices:      a.cfg.Hook.Devices,
		ScreenWidth:  a.cfg.Hook.ScreenWidth,
		ScreenHeight: a.cfg.Hook.ScreenHeight,
		Logger:       a.logger.WithComponent("hook"),
	})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open input backend", err)
	}
	a.provider = p
	a.ownsProvider = true
	return p, nil
}

// newSession creates a session over the input backend with the
// configured timings.
func (a *app) newSession() (*engine.Session, error) {
	p, err := a.inputProvider()
	if err != nil {
		return nil, err
	}
	return engine.NewWithProvider(p, engine.Options{
		Logger:        a.log,
		Metrics:       a.metrics,
		PollSlice:     a.cfg.Playback.PollSlice(),
		IntervalSlice: a.cfg.Playback.IntervalSlice(),
		StopTimeout:   a.cfg.Playback.StopTimeout(),
		DrainTimeout:  a.cfg.Recording.DrainTimeout(),
		BufferSize:    a.cfg.Recording.BufferSize,
	}), nil
}

// library opens the recording library once.
func (a *app) library() (*library.Library, error) {
	if a.lib != nil {
		return a.lib, nil
	}
	lib, err := library.Open(a.cfg.Storage.LibraryPath, a.logger.WithComponent("library"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open library", err)
	}
	a.lib = lib
	return lib, nil
}

// source is a loaded recording and, for library references, its entry.
type source struct {
	Label  string
	Events []macro.Event
	Entry  *library.Recording
}

// resolve loads ref as a recording file when one exists, and as a
// library id or name otherwise.
func (a *app) resolve(ctx context.Context, ref string) (source, error) {
	path := a.cfg.ResolveRecording(ref)
	if _, err := os.Stat(path); err == nil || isRecordingPath(ref) {
		events, err := recfile.Load(path)
		if err != nil {
			return source{}, err
		}
		return source{Label: path, Events: events}, nil
	}

	lib, err := a.library()
	if err != nil {
		return source{}, err
	}
	rec, events, err := lib.Get(ctx, ref)
	if err != nil {
		return source{}, err
	}
	return source{Label: fmt.Sprintf("%s (%s)", rec.Name, rec.ID), Events: events, Entry: &rec}, nil
}

// loadEvents adapts resolve to scheduler.Resolver.
func (a *app) loadEvents(ctx context.Context, ref string) ([]macro.Event, error) {
	src, err := a.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return src.Events, nil
}

func isRecordingPath(ref string) bool {
	switch filepath.Ext(ref) {
	case recfile.Ext, ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// markPlayed records a playback of a library entry.
func (a *app) markPlayed(ctx context.Context, src source) {
	if src.Entry == nil || a.lib == nil {
		return
	}
	if err := a.lib.MarkPlayed(ctx, src.Entry.ID); err != nil {
		a.log.Warn("failed to update play count", "id", src.Entry.ID, "error", err)
	}
}

func (a *app) notifier() notify.Notifier {
	return notify.New(a.cfg.Notify.Enabled, a.logger.WithComponent("notify"))
}

// newDetector creates the hotkey and interference detector for ctrl.
func (a *app) newDetector(ctrl interference.Controller, n notify.Notifier, disable bool) (*interference.Detector, error) {
	d, err := interference.New(ctrl, interference.Options{
		Hotkey:   a.cfg.Hotkey.Toggle,
		Disabled: disable || !a.cfg.Hotkey.Interference,
		OnInterference: func(in hook.Input) {
			if err := n.Notify("Playback stopped", "User input interrupted the macro."); err != nil {
				a.log.Debug("notification failed", "error", err)
			}
		},
		Logger:  a.logger.WithComponent("interference"),
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure hotkey", err)
	}
	return d, nil
}

// healthChecker checks the hotkey hook and, when open, the library.
func (a *app) healthChecker(d *interference.Detector) *health.Checker {
	checker := health.NewChecker()
	checker.Register("input", true, func(context.Context) error {
		if !d.Running() {
			return errors.New("input hook not installed")
		}
		return nil
	})
	if a.lib != nil {
		checker.Register("library", false, a.lib.Ping)
	}
	return checker
}

// serveMetrics exposes the registry and /healthz until ctx is done, when
// enabled.
func (a *app) serveMetrics(ctx context.Context, d *interference.Detector) {
	if !a.cfg.Metrics.Enabled {
		return
	}
	listen := a.cfg.Metrics.Listen
	route := metrics.Route{Pattern: "/healthz", Handler: a.healthChecker(d).Handler()}
	go func() {
		a.log.Info("serving metrics", "listen", listen)
		if err := a.registry.Serve(ctx, listen, route); err != nil {
			a.log.Warn("metrics server stopped", "error", err)
		}
	}()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// playbackError maps engine errors to exit codes.
func playbackError(err error) error {
	switch {
	case errors.Is(err, engine.ErrEmptyLog):
		return WrapExitError(ExitCommandError, "nothing to play", err)
	case errors.Is(err, engine.ErrInvalidState):
		return WrapExitError(ExitFailure, "session busy", err)
	default:
		return WrapExitError(ExitFailure, "playback failed", err)
	}
}

// watchConfig applies reloads through apply and reports files that failed
// to reload on w, until ctx is done.
func (a *app) watchConfig(ctx context.Context, w io.Writer, apply func(*config.Config)) {
	a.loader.OnChange(apply)
	if err := a.loader.Watch(); err != nil {
		a.log.Warn("config changes will not be applied", "error", err)
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-a.loader.Errors():
				fmt.Fprintf(w, "Config not reloaded: %v\n", err)
			}
		}
	}()
}
