// Package interference watches real user input while a macro plays.
//
// The detector installs its own global hook. A press of the toggle hotkey
// starts or stops playback; any other input that arrives while playback
// is running, and that the player did not inject itself, stops playback.
// Hook callbacks never block: every control action runs on its own
// goroutine.
package interference

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"macrorec/internal/hook"
	"macrorec/internal/logging"
	"macrorec/internal/macro"
	"macrorec/internal/metrics"
)

// DefaultHotkey toggles playback.
const DefaultHotkey = "f8"

// ErrAlreadyRunning is returned by Start when the detector is installed.
var ErrAlreadyRunning = errors.New("interference detector already running")

// Controller is the playback surface the detector drives.
type Controller interface {
	IsPlaying() bool
	IsSuppressed() bool
	StopPlay()
	TogglePlay()
}

// Options configures a Detector.
type Options struct {
	// Hotkey is the toggle key ("f8", "a"); empty means DefaultHotkey.
	Hotkey string
	// Disabled turns off interference stops, leaving only the hotkey.
	Disabled bool
	// OnInterference runs after a stop caused by user input.
	OnInterference func(in hook.Input)
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Detector turns hook input into playback control.
type Detector struct {
	ctrl    Controller
	log     *slog.Logger
	metrics *metrics.Metrics
	onStop  func(hook.Input)

	hotkey   atomic.Pointer[macro.KeyToken]
	disabled atomic.Bool

	// held is set between hotkey down and up so autorepeat does not
	// toggle again.
	held    atomic.Bool
	pending atomic.Bool
	stops   atomic.Uint64

	mu   sync.Mutex
	hook hook.Hook
	wg   sync.WaitGroup
}

// New creates a detector for ctrl.
func New(ctrl Controller, opts Options) (*Detector, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Default().WithComponent("interference")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	d := &Detector{
		ctrl:    ctrl,
		log:     opts.Logger,
		metrics: opts.Metrics,
		onStop:  opts.OnInterference,
	}
	if err := d.SetHotkey(opts.Hotkey); err != nil {
		return nil, err
	}
	d.disabled.Store(opts.Disabled)
	return d, nil
}

// ParseHotkey parses a hotkey. A single character is a character key;
// anything else ("f8", "Key.f8") must be a key name the hook layer knows.
func ParseHotkey(name string) (macro.KeyToken, error) {
	if name == "" {
		name = DefaultHotkey
	}
	if r, size := utf8.DecodeRuneInString(name); size == len(name) && r != utf8.RuneError {
		return macro.CharKey(r), nil
	}
	if tok, err := macro.ParseKeyToken(name); err == nil {
		if tok.IsChar() {
			return tok, nil
		}
		name = tok.Name()
	}
	name = strings.ToLower(name)
	if _, ok := hook.KeyCode(name); !ok {
		return macro.KeyToken{}, fmt.Errorf("hotkey %q: %w", name, hook.ErrUnmappedKey)
	}
	return macro.NamedKey(name), nil
}

// SetHotkey changes the toggle key.
func (d *Detector) SetHotkey(name string) error {
	tok, err := ParseHotkey(name)
	if err != nil {
		return err
	}
	d.hotkey.Store(&tok)
	d.held.Store(false)
	return nil
}

// Hotkey returns the toggle key.
func (d *Detector) Hotkey() macro.KeyToken {
	return *d.hotkey.Load()
}

// SetEnabled turns interference stops on or off.
func (d *Detector) SetEnabled(enabled bool) {
	d.disabled.Store(!enabled)
}

// Stops returns how many playbacks user input has stopped.
func (d *Detector) Stops() uint64 {
	return d.stops.Load()
}

// Start installs the detector's hook on src.
func (d *Detector) Start(src hook.Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hook != nil {
		return ErrAlreadyRunning
	}
	h, err := src.Install(d.Handle)
	if err != nil {
		return fmt.Errorf("install interference hook: %w", err)
	}
	d.hook = h
	d.log.Debug("interference detector started",
		"hotkey", d.Hotkey().String(),
		"enabled", !d.disabled.Load(),
	)
	return nil
}

// Running reports whether the hook is installed.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hook != nil
}

// Stop uninstalls the hook and waits for dispatched actions to finish.
func (d *Detector) Stop() error {
	d.mu.Lock()
	h := d.hook
	d.hook = nil
	d.mu.Unlock()

	var err error
	if h != nil {
		err = h.Uninstall()
	}
	d.wg.Wait()
	return err
}

// Handle is the hook sink. It never blocks.
func (d *Detector) Handle(in hook.Input) {
	// The hotkey is honored even inside an injection window.
	if d.isHotkey(in) {
		if in.Kind == hook.InputKeyUp {
			d.held.Store(false)
			return
		}
		if d.held.Swap(true) {
			return
		}
		d.dispatch(func() {
			d.log.Debug("hotkey toggle")
			d.ctrl.TogglePlay()
		})
		return
	}

	// Input the player injected itself.
	if d.ctrl.IsSuppressed() {
		return
	}
	if d.disabled.Load() || !d.ctrl.IsPlaying() {
		return
	}
	if !d.pending.CompareAndSwap(false, true) {
		return
	}
	d.dispatch(func() {
		defer d.pending.Store(false)
		if !d.ctrl.IsPlaying() {
			return
		}
		d.ctrl.StopPlay()
		d.stops.Add(1)
		d.metrics.InterferenceStops.Inc()
		d.log.Info("playback interrupted by user input", "input", in.Kind.String())
		if d.onStop != nil {
			d.onStop(in)
		}
	})
}

func (d *Detector) isHotkey(in hook.Input) bool {
	if !in.IsKey() {
		return false
	}
	tok, ok := macro.TokenFor(in.Char, in.Name)
	return ok && tok == d.Hotkey()
}

func (d *Detector) dispatch(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}
