package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"macrorec/internal/config"
	"macrorec/internal/engine"
	"macrorec/internal/interference"
	"macrorec/internal/macro"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StatusInterval time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <file|ref>",
		Short: "Wait for the hotkey and play a recording on demand",
		Long: `Load a recording and wait. The toggle hotkey starts playback with the
configured repeat and interval, and stops it when pressed again. Real user
input during playback stops it too.

Changes to the configuration file (playback, hotkey, interference) apply
without a restart. With [metrics] enabled the metrics endpoint is served.

Example:
  macrorec run login.rec
  macrorec run login --log-level debug`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts, args[0])
		},
	}

	cmd.Flags().DurationVar(&opts.StatusInterval, "status-interval", 250*time.Millisecond, "how often to check for status changes")

	return cmd
}

func runDaemon(cmd *cobra.Command, opts *RunOptions, ref string) error {
	if opts.StatusInterval <= 0 {
		return NewExitError(ExitCommandError, "--status-interval must be positive")
	}

	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	src, err := a.resolve(ctx, ref)
	if err != nil {
		return WrapExitError(ExitCommandError, "load recording", err)
	}
	session, err := a.newSession()
	if err != nil {
		return err
	}
	if err := session.Load(src.Events); err != nil {
		return playbackError(err)
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	session.OnFinish(func(res engine.Result) {
		fmt.Fprintf(out, "Playback %s after %d cycles: %d performed, %d failed, %d skipped\n",
			res.Reason, res.Cycles, res.Performed, res.Failed, res.Skipped)
		a.markPlayed(context.WithoutCancel(ctx), src)
	})

	n := a.notifier()
	defer n.Close()
	ctrl := engine.NewController(ctx, session, a.cfg.Playback.Repeat, a.cfg.Playback.Interval())
	detector, err := a.newDetector(ctrl, n, false)
	if err != nil {
		return err
	}
	if err := detector.Start(a.provider); err != nil {
		return WrapExitError(ExitFailure, "install hotkey hook", err)
	}
	defer detector.Stop()
	a.serveMetrics(ctx, detector)

	a.watchConfig(ctx, out, func(c *config.Config) {
		ctrl.SetPlayback(c.Playback.Repeat, c.Playback.Interval())
		applyHotkey(a, detector, c)
	})

	fmt.Fprintf(out, "Loaded %s: %d events. Press %s to start or stop playback, Ctrl-C to exit.\n",
		src.Label, len(src.Events), hotkeyLabel(detector.Hotkey()))
	watchStatus(ctx, out, session, opts.StatusInterval)

	session.StopPlay()
	return nil
}

// applyHotkey applies the hotkey section of a reloaded configuration.
func applyHotkey(a *app, d *interference.Detector, c *config.Config) {
	if err := d.SetHotkey(c.Hotkey.Toggle); err != nil {
		a.log.Warn("hotkey not changed", "hotkey", c.Hotkey.Toggle, "error", err)
	}
	d.SetEnabled(c.Hotkey.Interference)
}

func hotkeyLabel(k macro.KeyToken) string {
	if k.IsChar() {
		return string(k.Char())
	}
	return strings.ToUpper(k.Name())
}

// watchStatus prints the session state and event count whenever the
// state changes, until ctx is done.
func watchStatus(ctx context.Context, w io.Writer, s *engine.Session, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := engine.State(-1)
	for {
		if st := s.State(); st != last {
			fmt.Fprintf(w, "Status: %s (%d events)\n", st, s.Len())
			last = st
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
