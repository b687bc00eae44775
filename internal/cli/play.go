package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"macrorec/internal/engine"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Repeat         int
	Interval       time.Duration
	NoInterference bool
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <file|ref>",
		Short: "Replay a recording",
		Long: `Replay a recording file or a library entry (id or name).

Playback stops when it completes, on Ctrl-C, when the toggle hotkey is
pressed, or when real user input interferes with it. --repeat 0 repeats
until stopped.

Example:
  macrorec play login.rec
  macrorec play login --repeat 0 --interval 2s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Repeat, "repeat", "r", 1, "number of cycles, 0 repeats until stopped (default from config)")
	cmd.Flags().DurationVarP(&opts.Interval, "interval", "i", time.Second, "pause between cycles (default from config)")
	cmd.Flags().BoolVar(&opts.NoInterference, "no-interference", false, "do not stop playback on user input")

	return cmd
}

func runPlay(cmd *cobra.Command, opts *PlayOptions, ref string) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	repeat, interval := a.cfg.Playback.Repeat, a.cfg.Playback.Interval()
	if cmd.Flags().Changed("repeat") {
		repeat = opts.Repeat
	}
	if cmd.Flags().Changed("interval") {
		interval = opts.Interval
	}
	if repeat < 0 || interval < 0 {
		return NewExitError(ExitCommandError, "--repeat and --interval must not be negative")
	}

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

	n := a.notifier()
	defer n.Close()
	ctrl := engine.NewController(ctx, session, repeat, interval)
	detector, err := a.newDetector(ctrl, n, opts.NoInterference)
	if err != nil {
		return err
	}
	if err := detector.Start(a.provider); err != nil {
		return WrapExitError(ExitFailure, "install hotkey hook", err)
	}
	defer detector.Stop()
	a.serveMetrics(ctx, detector)

	fmt.Fprintf(cmd.OutOrStdout(), "Playing %s: %d events, %s\n",
		src.Label, len(src.Events), describeCycles(repeat, interval))
	if err := session.Play(ctx, repeat, interval); err != nil {
		return playbackError(err)
	}
	// Cancelling ctx ends the playback, so this wait is bounded.
	if err := session.Wait(context.WithoutCancel(ctx)); err != nil {
		return playbackError(err)
	}
	a.markPlayed(context.WithoutCancel(ctx), src)

	res := session.LastResult()
	writeResult(cmd, res)
	if res.Reason == engine.ReasonStopped && detector.Stops() > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Stopped by user input")
	}
	return nil
}

func describeCycles(repeat int, interval time.Duration) string {
	if repeat == 0 {
		return fmt.Sprintf("repeating until stopped, %s apart", interval)
	}
	if repeat == 1 {
		return "once"
	}
	return fmt.Sprintf("%d times, %s apart", repeat, interval)
}

func writeResult(cmd *cobra.Command, res engine.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "Playback %s after %d cycles: %d performed, %d failed, %d skipped\n",
		res.Reason, res.Cycles, res.Performed, res.Failed, res.Skipped)
}
