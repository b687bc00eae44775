package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"macrorec/internal/config"
	"macrorec/internal/engine"
	"macrorec/internal/scheduler"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	List    bool
	Trigger string
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured playback schedule",
		Long: `Run the [[schedule]] entries of the configuration until Ctrl-C. Each entry
plays a recording file or library entry on a cron schedule; a run is
skipped while another playback or a recording is in progress.

Schedule changes in the configuration file are applied without a restart.

Example:
  macrorec schedule
  macrorec schedule --list
  macrorec schedule --trigger morning-report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.List, "list", false, "print the entries and their next run, then exit")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "run the named entry once now, then exit")

	return cmd
}

func runSchedule(cmd *cobra.Command, opts *ScheduleOptions) error {
	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Schedule) == 0 {
		return NewExitError(ExitCommandError, "no [[schedule]] entries configured in "+a.loader.Path())
	}
	// Jobs of different entries may resolve recordings concurrently.
	if _, err := a.library(); err != nil {
		return err
	}
	session, err := a.newSession()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := &syncWriter{w: cmd.OutOrStdout()}
	session.OnFinish(func(res engine.Result) {
		fmt.Fprintf(out, "Playback %s after %d cycles: %d performed, %d failed, %d skipped\n",
			res.Reason, res.Cycles, res.Performed, res.Failed, res.Skipped)
	})

	sched := scheduler.New(session, a.loadEvents, scheduler.Options{
		Logger: a.logger.WithComponent("scheduler"),
	})
	if err := sched.Replace(a.cfg.Schedule); err != nil {
		return WrapExitError(ExitCommandError, "schedule entries", err)
	}

	switch {
	case opts.List:
		sched.Start()
		writeEntries(out, sched.Entries())
		sched.Stop()
		return nil
	case opts.Trigger != "":
		err := sched.Trigger(opts.Trigger)
		sched.Stop()
		if err != nil {
			return WrapExitError(ExitCommandError, "trigger", err)
		}
		return nil
	}

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
		if err := sched.Replace(c.Schedule); err != nil {
			a.log.Warn("schedule reload incomplete", "error", err)
		}
		applyHotkey(a, detector, c)
	})

	sched.Start()
	writeEntries(out, sched.Entries())
	fmt.Fprintln(out, "Scheduler running. Press Ctrl-C to stop.")

	<-ctx.Done()
	sched.Stop()
	fmt.Fprintf(out, "Scheduler stopped: %d runs, %d skipped\n", sched.Runs(), sched.Skipped())
	return nil
}

func writeEntries(w io.Writer, entries []scheduler.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCRON\tRECORDING\tREPEAT\tNEXT")
	for _, e := range entries {
		next := "-"
		if !e.Next.IsZero() {
			next = e.Next.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Name, e.Cron, e.Recording, e.Repeat, next)
	}
	tw.Flush()
}
