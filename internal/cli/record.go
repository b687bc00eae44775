package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"macrorec/internal/recfile"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Output   string
	Duration time.Duration
	SaveAs   string
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record mouse and keyboard input",
		Long: `Record mouse and keyboard input until Ctrl-C or until --duration elapses.

The recording is written to the --output file (.rec, .json or .yaml) and,
with --save-to-library, stored in the recording library under a name.

Example:
  macrorec record -o login.rec
  macrorec record --duration 30s --save-to-library login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "recording file to write")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (default: until Ctrl-C)")
	cmd.Flags().StringVar(&opts.SaveAs, "save-to-library", "", "store the recording in the library under this name")

	return cmd
}

func runRecord(cmd *cobra.Command, opts *RecordOptions) error {
	if opts.Output == "" && opts.SaveAs == "" {
		return NewExitError(ExitCommandError, "nothing to save to: use --output or --save-to-library")
	}

	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.newSession()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if err := session.StartRecording(); err != nil {
		return WrapExitError(ExitFailure, "start recording", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Recording. Press Ctrl-C to stop.")

	<-ctx.Done()
	if err := session.StopRecording(); err != nil {
		a.log.Warn("recording stopped with error", "error", err)
	}

	events := session.Events()
	info := recfile.Describe(events)
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d events over %s (%s)\n",
		info.Events, formatSeconds(info.Duration), describeCounts(info.Counts))
	if dropped := session.DroppedInputs(); dropped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: %d inputs were dropped\n", dropped)
	}

	if opts.Output != "" {
		if err := recfile.Save(opts.Output, events); err != nil {
			if errors.Is(err, recfile.ErrEmpty) {
				return WrapExitError(ExitFailure, "nothing recorded", err)
			}
			return WrapExitError(ExitCommandError, "save recording", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", opts.Output)
	}

	if opts.SaveAs != "" {
		lib, err := a.library()
		if err != nil {
			return err
		}
		rec, created, err := lib.Put(context.WithoutCancel(ctx), opts.SaveAs, events)
		if err != nil {
			return WrapExitError(ExitFailure, "store recording", err)
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %q as %s\n", rec.Name, rec.ID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Already stored as %q (%s)\n", rec.Name, rec.ID)
		}
	}
	return nil
}
