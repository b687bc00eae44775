// Package cli implements the macrorec command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"macrorec/internal/hook"
	"macrorec/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Backend    string

	// Provider replaces the configured input backend (for testing).
	Provider hook.Provider
}

// NewRootCommand creates the root command for the macrorec CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macrorec",
		Short: "Record and replay mouse and keyboard input",
		Long: `macrorec records mouse and keyboard input with its timing and replays it,
once, a fixed number of times, or until stopped.

During playback any real user input stops the macro, and the toggle
hotkey (F8 by default) starts and stops it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel != "" {
				if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
					return WrapExitError(ExitCommandError, "invalid --log-level", err)
				}
			}
			switch opts.Backend {
			case "", hook.BackendEvdev, hook.BackendSimulated:
			default:
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid --backend %q: must be %s or %s", opts.Backend, hook.BackendEvdev, hook.BackendSimulated))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (default: <data dir>/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "input backend override (evdev|simulated)")

	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewLibraryCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}
