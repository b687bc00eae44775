package cli

import (
	"github.com/spf13/cobra"

	"macrorec/internal/recfile"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file|ref>",
		Short: "Show event counts and duration of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load recording", err)
			}
			writeInfo(cmd.OutOrStdout(), src.Label, recfile.Describe(src.Events))
			return nil
		},
	}
}
