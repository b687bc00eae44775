package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"macrorec/internal/recfile"
)

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <src> <dst>",
		Short: "Convert a recording between .rec, .json and .yaml",
		Long: `Convert a recording file. Formats are chosen by extension; .rec and .json
are the same JSON document.

Example:
  macrorec convert login.rec login.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := recfile.Convert(args[0], args[1]); err != nil {
				return WrapExitError(ExitCommandError, "convert", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])
			return nil
		},
	}
}
