package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"macrorec/internal/recfile"
)

// NewLibraryCommand creates the library command and its subcommands.
func NewLibraryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage stored recordings",
		Long: `Manage the recording library. Recordings are referenced by id or by
name; a name refers to the latest recording stored under it.`,
	}

	cmd.AddCommand(newLibraryListCommand(rootOpts))
	cmd.AddCommand(newLibraryAddCommand(rootOpts))
	cmd.AddCommand(newLibraryExportCommand(rootOpts))
	cmd.AddCommand(newLibraryRemoveCommand(rootOpts))
	cmd.AddCommand(newLibraryRenameCommand(rootOpts))

	return cmd
}

// withLibrary runs fn with an open library.
func withLibrary(cmd *cobra.Command, rootOpts *RootOptions, fn func(a *app) error) error {
	a, err := newApp(cmd, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.library(); err != nil {
		return err
	}
	return fn(a)
}

func newLibraryListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored recordings",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, rootOpts, func(a *app) error {
				recs, err := a.lib.List(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "list recordings", err)
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recordings stored.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tEVENTS\tDURATION\tCREATED\tPLAYS")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
						r.ID, r.Name, r.Events, formatSeconds(r.Duration),
						r.CreatedAt.Local().Format(time.DateTime), r.PlayCount)
				}
				return tw.Flush()
			})
		},
	}
}

func newLibraryAddCommand(rootOpts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Store a recording file in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, rootOpts, func(a *app) error {
				path := a.cfg.ResolveRecording(args[0])
				events, err := recfile.Load(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "load recording", err)
				}
				if name == "" {
					name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				}
				rec, created, err := a.lib.Put(cmd.Context(), name, events)
				if err != nil {
					return WrapExitError(ExitFailure, "store recording", err)
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Stored %q as %s\n", rec.Name, rec.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Already stored as %q (%s)\n", rec.Name, rec.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "library name (default: file name without extension)")
	return cmd
}

func newLibraryExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <ref> <file>",
		Short: "Write a stored recording to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, rootOpts, func(a *app) error {
				rec, events, err := a.lib.Get(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "find recording", err)
				}
				if err := recfile.Save(args[1], events); err != nil {
					return WrapExitError(ExitCommandError, "write recording", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %q to %s\n", rec.Name, args[1])
				return nil
			})
		},
	}
}

func newLibraryRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <ref>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a stored recording",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, rootOpts, func(a *app) error {
				if err := a.lib.Delete(cmd.Context(), args[0]); err != nil {
					return WrapExitError(ExitCommandError, "delete recording", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newLibraryRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <ref> <name>",
		Short: "Rename a stored recording",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, rootOpts, func(a *app) error {
				if err := a.lib.Rename(cmd.Context(), args[0], args[1]); err != nil {
					return WrapExitError(ExitCommandError, "rename recording", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", args[0], args[1])
				return nil
			})
		},
	}
}
