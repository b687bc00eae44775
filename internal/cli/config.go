package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"macrorec/internal/config"
)

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, create and migrate the configuration",
	}

	cmd.AddCommand(newConfigShowCommand(rootOpts))
	cmd.AddCommand(newConfigSchemaCommand())
	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigMigrateCommand(rootOpts))
	cmd.AddCommand(newConfigPathCommand(rootOpts))

	return cmd
}

func configPath(rootOpts *RootOptions) string {
	if rootOpts.ConfigPath != "" {
		return rootOpts.ConfigPath
	}
	return config.ConfigPath()
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the configuration file, .env and
MACROREC_* environment overrides have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ext string
			switch strings.ToLower(format) {
			case "toml":
				ext = ".toml"
			case "json":
				ext = ".json"
			case "yaml", "yml":
				ext = ".yaml"
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be toml, json or yaml", format))
			}

			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := config.Encode(a.cfg, ext)
			if err != nil {
				return WrapExitError(ExitFailure, "encode config", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "output format (toml|json|yaml)")
	return cmd
}

func newConfigSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.SchemaJSON()
			if err != nil {
				return WrapExitError(ExitFailure, "generate schema", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(rootOpts)
			cfg := config.DefaultConfig()
			if force {
				if err := config.SaveConfig(cfg, path); err != nil {
					return WrapExitError(ExitFailure, "write config", err)
				}
			} else {
				loaded, created, err := config.LoadOrCreate(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "write config", err)
				}
				if !created {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", path))
				}
				cfg = loaded
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return WrapExitError(ExitFailure, "create data directories", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the configuration file to the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(rootOpts)
			result, err := config.MigrateFile(path)
			if err != nil {
				return WrapExitError(ExitCommandError, "migrate config", err)
			}
			if result == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date (version %d)\n", path, config.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s from version %d to %d (backup: %s)\n",
				path, result.FromVersion, result.ToVersion, result.Backup)
			for _, c := range result.Changes {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", w)
			}
			return nil
		},
	}
}

func newConfigPathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath(rootOpts))
		},
	}
}
