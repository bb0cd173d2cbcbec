package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bbsharvest/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init [path]",
			Short: "Write the built-in defaults to a config file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := configPathArg(a, args)

				if err := config.DefaultConfig().SaveConfig(path); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote default configuration to %s\n", path)

				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := a.load(); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration is valid: %s\n", a.cfg)

				return nil
			},
		},
	)

	return cmd
}

// configPathArg picks the file for "config init": the argument, then
// --config, then the default path.
func configPathArg(a *app, args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	if a.cfgFile != "" {
		return a.cfgFile
	}

	return config.DefaultPath
}
