package main

import (
	"fmt"
	"subscriber/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "example <path>",
		Short: "Write an example configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveExample(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Example configuration written to %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report whether it is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (storage: %s, rate limit backend: %s, %d requests per %s)\n",
				cfg.Storage.Type, cfg.RateLimit.Backend, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
			return nil
		},
	})

	return cmd
}
