package main

import (
	"encoding/json"
	"fmt"
	"subscriber/internal/version"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var (
		asJSON  bool
		require string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()

			if require != "" {
				ok, err := info.Satisfies(require)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("version %s does not satisfy %q", info.Version, require)
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().StringVar(&require, "require", "", "Fail unless the version satisfies this semver constraint")
	return cmd
}
