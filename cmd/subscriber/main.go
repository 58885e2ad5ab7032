// Command subscriber runs the user and newsletter subscription API and its
// operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "subscriber",
		Short:         "User accounts and newsletter subscriptions behind a per-client rate limiter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")

	root.AddCommand(
		newServeCmd(),
		newRoutesCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
