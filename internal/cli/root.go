// Package cli implements the oer command line.
package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "oer.yaml"

// Execute runs the root command with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oer",
		Short:         "Endpoint-resolving HTTP gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newResolveCmd(),
		newValidateCmd(),
		newReloadCmd(),
		newVersionCmd(),
	)
	return root
}
