// Command exchangectl generates keys, signs exchange transactions for
// POST /api/v1/tx and converts between ether and wei.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "exchangectl",
		Short:        "Client tooling for the hyperswap exchange node",
		SilenceUsage: true,
	}
	root.AddCommand(
		newKeygenCmd(),
		newSignCmd(),
		newUnitsCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
