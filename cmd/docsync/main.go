// Command docsync serves the GitHub App webhook and offers offline tools for
// inspecting what the pipeline would see in a diff.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docsync",
		Short:         "Propose documentation updates for pushed code",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newScanCmd(),
		newExtractCmd(),
	)
	return root
}
