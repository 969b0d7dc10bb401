package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "dcectl",
		Short:   "Operational tooling for the call exchange platform",
		Version: Version,
	}

	rootCmd.AddCommand(secretScanCmd())
	rootCmd.AddCommand(sbomCmd())
	rootCmd.AddCommand(supplyChainCmd())
	rootCmd.AddCommand(jobsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
