package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dependable-calls/dce/internal/secops"
)

func supplyChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supplychain [path]",
		Short: "Check dependencies for typosquatted package names",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			bom, err := secops.GenerateSBOM(root)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(bom.Components))
			for _, c := range bom.Components {
				names = append(names, c.Name)
			}

			findings := secops.CheckTyposquats(names)
			if len(findings) == 0 {
				fmt.Printf("checked %d dependencies, no suspicious names\n", len(names))
				return nil
			}

			for _, f := range findings {
				fmt.Printf("SUSPICIOUS %-40s looks like %q (%s)\n", f.Dependency, f.Target, f.Reason)
			}
			os.Exit(1)
			return nil
		},
	}
	return cmd
}
