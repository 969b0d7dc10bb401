package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dependable-calls/dce/internal/secops"
)

func secretScanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "secretscan [path]",
		Short: "Scan a directory tree for leaked credentials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			findings, err := secops.NewSecretScanner(nil).Scan(root)
			if err != nil {
				return fmt.Errorf("scan %s: %w", root, err)
			}

			if asJSON {
				data, err := json.MarshalIndent(findings, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else {
				for _, f := range findings {
					fmt.Printf("%-8s %-28s %s:%d  %s\n", f.Severity, f.Rule, f.File, f.Line, f.Redacted)
				}
				fmt.Printf("\n%d finding(s)\n", len(findings))
			}

			// Nonzero exit lets CI fail the build on any finding.
			if len(findings) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output findings as JSON")
	return cmd
}
