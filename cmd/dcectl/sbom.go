package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dependable-calls/dce/internal/secops"
)

func sbomCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sbom [path]",
		Short: "Generate a CycloneDX bill of materials from go.mod and package.json",
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

			if output != "" {
				if err := bom.WriteJSON(output); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d components)\n", output, len(bom.Components))
				return nil
			}

			data, err := json.MarshalIndent(bom, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the SBOM to a file instead of stdout")
	return cmd
}
