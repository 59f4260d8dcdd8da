package main

import (
	"fmt"

	"github.com/EmpoweredVote/meresahar/internal/mapview"
	"github.com/spf13/cobra"
)

var legendCmd = &cobra.Command{
	Use:   "legend",
	Short: "Show the marker color for each status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), mapview.Legend())
		}
		for _, e := range mapview.Legend() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s  %s\n", e.Status, e.Color, e.Icon)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(legendCmd)
}
