package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/EmpoweredVote/meresahar/internal/mapview"
	"github.com/spf13/cobra"
)

var popupCmd = &cobra.Command{
	Use:   "popup <issue-id>",
	Short: "Open an issue popup and load its images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid issue id %q", args[0])
		}

		client := newClient()
		row, err := client.Issue(cmd.Context(), id)
		if err != nil {
			return err
		}

		p := mapview.NewPopup(row, mapview.ImageURL(serverURL+"/issues"))
		out := cmd.OutOrStdout()
		if !jsonOutput {
			printPopupHeader(out, p)
		}
		for ev := range mapview.NewLoader(client).Open(cmd.Context(), &p) {
			if !jsonOutput {
				fmt.Fprintf(out, "  %-6s %s\n", ev.Slot, ev.State)
			}
		}

		if jsonOutput {
			return outputJSON(out, p)
		}
		for _, s := range p.Slots {
			if s.State == mapview.SlotLoaded {
				fmt.Fprintf(out, "  %s: %d bytes from %s\n", s.Label, len(s.Data), s.URL)
			} else {
				fmt.Fprintf(out, "  %s: %s\n", s.Label, s.Message)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(popupCmd)
}

func printPopupHeader(out io.Writer, p mapview.Popup) {
	fmt.Fprintf(out, "%s · %s\n", p.Title, p.Category)
	if p.Description != "" {
		fmt.Fprintln(out, p.Description)
	}
	fmt.Fprintf(out, "Status: %s (%s)  Urgency: %s\n", p.Status, p.Encoding.Color, p.Urgency)
	fmt.Fprintf(out, "Location: %s\n", p.Location)
	if p.Empty != "" {
		fmt.Fprintln(out, p.Empty)
	}
	for _, s := range p.Slots {
		fmt.Fprintf(out, "  %s: %s\n", s.Label, s.Message)
	}
}
