package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/meresahar/internal/issues"
	"github.com/EmpoweredVote/meresahar/internal/mapclient"
	"github.com/EmpoweredVote/meresahar/internal/mapview"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	jsonOutput bool
	filterFlag = map[issues.Field]*string{
		issues.FieldCategory: new(string),
		issues.FieldStatus:   new(string),
		issues.FieldUrgency:  new(string),
	}
)

var rootCmd = &cobra.Command{
	Use:   "issuemap",
	Short: "Inspect the civic issue map of a running server",
	Long: `issuemap fetches issues from a running server and runs the same
clustering and popup logic the web map uses.

Examples:
  issuemap clusters --zoom 5
  issuemap clusters --zoom 12 --bbox 77.4,12.8,77.8,13.1 --status Pending
  issuemap popup 42`,
	SilenceUsage: true,
}

func init() {
	def := os.Getenv("ISSUEMAP_SERVER")
	if def == "" {
		def = "http://localhost:5050"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", def, "Base URL of the issues server (env ISSUEMAP_SERVER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")
}

func newClient() *mapclient.Client {
	return mapclient.NewClient(serverURL)
}

func addFilterFlags(cmd *cobra.Command) {
	for field, v := range filterFlag {
		cmd.Flags().StringVar(v, string(field), "", "Only issues whose "+string(field)+" equals this value")
	}
}

func filters() issues.Filters {
	f := issues.Filters{}
	for field, v := range filterFlag {
		if *v != "" {
			f[field] = *v
		}
	}
	return f
}

// parseBBoxFlag reads "west,south,east,north"; empty means the whole world.
func parseBBoxFlag(raw string) (mapview.BBox, error) {
	if strings.TrimSpace(raw) == "" {
		return mapview.World, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return mapview.BBox{}, fmt.Errorf("--bbox needs west,south,east,north")
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mapview.BBox{}, fmt.Errorf("--bbox value %q is not a number", p)
		}
		vals[i] = v
	}
	if vals[1] > vals[3] {
		return mapview.BBox{}, fmt.Errorf("--bbox south must not exceed north")
	}
	return mapview.BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
