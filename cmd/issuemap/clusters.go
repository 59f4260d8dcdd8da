package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/EmpoweredVote/meresahar/internal/mapview"
	"github.com/spf13/cobra"
)

var (
	clusterZoom   int
	clusterMax    int
	clusterRadius float64
	clusterBBox   string
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List clusters and markers visible at a zoom level",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bbox, err := parseBBoxFlag(clusterBBox)
		if err != nil {
			return err
		}

		rows, err := newClient().List(cmd.Context(), filters())
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}

		ix := mapview.NewIndex(rows, mapview.Options{MaxZoom: clusterMax, Radius: clusterRadius})
		features := ix.Clusters(bbox, clusterZoom)
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), features)
		}
		return printFeatures(cmd.OutOrStdout(), ix, features)
	},
}

func init() {
	d := mapview.DefaultOptions()
	clustersCmd.Flags().IntVar(&clusterZoom, "zoom", 5, "Zoom level")
	clustersCmd.Flags().IntVar(&clusterMax, "max-zoom", d.MaxZoom, "Zoom at which clusters spiderfy")
	clustersCmd.Flags().Float64Var(&clusterRadius, "radius", d.Radius, "Cluster radius in pixels")
	clustersCmd.Flags().StringVar(&clusterBBox, "bbox", "", "Viewport as west,south,east,north")
	addFilterFlags(clustersCmd)
	rootCmd.AddCommand(clustersCmd)
}

func printFeatures(out io.Writer, ix *mapview.Index, features []mapview.Feature) error {
	fmt.Fprintf(out, "%d placed, %d without location\n\n", ix.Placed, ix.Skipped)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tID\tCOUNT\tLAT\tLNG\tCOLOR\tEXPANDS AT")
	for _, f := range features {
		id := fmt.Sprintf("issue %d", f.IssueID)
		expands := "-"
		if f.Kind == mapview.KindCluster {
			id = fmt.Sprintf("cluster %d", f.ClusterID)
			expands = fmt.Sprint(f.ExpansionZoom)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.5f\t%.5f\t%s\t%s\n", f.Kind, id, f.Count, f.Lat, f.Lng, f.Encoding.Color, expands)
	}
	return w.Flush()
}
