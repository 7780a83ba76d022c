package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/store"
	"github.com/andresmejia3/faceguard/internal/utils"
)

var listFilter string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled gallery entries",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context(), listFilter)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "", "Only show labels containing this text (case and accent insensitive)")
	rootCmd.AddCommand(listCmd)
}

func filterEntries(entries []store.EntryInfo, filter string) []store.EntryInfo {
	if filter == "" {
		return entries
	}
	var out []store.EntryInfo
	for _, e := range entries {
		if gallery.MatchesFilter(e.Label, filter) {
			out = append(out, e)
		}
	}
	return out
}

func runList(ctx context.Context, filter string) {
	requireDB("list")
	entries, err := DB.ListEntries(ctx)
	if err != nil {
		utils.Die("Failed to list gallery entries", err, nil)
	}
	entries = filterEntries(entries, filter)

	if len(entries) == 0 {
		fmt.Println("No gallery entries found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INDEX\tLABEL\tFEATURE BYTES\tENROLLED")
	fmt.Fprintln(w, "-----\t-----\t-------------\t--------")

	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.Index, e.Label, e.FeatureSize, e.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
