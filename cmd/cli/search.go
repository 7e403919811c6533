package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kosarica/deal-service/internal/export"
	"github.com/kosarica/deal-service/internal/types"
)

var (
	searchOutput string
	searchFile   string
	searchQuiet  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <product>",
	Short: "Search a product across all configured stores",
	Long: `Search a product in every configured store at once. Progress is printed
as each store answers; the merged listings are printed cheapest first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "table", "Output format (table, json, xlsx)")
	searchCmd.Flags().StringVarP(&searchFile, "file", "f", "", "Write results to this file instead of stdout (required for xlsx)")
	searchCmd.Flags().BoolVarP(&searchQuiet, "quiet", "q", false, "Do not print per-store progress")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	switch searchOutput {
	case "table", "json":
	case "xlsx":
		if searchFile == "" {
			return fmt.Errorf("--file is required for xlsx output")
		}
	default:
		return fmt.Errorf("invalid output format: %s (use 'table', 'json' or 'xlsx')", searchOutput)
	}

	agg, err := newAggregator()
	if err != nil {
		return err
	}

	events, err := agg.Search(cmd.Context(), query)
	if err != nil {
		return err
	}

	var listings []types.Listing
	for ev := range events {
		switch ev.Type {
		case types.EventProgress:
			if !searchQuiet {
				printProgress(os.Stderr, ev.Progress)
			}
		case types.EventResults:
			listings = ev.Results.Listings
		}
	}

	var out io.Writer = os.Stdout
	if searchFile != "" {
		f, err := os.Create(searchFile)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", searchFile, err)
		}
		defer f.Close()
		out = f
	}

	switch searchOutput {
	case "json":
		return outputSearchJSON(out, listings)
	case "xlsx":
		if err := export.WriteXLSX(out, query, listings); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d listings to %s\n", len(listings), searchFile)
		return nil
	default:
		outputSearchTable(out, query, listings)
		return nil
	}
}

func printProgress(w io.Writer, p *types.ProgressEvent) {
	line := fmt.Sprintf("[%d/%d] %s: %s, %d listings, %.1fs", p.Sequence, p.Total, p.Store, p.Status, p.ListingCount, p.ElapsedSeconds)
	if p.Error != "" {
		line += " (" + p.Error + ")"
	}
	fmt.Fprintln(w, line)
}

func outputSearchTable(out io.Writer, query string, listings []types.Listing) {
	if len(listings) == 0 {
		fmt.Fprintf(out, "No listings found for: %s\n", query)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tPRICE\tDISCOUNT\tSTORE\tPRODUCT\tURL")
	fmt.Fprintln(w, "-\t-----\t--------\t-----\t-------\t---")

	for i, l := range listings {
		discount := "-"
		if l.DiscountPercent != nil {
			discount = fmt.Sprintf("%d%%", *l.DiscountPercent)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, l.Price.StringFixed(2), discount, l.Store, l.Name, l.URL)
	}

	w.Flush()
}

func outputSearchJSON(out io.Writer, listings []types.Listing) error {
	if listings == nil {
		listings = []types.Listing{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(listings)
}
