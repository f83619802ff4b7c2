package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"complaint-portal/internal/models"
)

var statsJSON bool

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output results as JSON")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load the sheet once and print dashboard figures",
	RunE:  runStats,
}

type statsOutput struct {
	Dashboard models.DashboardView  `json:"dashboard"`
	Analytics models.AnalyticsView  `json:"analytics"`
	Quality   models.QualitySummary `json:"quality"`
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := loadOnce(cmd.Context())
	if err != nil {
		return err
	}

	snap := a.store.Snapshot()
	out := statsOutput{
		Dashboard: a.calculator.Dashboard(snap.All, snap.LoadedAt),
		Analytics: a.calculator.Analytics(snap.All, time.Now(), a.cfg.Location()),
		Quality:   a.store.QualityReport().Summary,
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printStats(cmd.OutOrStdout(), out)
}

func printStats(w io.Writer, out statsOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	counts := out.Dashboard.Counts
	fmt.Fprintf(tw, "Total\t%d\n", counts.Total)
	fmt.Fprintf(tw, "Pending\t%d\n", counts.Pending)
	fmt.Fprintf(tw, "In Progress\t%d\n", counts.InProgress)
	fmt.Fprintf(tw, "Resolved\t%d\n", counts.Resolved)
	fmt.Fprintf(tw, "Resolution rate\t%.1f%%\n", out.Dashboard.ResolutionRate*100)
	fmt.Fprintf(tw, "Quality score\t%.1f\n", out.Quality.QualityScore)

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CATEGORY\tCOUNT")
	for _, b := range out.Analytics.Categories {
		fmt.Fprintf(tw, "%s\t%d\n", b.Label, b.Count)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DAY\tDATE\tCOUNT")
	for _, p := range out.Analytics.Weekly {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Label, p.Date, p.Count)
	}

	return tw.Flush()
}
