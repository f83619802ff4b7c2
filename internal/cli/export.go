package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"complaint-portal/internal/export"
	"complaint-portal/internal/models"
)

var (
	exportFormat   string
	exportOutput   string
	exportPush     bool
	exportCriteria models.FilterCriteria
	exportStatus   string
	exportPriority string
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (defaults to complaints-<date>.<format>, - for stdout)")
	exportCmd.Flags().BoolVar(&exportPush, "push", false, "Push rows to SINK_URL instead of writing a file")
	exportCmd.Flags().StringVar(&exportCriteria.SearchText, "search", "", "Case-insensitive text search")
	exportCmd.Flags().StringVar(&exportCriteria.Category, "category", "", "Exact category")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Exact status")
	exportCmd.Flags().StringVar(&exportPriority, "priority", "", "Exact priority")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Load the sheet once and export the filtered complaints",
	Long: `Export complaints matching the filter to CSV or XLSX, or push them to
the configured sink.

Examples:
  # Everything, as CSV in the current directory
  complaint-portal export

  # Urgent complaints to stdout
  complaint-portal export --priority Urgent -o -`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "xlsx" {
		return fmt.Errorf("unsupported format %q, expected csv or xlsx", exportFormat)
	}

	a, err := loadOnce(cmd.Context())
	if err != nil {
		return err
	}

	criteria := exportCriteria
	criteria.Status = models.Status(exportStatus)
	criteria.Priority = models.Priority(exportPriority)
	records := a.store.ApplyFilter(criteria)
	if len(records) == 0 {
		return export.ErrNoRecords
	}

	if exportPush {
		pushed, err := a.exporter.PushToSink(cmd.Context(), a.cfg.SinkURL, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d complaints\n", pushed)
		return nil
	}

	if exportOutput == "-" {
		return writeExport(a.exporter, cmd.OutOrStdout(), records)
	}

	path := exportOutput
	if path == "" {
		path = export.Filename(time.Now(), exportFormat)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeExport(a.exporter, f, records); err != nil {
		return err
	}
	a.logger.WithField("file", path).WithField("records", len(records)).Info("Export written")
	return f.Close()
}

func writeExport(e *export.Exporter, w io.Writer, records []models.ComplaintRecord) error {
	if exportFormat == "xlsx" {
		return e.WriteXLSX(w, records)
	}
	return e.WriteCSV(w, records)
}
