package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nyfed-stress/internal/app"
)

var (
	exportSeriesID string
	exportFrom     string
	exportTo       string
	exportCSV      string
	exportPNG      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export one series' stored history to CSV and/or a PNG chart",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := app.ExportOptions{
			SeriesID: exportSeriesID,
			CSVPath:  exportCSV,
			PNGPath:  exportPNG,
		}

		var err error
		if opts.From, err = parseOptionalDate(exportFrom); err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
		if opts.To, err = parseOptionalDate(exportTo); err != nil {
			return fmt.Errorf("invalid --to date: %w", err)
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportSeriesID, "series", "s", "", "series id to export (required)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "window start date, YYYY-MM-DD (default lookback window)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "window end date, YYYY-MM-DD (default today)")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "CSV output path")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "PNG chart output path")
	_ = exportCmd.MarkFlagRequired("series")
	rootCmd.AddCommand(exportCmd)
}
