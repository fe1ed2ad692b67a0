package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"nyfed-stress/internal/plot"
	"nyfed-stress/internal/storage"
)

// Export writes one series' stored history to a CSV file and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.SeriesID == "" {
		return fmt.Errorf("a series id is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return fmt.Errorf("nothing to export: provide a csv or png output path")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -a.Config.Monitor.LookbackDays)
	end := today
	if opts.From != nil {
		start = *opts.From
	}
	if opts.To != nil {
		end = *opts.To
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	obs, err := store.LoadRange(ctx, opts.SeriesID, start, end)
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		return fmt.Errorf("series %q has no observations between %s and %s",
			opts.SeriesID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, obs); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("rows", len(obs)).Msg("csv export written")
	}

	if opts.PNGPath != "" {
		label := opts.SeriesID
		for _, series := range a.Config.Series {
			if series.ID == opts.SeriesID && series.Label != "" {
				label = series.Label
				break
			}
		}
		if err := plot.RenderSeriesPNG(opts.PNGPath, label, obs); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("chart export written")
	}

	return nil
}

func writeObservationsCSV(path string, obs []storage.Observation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "value"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range obs {
		record := []string{
			o.Date.Format("2006-01-02"),
			strconv.FormatFloat(o.Value, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
