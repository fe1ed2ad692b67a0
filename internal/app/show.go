package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the most recent alerts as a table on stdout.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Println("no alerts recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSERIES\tLEVEL\tMESSAGE")
	for _, alert := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			alert.AlertTS.UTC().Format(time.RFC3339),
			alert.SeriesID,
			alert.Level,
			firstLine(alert.Message),
		)
	}
	return w.Flush()
}

// firstLine keeps multi-line alert messages from wrecking the table layout.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
