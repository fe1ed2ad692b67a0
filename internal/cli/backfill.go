package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nyfed-stress/internal/app"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch and store a historical window for every configured series",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := time.Parse("2006-01-02", backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}

		to := time.Now().UTC().Truncate(24 * time.Hour)
		if backfillTo != "" {
			if to, err = time.Parse("2006-01-02", backfillTo); err != nil {
				return fmt.Errorf("invalid --to date: %w", err)
			}
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			From:   from,
			To:     to,
			DryRun: backfillDryRun,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "window start date, YYYY-MM-DD (required)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "window end date, YYYY-MM-DD (default today)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "fetch but do not write")
	_ = backfillCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(backfillCmd)
}
