package cli

import (
	"github.com/spf13/cobra"

	"nyfed-stress/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the most recent alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit})
	},
}

func init() {
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 20, "maximum number of alerts to display")
	rootCmd.AddCommand(showCmd)
}
