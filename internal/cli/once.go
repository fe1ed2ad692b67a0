package cli

import (
	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Execute a single ingestion and scoring pass, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return getApp().RunOnce(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
