package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled ingestion and alerting service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return getApp().Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
