package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-side dashboard API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return getApp().Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
