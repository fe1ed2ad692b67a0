package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nyfed-stress/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// The root PersistentPreRunE loads config and opens logging; version
	// needs neither.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(*cobra.Command, []string) {
		fmt.Printf("nyfedstress %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
