package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nyfed-stress/internal/app"
	"nyfed-stress/internal/config"
	"nyfed-stress/internal/logging"
)

var (
	configPath string
	logLevel   string

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "nyfedstress",
	Short: "Market stress monitor over New York Fed public datasets",
	Long: `nyfedstress ingests daily observations from the New York Fed markets API
(reference rates, repo operations, central bank liquidity swaps), scores each
series for statistical stress, and records alerts when thresholds trip.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		application = app.NewApp(cfg, logger)
		return nil
	},
}

func getApp() *app.App {
	return application
}

// Execute runs the CLI entrypoint.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}
