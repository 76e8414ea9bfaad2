package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"handover-sim/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "handover-sim",
	Short: "Wireless mobility and handover experiment toolkit",
	Long:  "handover-sim moves stations through access point layouts, samples link telemetry, drives signal-based handovers and exports the results.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := logging.NewWithOptions(os.Stderr, logFormat, logLevel)
		slog.SetDefault(logger)
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(scenarioCmd)
	rootCmd.AddCommand(dashboardCmd)
}
