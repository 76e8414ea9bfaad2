package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"handover-sim/internal/export"
	"handover-sim/internal/logging"
	"handover-sim/internal/sim"
)

var (
	replayInput     string
	replayHandovers string
	replaySpeed     float64
	replayOutput    string
	replayExportDir string
	replayAnomalyK  float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay feeds samples from a JSONL log back to the console and optionally re-exports statistics from it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		ctx := cmd.Context()
		log := logging.FromContext(ctx)

		var exp *export.Exporter
		if replayExportDir != "" {
			exp = export.NewExporter("replay", replayAnomalyK)
		}
		writer, cleanup, err := newWriters(nil, replayOutput, "", exp)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := sim.ReplayLogFile(ctx, replayInput, writer, replaySpeed); err != nil {
			return err
		}
		events := replayHandovers
		if events == "" {
			events = replayInput + ".handovers"
		}
		if err := sim.ReplayHandoverFile(ctx, events, writer); err != nil {
			log.Warn("handover log not replayed", "path", events, "err", err)
		}

		if exp == nil {
			return nil
		}
		rep, err := exp.Export(replayExportDir)
		log.Info("export written", "files", len(rep.Files), "dir", filepath.Clean(replayExportDir))
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to JSONL sample log")
	replayCmd.Flags().StringVar(&replayHandovers, "handovers", "", "Path to JSONL handover log (defaults to <input>.handovers)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().StringVar(&replayOutput, "output", "text", "Console output: text, color, json or none")
	replayCmd.Flags().StringVar(&replayExportDir, "export-dir", "", "Re-export statistics from the log into this directory")
	replayCmd.Flags().Float64Var(&replayAnomalyK, "anomaly-k", export.DefaultAnomalyK, "Signal anomaly threshold in standard deviations")
	replayCmd.MarkFlagRequired("input")
}
