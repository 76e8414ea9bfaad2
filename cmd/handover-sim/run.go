package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"handover-sim/internal/admin"
	"handover-sim/internal/config"
	"handover-sim/internal/export"
	"handover-sim/internal/logging"
	"handover-sim/internal/metrics"
	"handover-sim/internal/remote"
	"handover-sim/internal/scenario"
	"handover-sim/internal/sim"
)

var (
	runSchemaPath string
	runOutput     string
	runLogFile    string
	runAdminAddr  string
	runExportDir  string
	runNoExport   bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a scenario",
	Long:  "run moves every station of a built-in scenario or scenario file through its trajectory, sampling telemetry and driving handovers, then exports per-station statistics.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Resolve(args[0], runSchemaPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := logging.FromContext(ctx)

		var ch *remote.Channel
		if sc.Probe.Backend == config.BackendRemote {
			ch, err = newChannel(sc.Remote)
			if err != nil {
				return err
			}
			if err := connectChannel(ctx, ch); err != nil {
				return err
			}
			defer ch.Stop()
		}

		backend, closeBackend, err := newBackend(sc, ch)
		if err != nil {
			return err
		}
		defer closeBackend()

		writer, cleanup, err := newWriters(sc, runOutput, runLogFile, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		runID := uuid.NewString()
		driver := sim.NewDriver(sc, backend, writer, writer)
		driver.SetRunID(runID)

		reg := prometheus.NewRegistry()
		rec, err := metrics.NewRecorder(reg)
		if err != nil {
			return err
		}
		driver.SetRecorder(rec)

		if runAdminAddr != "" {
			srv := admin.NewServer(driver, reg)
			if ch != nil {
				srv.Remote = ch
			}
			go func() {
				log.Info("admin endpoint listening", "addr", runAdminAddr)
				if err := srv.Start(runAdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", "err", err)
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					log.Warn("admin server shutdown", "err", err)
				}
			}()
		}

		res, runErr := driver.Run(ctx)

		if !runNoExport {
			dir := runExportDir
			if dir == "" {
				dir = sc.Export.Dir
			}
			exp := export.NewExporter(runID, sc.Export.AnomalyK)
			for _, l := range res.Logs {
				exp.Add(l)
			}
			rep, err := exp.Export(filepath.Join(dir, runID))
			if err != nil {
				log.Error("export incomplete", "err", err)
			}
			log.Info("export written", "files", len(rep.Files), "dir", filepath.Join(dir, runID))
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/scenario.cue", "Path to CUE schema file (empty to skip)")
	runCmd.Flags().StringVar(&runOutput, "output", "text", "Console output: text, color, json or none")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to a JSONL sample log; handovers go to <path>.handovers")
	runCmd.Flags().StringVar(&runAdminAddr, "admin", "", "Listen address of the admin endpoint (e.g. :8080)")
	runCmd.Flags().StringVar(&runExportDir, "export-dir", "", "Export directory (defaults to the scenario's export.dir)")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "Skip writing CSV and summary files")
}
