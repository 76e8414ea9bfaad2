package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"handover-sim/internal/remote"
	"handover-sim/internal/scenario"
)

var (
	remoteSchemaPath string
	remoteOutDir     string
	remoteTimeout    float64
)

// defaultDeployTimeout bounds a whole robot run.
const defaultDeployTimeout = 30 * time.Minute

func secondsFlag(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Work with the companion device",
}

var remoteDeployCmd = &cobra.Command{
	Use:   "deploy <scenario>",
	Short: "Run a scenario on the robot and fetch its log",
	Long:  "deploy renders the control script for a scenario, uploads it to the companion device, runs it and downloads the resulting CSV log.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Resolve(args[0], remoteSchemaPath)
		if err != nil {
			return err
		}
		ch, err := newChannel(sc.Remote)
		if err != nil {
			return err
		}
		defer ch.Stop()

		runID := uuid.NewString()
		logName := "robot_log_" + runID + ".csv"
		script, err := remote.RenderScript(remote.ScriptDataFromScenario(sc, runID, logName))
		if err != nil {
			return err
		}
		timeout := secondsFlag(remoteTimeout)
		if timeout == 0 {
			timeout = defaultDeployTimeout
		}
		dep := &remote.Deployer{Channel: ch, WorkDir: sc.Remote.WorkDir, Timeout: timeout}
		trail, err := dep.Deploy(cmd.Context(), remote.Job{
			Script:     script,
			ScriptName: "control_" + runID + ".sh",
			LogName:    logName,
			LocalDir:   filepath.Join(remoteOutDir, runID),
		})
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(trail); encErr != nil {
			return encErr
		}
		return err
	},
}

var remoteExecCmd = &cobra.Command{
	Use:   "exec <scenario> -- <command>",
	Short: "Run a shell command on the companion device",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Resolve(args[0], remoteSchemaPath)
		if err != nil {
			return err
		}
		ch, err := newChannel(sc.Remote)
		if err != nil {
			return err
		}
		defer ch.Stop()

		res, err := ch.ExecuteCommand(cmd.Context(), strings.Join(args[1:], " "), secondsFlag(remoteTimeout))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
		fmt.Fprint(os.Stderr, res.Stderr)
		if !res.Success {
			return fmt.Errorf("remote command exited with status %d", res.ExitCode)
		}
		return nil
	},
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&remoteSchemaPath, "schema", "schemas/scenario.cue", "Path to CUE schema file (empty to skip)")
	remoteCmd.PersistentFlags().Float64Var(&remoteTimeout, "timeout", 0, "Command timeout in seconds (0 uses the scenario's command_timeout)")
	remoteDeployCmd.Flags().StringVar(&remoteOutDir, "out", "results/robot", "Local directory for scripts and downloaded logs")
	remoteCmd.AddCommand(remoteDeployCmd)
	remoteCmd.AddCommand(remoteExecCmd)
}
