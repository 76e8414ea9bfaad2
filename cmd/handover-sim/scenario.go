package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"handover-sim/internal/scenario"
)

var scenarioSchemaPath string
var limitsOutDir string

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect built-in scenarios",
}

var scenarioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, b := range scenario.Builtins() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", b.Name, b.Description)
		}
		return nil
	},
}

var scenarioShowCmd = &cobra.Command{
	Use:   "show <scenario>",
	Short: "Print a scenario with defaults applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Resolve(args[0], scenarioSchemaPath)
		if err != nil {
			return err
		}
		if sc.Remote != nil {
			sc.Remote.Password = ""
		}
		out, err := scenario.Marshal(sc)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var scenarioLimitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Write the connectivity-limit scenario series",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(limitsOutDir, 0o755); err != nil {
			return err
		}
		for _, sc := range scenario.LimitSuite() {
			out, err := scenario.Marshal(sc)
			if err != nil {
				return err
			}
			path := filepath.Join(limitsOutDir, sc.Name+".yaml")
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func init() {
	scenarioShowCmd.Flags().StringVar(&scenarioSchemaPath, "schema", "schemas/scenario.cue", "Path to CUE schema file (empty to skip)")
	scenarioLimitsCmd.Flags().StringVar(&limitsOutDir, "out", "scenarios", "Directory for the generated scenario files")
	scenarioCmd.AddCommand(scenarioListCmd)
	scenarioCmd.AddCommand(scenarioShowCmd)
	scenarioCmd.AddCommand(scenarioLimitsCmd)
}
