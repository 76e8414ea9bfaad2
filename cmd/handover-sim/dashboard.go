package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"handover-sim/internal/dashboard"
)

var dashboardOutDir string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the /metrics endpoint",
	Long:  "dashboard renders Grafana dashboards for the Prometheus metrics served by run --admin. Set PROMETHEUS_DATASOURCE_UID to the Grafana datasource UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := dashboard.Render(dashboardOutDir)
		for _, p := range written {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return err
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOutDir, "out", "build", "Directory for the rendered dashboards")
}
