// internal/cli/show_metrics.go
package lime

import (
	"fmt"

	"github.com/mwiater/lime/internal/metrics"
	"github.com/spf13/cobra"
)

// showMetricsCmd implements 'show metrics', which prints the backend call
// metrics recorded by runs with metrics enabled.
var showMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show recorded backend metrics",
	Long:  `Show per-model request counts, errors, latency and throughput recorded while 'metrics: true' (or --metrics) was set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := GetConfig()
		if rc == nil {
			return fmt.Errorf("configuration not loaded")
		}
		agg := metrics.GetInstance()
		agg.SetFilePath(rc.MetricsFilePath())
		fmt.Fprintf(cmd.OutOrStdout(), "Metrics file: %s\n\n", agg.FilePath())
		return metrics.WriteReport(cmd.OutOrStdout(), agg.Snapshot())
	},
}

func init() {
	showCmd.AddCommand(showMetricsCmd)
}
