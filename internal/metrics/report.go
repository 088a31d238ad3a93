// internal/metrics/report.go
package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// WriteReport prints one row per model with request counts and latency and
// throughput summaries.
func WriteReport(w io.Writer, models []ModelMetrics) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(w, "No metrics recorded yet.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("MODEL", "BACKEND", "REQUESTS", "ERRORS", "LATENCY ms (mean ± sd)", "MAX ms", "CHARS/s").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, m := range models {
		s := m.OverallStats
		t.Row(
			m.ModelName,
			m.Backend,
			strconv.FormatInt(s.TotalRequests, 10),
			strconv.FormatInt(s.Errors, 10),
			fmt.Sprintf("%.0f ± %.0f", s.LatencyMillis.Mean, s.LatencyMillis.StdDev()),
			fmt.Sprintf("%.0f", s.LatencyMillis.Max),
			fmt.Sprintf("%.1f", s.CharsPerSecond.Mean),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
