package report

import (
	"fmt"
	"strings"

	"github.com/user/honeypulse/internal/capture"
	"github.com/user/honeypulse/internal/model"
)

// PortPieChart generates a Mermaid pie chart of attempts per port.
func PortPieChart(ports []model.PortSummary) string {
	var sb strings.Builder
	sb.WriteString("pie title Attempts by port\n")
	for _, p := range ports {
		fmt.Fprintf(&sb, "    \"%d %s\" : %d\n", p.Port, capture.ServiceName(p.Port), p.TotalAttempts)
	}
	return sb.String()
}

// HourlyChart generates a Mermaid bar chart of the hour-of-day histogram.
func HourlyChart(hourly []model.HourBucket) string {
	var sb strings.Builder
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Attempts by hour\"\n")

	hours := make([]string, len(hourly))
	counts := make([]string, len(hourly))
	for i, h := range hourly {
		hours[i] = fmt.Sprintf("\"%02d\"", h.Hour)
		counts[i] = fmt.Sprintf("%d", h.Attempts)
	}
	fmt.Fprintf(&sb, "    x-axis [%s]\n", strings.Join(hours, ", "))
	sb.WriteString("    y-axis \"Attempts\"\n")
	fmt.Fprintf(&sb, "    bar [%s]\n", strings.Join(counts, ", "))
	return sb.String()
}
