package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/user/honeypulse/internal/model"
)

// Output formats accepted by Render.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// AnalysisFileName returns the name of the rendered report for day.
func AnalysisFileName(day time.Time) string {
	return "honeypot_analysis_" + day.Format("20060102") + ".txt"
}

// Render writes rep to w in the given format.
func Render(w io.Writer, rep *model.Report, format string) error {
	switch format {
	case "", FormatText:
		return WriteText(w, rep)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatMarkdown, "md":
		_, err := io.WriteString(w, FormatMarkdownReport(rep))
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteText writes rep as plain text tables.
func WriteText(w io.Writer, rep *model.Report) error {
	var buf bytes.Buffer

	buf.WriteString("\n=== Honeypot Analysis Report ===\n")
	if rep.Source != "" {
		fmt.Fprintf(&buf, "Source: %s\n", rep.Source)
	}
	fmt.Fprintf(&buf, "Records: %d (skipped lines: %d), unique IPs: %d\n", rep.TotalRecords, rep.SkippedLines, rep.UniqueIPs)

	fmt.Fprintf(&buf, "\nTop %d Most Active IPs:\n", len(rep.TopIPs))
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"IP", "Total Attempts", "Active Duration", "Unique Ports", "Unique Payloads"})
	for _, ip := range rep.TopIPs {
		table.Append([]string{
			ip.IP,
			strconv.Itoa(ip.TotalAttempts),
			ip.ActiveDuration.String(),
			strconv.Itoa(len(ip.TargetedPorts)),
			strconv.Itoa(len(ip.UniquePayloads)),
		})
	}
	table.Render()

	buf.WriteString("\nPort Targeting Analysis:\n")
	table = tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Port", "Total Attempts", "Unique Attackers", "Unique Payloads"})
	for _, p := range rep.Ports {
		table.Append([]string{
			strconv.Itoa(p.Port),
			strconv.Itoa(p.TotalAttempts),
			strconv.Itoa(p.UniqueIPs),
			strconv.Itoa(p.UniquePayloads),
		})
	}
	table.Render()

	buf.WriteString("\nHourly Attack Distribution:\n")
	for _, h := range rep.Hourly {
		if h.Attempts == 0 {
			continue
		}
		fmt.Fprintf(&buf, "Hour %02d: %d attempts\n", h.Hour, h.Attempts)
	}

	buf.WriteString("\nAttacker Sophistication Analysis:\n")
	for _, ip := range rep.TopIPs {
		fmt.Fprintf(&buf, "IP %s: Sophistication Score %.2f\n", ip.IP, ip.Score)
	}

	fmt.Fprintf(&buf, "\nTop %d Most Common Payloads:\n", len(rep.TopPayloads))
	table = tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Count", "Payload"})
	table.SetAutoWrapText(false)
	for _, p := range rep.TopPayloads {
		table.Append([]string{strconv.Itoa(p.Count), p.Payload})
	}
	table.Render()

	_, err := w.Write(buf.Bytes())
	return err
}

// FormatMarkdownReport renders rep as a Markdown document with Mermaid charts.
func FormatMarkdownReport(rep *model.Report) string {
	var sb strings.Builder

	sb.WriteString("# Honeypot Analysis Report\n\n")
	if rep.Source != "" {
		fmt.Fprintf(&sb, "**Source:** `%s`  \n", rep.Source)
	}
	fmt.Fprintf(&sb, "**Records:** %d  \n**Skipped lines:** %d  \n**Unique IPs:** %d\n\n", rep.TotalRecords, rep.SkippedLines, rep.UniqueIPs)

	sb.WriteString("## Most Active IPs\n\n")
	sb.WriteString("| IP | Attempts | Active Duration | Ports | Unique Payloads | Score |\n")
	sb.WriteString("|----|----------|-----------------|-------|-----------------|-------|\n")
	for _, ip := range rep.TopIPs {
		fmt.Fprintf(&sb, "| %s | %d | %s | %s | %d | %.2f |\n",
			ip.IP, ip.TotalAttempts, ip.ActiveDuration, joinPorts(ip.TargetedPorts),
			len(ip.UniquePayloads), ip.Score)
	}

	sb.WriteString("\n## Port Targeting\n\n")
	sb.WriteString("| Port | Attempts | Unique Attackers | Unique Payloads |\n")
	sb.WriteString("|------|----------|------------------|-----------------|\n")
	for _, p := range rep.Ports {
		fmt.Fprintf(&sb, "| %d | %d | %d | %d |\n", p.Port, p.TotalAttempts, p.UniqueIPs, p.UniquePayloads)
	}
	if len(rep.Ports) > 0 {
		sb.WriteString("\n```mermaid\n")
		sb.WriteString(PortPieChart(rep.Ports))
		sb.WriteString("```\n")
	}

	sb.WriteString("\n## Hourly Distribution\n\n```mermaid\n")
	sb.WriteString(HourlyChart(rep.Hourly))
	sb.WriteString("```\n")

	sb.WriteString("\n## Top Payloads\n\n")
	sb.WriteString("| Count | Payload |\n|-------|---------|\n")
	for _, p := range rep.TopPayloads {
		fmt.Fprintf(&sb, "| %d | `%s` |\n", p.Count, escapeCell(p.Payload))
	}

	return sb.String()
}

// WriteFile renders rep into path in the given format.
func WriteFile(path string, rep *model.Report, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Render(f, rep, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "`", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
