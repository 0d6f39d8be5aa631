package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/honeypulse/internal/capture"
	"github.com/user/honeypulse/internal/model"
)

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *model.CachedReport
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(msg dataMsg, width, height int) *Dashboard {
	return &Dashboard{
		data:   msg.Report,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

func (d *Dashboard) sectionWidth() int {
	if d.width-4 < 60 {
		return 60
	}
	return d.width - 4
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(d.width).Render("🍯 HoneyPulse Dashboard"))
	sb.WriteString("\n\n")
	sb.WriteString(d.renderSummarySection())
	sb.WriteString("\n")
	sb.WriteString(d.renderPortsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderIPsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderHourlySection())
	sb.WriteString("\n")
	sb.WriteString(d.renderPayloadsSection())

	return sb.String()
}

func (d *Dashboard) renderSummarySection() string {
	rep := d.data.Report
	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s\n%s %s",
		LabelStyle.Render("Log file:"),
		ValueStyle.Render(filepath.Base(d.data.LogFile)),
		LabelStyle.Render("Records:"),
		ValueStyle.Render(fmt.Sprintf("%d", rep.TotalRecords)),
		LabelStyle.Render("Unique IPs:"),
		ValueStyle.Render(fmt.Sprintf("%d", rep.UniqueIPs)),
		LabelStyle.Render("Skipped:"),
		ValueStyle.Render(fmt.Sprintf("%d", rep.SkippedLines)),
		LabelStyle.Render("Analyzed:"),
		ValueStyle.Render(d.data.GeneratedAt.Local().Format("2006-01-02 15:04:05")),
	)

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("📊 Summary") + "\n" + content)
}

func (d *Dashboard) renderPortsSection() string {
	ports := d.data.Report.Ports
	if len(ports) == 0 {
		return d.emptySection("🎯 Port Targeting", "No activity recorded yet")
	}

	max := ports[0].TotalAttempts
	rows := []string{
		fmt.Sprintf("%-7s %-8s %9s %9s %9s", "Port", "Service", "Attempts", "Attackers", "Payloads"),
		strings.Repeat("─", 46),
	}
	for _, p := range ports {
		rows = append(rows, fmt.Sprintf("%-7d %-8s %9d %9d %9d  %s",
			p.Port, capture.ServiceName(p.Port), p.TotalAttempts, p.UniqueIPs, p.UniquePayloads,
			RenderBar(p.TotalAttempts, max, 20)))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("🎯 Port Targeting") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderIPsSection() string {
	ips := d.data.Report.TopIPs
	if len(ips) == 0 {
		return d.emptySection("🕵️ Most Active IPs", "No attackers seen yet")
	}

	rows := []string{
		fmt.Sprintf("%-40s %8s %-16s %6s %7s", "IP", "Attempts", "Ports", "Unique", "Score"),
		strings.Repeat("─", 82),
	}
	for _, ip := range ips {
		ports := make([]string, len(ip.TargetedPorts))
		for i, p := range ip.TargetedPorts {
			ports[i] = fmt.Sprintf("%d", p)
		}
		portList := strings.Join(ports, ",")
		if len(portList) > 16 {
			portList = portList[:13] + "..."
		}
		rows = append(rows, fmt.Sprintf("%-40s %8d %-16s %6d %s",
			ip.IP, ip.TotalAttempts, portList, len(ip.UniquePayloads),
			scoreStyle(ip.Score).Render(fmt.Sprintf("%7.2f", ip.Score))))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("🕵️ Most Active IPs") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderHourlySection() string {
	hourly := d.data.Report.Hourly
	max := 0
	for _, h := range hourly {
		if h.Attempts > max {
			max = h.Attempts
		}
	}

	rows := make([]string, 0, len(hourly))
	for _, h := range hourly {
		rows = append(rows, fmt.Sprintf("%02d %s %d", h.Hour, RenderBar(h.Attempts, max, 30), h.Attempts))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("🕒 Hourly Distribution") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderPayloadsSection() string {
	payloads := d.data.Report.TopPayloads
	if len(payloads) == 0 {
		return d.emptySection("📦 Top Payloads", "No payloads captured yet")
	}

	rows := make([]string, 0, len(payloads))
	for _, p := range payloads {
		rows = append(rows, fmt.Sprintf("%6d  %q", p.Count, p.Payload))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("📦 Top Payloads") + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) emptySection(title, msg string) string {
	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render(title) + "\n" + DimStyle.Render(msg))
}
