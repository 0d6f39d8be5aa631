package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/daemon"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the honeypot daemon, its listeners and the latest analysis.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(tui.Primary).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Foreground(tui.Subtle)

	valueStyle := lipgloss.NewStyle().
		Foreground(tui.Secondary)

	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("HoneyPulse Status"))
	fmt.Println()

	fmt.Print(labelStyle.Render("Daemon: "))
	fmt.Println(tui.RenderStatus(running, fmt.Sprintf("Running (PID %d)", pid), "Stopped"))

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
		if sf.Version != "" {
			fmt.Print(labelStyle.Render("Version: "))
			fmt.Println(valueStyle.Render(sf.Version))
		}
		if running && sf.VersionMismatch(version) {
			fmt.Println(tui.WarningStyle.Render(fmt.Sprintf(
				"  Daemon runs %s but this CLI is %s; restart it with honeypulse stop && honeypulse start", sf.Version, version)))
		}

		fmt.Print(labelStyle.Render("Started: "))
		fmt.Println(valueStyle.Render(sf.StartTime))

		if running {
			fmt.Print(labelStyle.Render("Uptime: "))
			fmt.Println(valueStyle.Render(sf.Uptime))
		}

		fmt.Print(labelStyle.Render("Records captured: "))
		fmt.Println(valueStyle.Render(fmt.Sprintf("%d", sf.RecordsWritten)))

		if sf.CurrentLog != "" {
			fmt.Print(labelStyle.Render("Current log: "))
			fmt.Println(valueStyle.Render(sf.CurrentLog))
		}

		if len(sf.Listeners) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Listeners"))
			for _, l := range sf.Listeners {
				fmt.Printf("  %s %s\n",
					labelStyle.Render(fmt.Sprintf("%-5d %-8s", l.Port, l.Service)),
					tui.RenderStatus(l.Bound, "listening", l.Error))
			}
		}

		if running && len(sf.ActiveSessions) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Active Sessions"))
			ips := make([]string, 0, len(sf.ActiveSessions))
			for ip := range sf.ActiveSessions {
				ips = append(ips, ip)
			}
			sort.Strings(ips)
			for _, ip := range ips {
				fmt.Printf("  %s %s\n",
					labelStyle.Render(ip),
					valueStyle.Render(fmt.Sprintf("%d", sf.ActiveSessions[ip])))
			}
		}

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))

			for _, job := range sf.Jobs {
				statusStr := "idle"
				if job.Running {
					statusStr = "running"
				}
				last := "never"
				if !job.LastRun.IsZero() {
					last = job.LastRun.Format("15:04:05")
				}
				fmt.Printf("  %s: %s (last: %s, runs: %d, errors: %d)\n",
					labelStyle.Render(job.Name),
					valueStyle.Render(statusStr),
					last,
					job.RunCount,
					job.ErrorCount)
				if job.LastError != "" {
					fmt.Printf("    %s\n", tui.ErrorStyle.Render(job.LastError))
				}
			}
		}
	}

	if files, err := analysis.ListLogFiles(cfg.LogDir); err == nil {
		fmt.Println()
		fmt.Println(titleStyle.Render("Activity Logs"))
		fmt.Printf("  %s %s\n",
			labelStyle.Render("Files:"),
			valueStyle.Render(fmt.Sprintf("%d", len(files))))
		fmt.Printf("  %s %s\n",
			labelStyle.Render("Latest:"),
			valueStyle.Render(filepath.Base(files[len(files)-1])))
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err == nil {
		defer db.Close()
		reports := storage.NewReportStorage(db)
		if latest, err := reports.GetLatest(); err == nil && latest != nil {
			rep := latest.Report
			fmt.Println()
			fmt.Println(titleStyle.Render("Latest Analysis"))
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Log file:"),
				valueStyle.Render(filepath.Base(latest.LogFile)))
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Analyzed:"),
				valueStyle.Render(latest.GeneratedAt.Local().Format("2006-01-02 15:04:05")))
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Records:"),
				valueStyle.Render(fmt.Sprintf("%d", rep.TotalRecords)))
			if len(rep.TopIPs) > 0 {
				fmt.Printf("  %s %s\n",
					labelStyle.Render("Top attacker:"),
					valueStyle.Render(fmt.Sprintf("%s (%d attempts, score %.2f)",
						rep.TopIPs[0].IP, rep.TopIPs[0].TotalAttempts, rep.TopIPs[0].Score)))
			}
		}
		if count, err := reports.Count(); err == nil {
			fmt.Printf("  %s %s\n",
				labelStyle.Render("Cached reports:"),
				valueStyle.Render(fmt.Sprintf("%d", count)))
		}
	}

	return nil
}
