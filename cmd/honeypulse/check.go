package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/user/honeypulse/internal/capture"
	"github.com/user/honeypulse/internal/probes"
	"github.com/user/honeypulse/internal/tui"
)

var (
	checkHost    string
	checkTimeout time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the honeypot ports answer",
	Long: `Connect to every configured honeypot port and verify it answers with its
service banner. No data is sent, so checks are not recorded as activity.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkHost, "host", "", "host to check (default: derived from bind_address)")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 3*time.Second, "connect and read timeout per port")
}

func runCheck(cmd *cobra.Command, args []string) error {
	host := checkHost
	if host == "" {
		host = probes.LocalHost(cfg.BindAddress)
	}

	checker := probes.NewPortChecker(len(cfg.Ports), checkTimeout, capture.BannersFromConfig(cfg.Banners))

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout*time.Duration(len(cfg.Ports)+1))
	defer cancel()

	results := checker.CheckHost(ctx, host, cfg.Ports)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Port", "Service", "Status", "Latency", "Detail"})
	table.SetBorder(false)

	failed := 0
	for _, r := range results {
		status := tui.RenderStatus(r.OK(), "ok", "fail")
		latency := "-"
		if r.Open {
			latency = r.Latency.Round(time.Millisecond).String()
		}
		if !r.OK() {
			failed++
		}
		table.Append([]string{fmt.Sprintf("%d", r.Port), r.Service, status, latency, r.Error})
	}

	fmt.Printf("Checking %s\n\n", host)
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d ports failed the check", failed, len(results))
	}
	return nil
}
