package main

import (
	"github.com/spf13/cobra"

	"github.com/user/honeypulse/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard over the latest activity log.

The dashboard shows:
- Port targeting statistics
- The most active attackers and their sophistication scores
- Hourly attack distribution
- The most common payloads

Use arrow keys to scroll, 'r' to re-analyze, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	db := openCache()
	if db != nil {
		defer db.Close()
	}

	return tui.NewApp(db, cfg).Run()
}
