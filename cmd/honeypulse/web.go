package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/user/honeypulse/internal/web"
)

var (
	webPort int
	webOpen bool
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web dashboard",
	Long: `Start the web dashboard and JSON API over the captured activity logs.

The web server provides:
- /api/honeypot-data  dashboard summary of the latest log
- /api/report         full report (?file=honeypot_YYYYMMDD.json)
- /api/logs           available activity logs
- /api/status         daemon and listener status
- /report             downloadable report (?format=markdown|text|json)

The live feed (/api/live) only carries events when the web server runs inside
the daemon: honeypulse start --with-web.

Examples:
  honeypulse web
  honeypulse web --port 8080
  honeypulse web --open`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Web server port (default from config)")
	webCmd.Flags().BoolVar(&webOpen, "open", false, "Open the dashboard in a browser")
}

func runWeb(cmd *cobra.Command, args []string) error {
	if webPort == 0 {
		webPort = cfg.WebPort
	}

	db := openCache()
	if db != nil {
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("http://localhost:%d", webPort)
	fmt.Printf("Starting web server on %s\n", url)
	fmt.Println("Press Ctrl+C to stop")

	if webOpen {
		go func() {
			if err := open.Run(url); err != nil {
				fmt.Printf("Could not open browser: %v\n", err)
			}
		}()
	}

	return web.NewServer(db, cfg, webPort).Run(ctx)
}
