package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/honeypulse/internal/daemon"
	"github.com/user/honeypulse/internal/util"
	"github.com/user/honeypulse/internal/web"
)

var (
	foreground   bool
	withWeb      bool
	startWebPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the honeypot daemon",
	Long: `Start the honeypot daemon in the background. It listens on every configured
port and appends each received payload to the daily activity log.

Ports below 1024 usually need elevated privileges. Ports that cannot be bound
are reported and skipped; the daemon fails only if none can be bound.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
	startCmd.Flags().BoolVar(&withWeb, "with-web", false,
		"Also start the web dashboard server with the live feed")
	startCmd.Flags().IntVar(&startWebPort, "web-port", 0,
		"Port for web server (when using --with-web, default from config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if startWebPort == 0 {
		startWebPort = cfg.WebPort
	}

	if foreground {
		return runForeground()
	}

	return runDaemon()
}

func runForeground() error {
	fmt.Println("Starting honeypulse in foreground mode...")

	db := openCache()

	d, err := daemon.New(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	var srv *web.Server
	if withWeb {
		srv = web.NewServer(db, cfg, startWebPort)
		d.OnRecord(srv.Hub().Publish)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	for _, st := range d.Listeners().Statuses() {
		if st.Bound {
			fmt.Printf("  %-5d %-8s listening\n", st.Port, st.Service)
		} else {
			fmt.Printf("  %-5d %-8s FAILED: %s\n", st.Port, st.Service, st.Error)
		}
	}

	if srv != nil {
		go func() {
			fmt.Printf("Web dashboard: http://localhost:%d\n", startWebPort)
			if err := srv.Run(d.Context()); err != nil {
				util.Error("Web server error: %v", err)
			}
		}()
	}

	fmt.Printf("Logging activity to %s\n", cfg.LogDir)
	fmt.Println("HoneyPulse daemon started. Press Ctrl+C to stop.")

	d.Wait()

	if db != nil {
		db.Close()
	}

	return nil
}

func runDaemon() error {
	// Re-execute self in background
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"start", "--foreground"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if withWeb {
		args = append(args, "--with-web", "--web-port", fmt.Sprintf("%d", startWebPort))
	}

	if err := util.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// Daemon stdout/stderr go to the operator log
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	procAttr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{nil, logFile, logFile},
		Sys:   detachedProcAttr(),
	}

	proc, err := os.StartProcess(executable, append([]string{executable}, args...), procAttr)
	if err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if err := proc.Release(); err != nil {
		util.Warn("Failed to release process: %v", err)
	}

	fmt.Printf("HoneyPulse daemon started (PID %d)\n", proc.Pid)
	fmt.Printf("Logs: %s\n", cfg.LogFile)
	if withWeb {
		fmt.Printf("Web dashboard: http://localhost:%d\n", startWebPort)
	}

	return nil
}
