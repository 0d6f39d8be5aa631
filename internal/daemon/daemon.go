// Package daemon runs the honeypot capture service in the background.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/user/honeypulse/internal/capture"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/probes"
	"github.com/user/honeypulse/internal/report"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/util"
)

// PIDFileName is the name of the daemon PID file inside the data dir.
const PIDFileName = "honeypulse.pid"

// Version is the build version reported in status.json. main sets it.
var Version = "dev"

// Daemon manages the capture service: the activity log, the listeners and
// the periodic jobs.
type Daemon struct {
	config    *util.Config
	scheduler *Scheduler
	db        *storage.DB
	activity  *capture.ActivityLogger
	listeners *capture.ListenerManager
	generator *report.Generator
	checker   *probes.PortChecker
	pidFile   string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	running   bool
	stopped   bool
	startTime time.Time
	mu        sync.RWMutex
}

// New creates a new daemon instance. db may be nil, which disables the
// report cache.
func New(cfg *util.Config, db *storage.DB) (*Daemon, error) {
	activity, err := capture.NewActivityLogger(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}

	banners := capture.BannersFromConfig(cfg.Banners)
	listeners := capture.NewListenerManager(capture.ManagerConfig{
		BindAddress:     cfg.BindAddress,
		Ports:           cfg.Ports,
		Banners:         banners,
		IdleTimeout:     cfg.IdleTimeout,
		MaxConnsPerPort: cfg.MaxConnsPerPort,
	}, activity)

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:    cfg,
		db:        db,
		activity:  activity,
		listeners: listeners,
		generator: report.NewGenerator(db, cfg),
		checker:   probes.NewPortChecker(len(cfg.Ports), 3*time.Second, banners),
		pidFile:   filepath.Join(cfg.DataDir, PIDFileName),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	d.scheduler = NewScheduler(ctx)

	return d, nil
}

// OnRecord registers a hook observing every captured record. It must be
// called before Start.
func (d *Daemon) OnRecord(fn func(model.LiveEvent)) {
	d.listeners.OnRecord(fn)
}

// Start binds the monitored ports and starts the periodic jobs. It fails when
// no port could be bound.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		d.abort()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("Daemon starting...")

	statuses, err := d.listeners.Start(d.ctx)
	if err != nil {
		d.abort()
		return fmt.Errorf("failed to start listeners: %w", err)
	}
	for _, st := range statuses {
		if !st.Bound {
			util.Warn("Port %d (%s) is not monitored: %s", st.Port, st.Service, st.Error)
		}
	}

	d.registerJobs()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run()
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleSignals()
	}()

	if err := d.writeStatus(); err != nil {
		util.Warn("Failed to write status file: %v", err)
	}

	util.Info("Daemon started with PID %d, logging to %s", os.Getpid(), d.config.LogDir)

	return nil
}

// abort releases everything acquired by a failed Start.
func (d *Daemon) abort() {
	d.cancel()
	d.listeners.Close()
	d.activity.Close()
	d.removePIDFile()

	d.mu.Lock()
	d.running = false
	d.stopped = true
	d.mu.Unlock()
	close(d.done)
}

// Wait blocks until the daemon is told to stop, then shuts it down.
func (d *Daemon) Wait() {
	<-d.ctx.Done()
	d.Stop()
	<-d.done
}

// Context returns a context cancelled when the daemon begins shutting down.
func (d *Daemon) Context() context.Context {
	return d.ctx
}

// Stop stops the daemon gracefully. In-flight sessions are aborted.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.stopped = true
	d.mu.Unlock()

	util.Info("Daemon stopping...")

	d.cancel()

	var firstErr error
	if err := d.listeners.Close(); err != nil {
		util.Warn("Failed to close listeners: %v", err)
		firstErr = err
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		util.Info("Daemon stopped gracefully")
	case <-time.After(30 * time.Second):
		util.Warn("Daemon stop timed out")
	}

	if err := d.writeStatus(); err != nil {
		util.Warn("Failed to write status file: %v", err)
	}
	if err := d.activity.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close activity log: %w", err)
	}
	d.removePIDFile()

	close(d.done)
	return firstErr
}

func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				util.Info("Received SIGHUP")
				d.refreshAnalysis()
				continue
			}
			util.Info("Received signal: %v", sig)
			d.cancel()
			return
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Daemon) writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.RLock()
	running, startTime := d.running, d.startTime
	d.mu.RUnlock()

	return &DaemonStatus{
		Running:        running,
		Version:        Version,
		PID:            os.Getpid(),
		StartTime:      startTime,
		Uptime:         time.Since(startTime),
		LogDir:         d.config.LogDir,
		CurrentLog:     d.activity.CurrentFile(),
		RecordsWritten: d.activity.Written(),
		Listeners:      d.listeners.Statuses(),
		ActiveSessions: d.listeners.ActiveSessions(),
		Jobs:           d.scheduler.GetJobStatuses(),
	}
}

// DaemonStatus holds the current daemon status.
type DaemonStatus struct {
	Running        bool
	Version        string
	PID            int
	StartTime      time.Time
	Uptime         time.Duration
	LogDir         string
	CurrentLog     string
	RecordsWritten int64
	Listeners      []model.ListenerStatus
	ActiveSessions map[string]int
	Jobs           []JobStatus
}

// Listeners returns the listener manager.
func (d *Daemon) Listeners() *capture.ListenerManager {
	return d.listeners
}

func (d *Daemon) writeStatus() error {
	return WriteStatusFile(d.config.DataDir, d.GetStatus())
}
