package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/probes"
	"github.com/user/honeypulse/internal/util"
)

// Job names.
const (
	JobAnalysis   = "analysis"
	JobStatusFile = "status"
	JobSelfCheck  = "selfcheck"
)

const (
	// statusInterval is how often status.json is refreshed.
	statusInterval    = 30 * time.Second
	selfCheckInterval = 5 * time.Minute
)

// registerJobs registers the periodic jobs with the scheduler.
func (d *Daemon) registerJobs() {
	if d.config.AnalysisInterval > 0 {
		d.scheduler.AddJob(&Job{
			Name:     JobAnalysis,
			Interval: d.config.AnalysisInterval,
			Run:      d.runAnalysis,
		})
	}

	d.scheduler.AddJob(&Job{
		Name:     JobStatusFile,
		Interval: statusInterval,
		Run:      d.runStatus,
	})

	d.scheduler.AddJob(&Job{
		Name:     JobSelfCheck,
		Interval: selfCheckInterval,
		Run:      d.runSelfCheck,
	})
}

// refreshAnalysis asks the scheduler to run the analysis job now. It reports
// false when periodic analysis is disabled.
func (d *Daemon) refreshAnalysis() bool {
	if !d.scheduler.TriggerJob(JobAnalysis) {
		util.Warn("Analysis refresh ignored: periodic analysis is disabled (analysis_interval is 0)")
		return false
	}
	util.Info("Refreshing analysis")
	return true
}

// runAnalysis refreshes the cached report of the current activity log.
func (d *Daemon) runAnalysis(ctx context.Context) error {
	cached, err := d.generator.Generate(model.ReportOptions{})
	if errors.Is(err, analysis.ErrNoLogDir) || errors.Is(err, analysis.ErrNoLogFiles) {
		util.Debug("Nothing to analyze yet: %v", err)
		return nil
	}
	if err != nil {
		return err
	}

	rep := cached.Report
	util.WithFields(logrus.Fields{
		"log_file": cached.LogFile,
		"records":  rep.TotalRecords,
		"skipped":  rep.SkippedLines,
		"ips":      len(rep.TopIPs),
	}).Info("Analysis refreshed")

	return ctx.Err()
}

func (d *Daemon) runStatus(ctx context.Context) error {
	return d.writeStatus()
}

// runSelfCheck connects to every bound port and fails when one of them does
// not answer with its greeting.
func (d *Daemon) runSelfCheck(ctx context.Context) error {
	var ports []int
	for _, st := range d.listeners.Statuses() {
		if !st.Bound {
			continue
		}
		if tcp, ok := d.listeners.Addr(st.Port).(*net.TCPAddr); ok {
			ports = append(ports, tcp.Port)
		}
	}
	if len(ports) == 0 {
		return nil
	}

	host := probes.LocalHost(d.config.BindAddress)
	var failed []string
	for _, r := range d.checker.CheckHost(ctx, host, ports) {
		if !r.OK() {
			failed = append(failed, fmt.Sprintf("%d: %s", r.Port, r.Error))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("self-check failed on %s", strings.Join(failed, ", "))
	}

	util.Debug("Self-check passed on %d ports", len(ports))
	return nil
}
