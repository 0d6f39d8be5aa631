package daemon

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/honeypulse/internal/capture"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/util"
)

func testConfig(t *testing.T) *util.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := util.DefaultConfig()
	cfg.DataDir = dir
	cfg.LogDir = filepath.Join(dir, "honeypot_logs")
	cfg.BindAddress = "127.0.0.1"
	cfg.Ports = []int{0}
	return cfg
}

func TestDaemonCapturesAndStops(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, nil)
	require.NoError(t, err)

	var events atomic.Int32
	d.OnRecord(func(model.LiveEvent) { events.Add(1) })

	require.NoError(t, d.Start())
	assert.True(t, d.IsRunning())

	running, pid := CheckRunning(cfg.DataDir)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	addr := d.Listeners().Addr(0)
	require.NotNil(t, addr)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("USER admin\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, capture.RejectReply, reply)
	conn.Close()

	require.Eventually(t, func() bool {
		return d.GetStatus().RecordsWritten == 1 && events.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	status := d.GetStatus()
	require.Len(t, status.Listeners, 1)
	assert.True(t, status.Listeners[0].Bound)
	assert.NotEmpty(t, status.CurrentLog)

	require.NoError(t, d.Stop())
	assert.False(t, d.IsRunning())
	assert.NoError(t, d.Stop(), "second stop is a no-op")

	_, err = os.Stat(filepath.Join(cfg.DataDir, PIDFileName))
	assert.True(t, os.IsNotExist(err))

	sf, err := ReadStatusFile(cfg.DataDir)
	require.NoError(t, err)
	assert.False(t, sf.Running)
	assert.EqualValues(t, 1, sf.RecordsWritten)
	assert.Len(t, sf.BoundPorts(), 1)
	assert.Empty(t, sf.FailedListeners())

	data, err := os.ReadFile(status.CurrentLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":"USER admin\r\n"`)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestDaemonStartFailsWithoutListeners(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Ports = []int{busy.Addr().(*net.TCPAddr).Port}

	d, err := New(cfg, nil)
	require.NoError(t, err)

	err = d.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrNoListeners)
	assert.False(t, d.IsRunning())

	_, err = os.Stat(filepath.Join(cfg.DataDir, PIDFileName))
	assert.True(t, os.IsNotExist(err))

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after a failed start")
	}
}

func TestDaemonWaitReturnsAfterStop(t *testing.T) {
	d, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	require.NoError(t, d.Stop())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestRunAnalysisWithoutLogs(t *testing.T) {
	d, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer d.activity.Close()

	assert.NoError(t, d.runAnalysis(context.Background()))
}

func TestRunAnalysisWithLog(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, nil)
	require.NoError(t, err)
	defer d.activity.Close()

	ts := time.Date(2024, 3, 22, 3, 0, 0, 0, time.UTC)
	require.NoError(t, d.activity.Append(model.ActivityRecord{
		Timestamp: ts, RemoteIP: "10.0.0.5", Port: 21, Data: "USER admin\r\n",
	}))

	assert.NoError(t, d.runAnalysis(context.Background()))
}

func TestRunSelfCheck(t *testing.T) {
	d, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	assert.NoError(t, d.runSelfCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.runSelfCheck(ctx))
}

func jobNames(s *Scheduler) []string {
	var names []string
	for _, st := range s.GetJobStatuses() {
		names = append(names, st.Name)
	}
	return names
}

func TestRegisterJobs(t *testing.T) {
	d, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer d.activity.Close()

	d.registerJobs()
	assert.Equal(t, []string{JobAnalysis, JobStatusFile, JobSelfCheck}, jobNames(d.scheduler))
	assert.True(t, d.refreshAnalysis())
}

func TestRefreshAnalysisDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnalysisInterval = 0
	d, err := New(cfg, nil)
	require.NoError(t, err)
	defer d.activity.Close()

	d.registerJobs()
	assert.Equal(t, []string{JobStatusFile, JobSelfCheck}, jobNames(d.scheduler))
	assert.False(t, d.refreshAnalysis())
}

func newTestScheduler(ctx context.Context) *Scheduler {
	s := NewScheduler(ctx)
	s.tick = 10 * time.Millisecond
	s.initialDelay = 0
	return s
}

func TestSchedulerRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestScheduler(ctx)

	var ok, failed atomic.Int32
	s.AddJob(&Job{Name: "ok", Interval: 20 * time.Millisecond, Run: func(context.Context) error {
		ok.Add(1)
		return nil
	}})
	s.AddJob(&Job{Name: "failing", Interval: time.Hour, Run: func(context.Context) error {
		failed.Add(1)
		return errors.New("boom")
	}})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	require.Eventually(t, func() bool { return ok.Load() >= 2 && failed.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	statuses := s.GetJobStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "ok", statuses[0].Name)
	assert.Empty(t, statuses[0].LastError)
	assert.Equal(t, "failing", statuses[1].Name)
	assert.Equal(t, "boom", statuses[1].LastError)
	assert.Equal(t, 1, statuses[1].ErrorCount)
	assert.Equal(t, 1, statuses[1].RunCount)
	assert.GreaterOrEqual(t, statuses[0].RunCount, 2)
	assert.True(t, statuses[1].NextRun.After(time.Now().Add(10*time.Minute)))
}

func TestSchedulerTriggerJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx)
	s.tick = time.Hour

	var runs atomic.Int32
	s.AddJob(&Job{Name: "status", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	assert.False(t, s.TriggerJob("missing"))
	assert.True(t, s.TriggerJob("status"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Minute, retryDelay(time.Hour, 1))
	assert.Equal(t, 15*time.Minute, retryDelay(time.Hour, 2))
	assert.Equal(t, retryDelay(time.Hour, maxBackoffSteps), retryDelay(time.Hour, 10))
}

func TestStatusFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	status := &DaemonStatus{
		Running:        true,
		Version:        "1.0.0",
		PID:            42,
		StartTime:      time.Now().Add(-time.Minute),
		Uptime:         time.Minute,
		LogDir:         "/var/lib/honeypulse/honeypot_logs",
		RecordsWritten: 7,
		Listeners: []model.ListenerStatus{
			{Port: 21, Service: "FTP", Bound: true},
			{Port: 22, Service: "SSH", Error: "address already in use"},
		},
		ActiveSessions: map[string]int{"10.0.0.5": 2},
	}
	require.NoError(t, WriteStatusFile(dir, status))

	sf, err := ReadStatusFile(dir)
	require.NoError(t, err)
	assert.True(t, sf.Running)
	assert.Equal(t, 42, sf.PID)
	assert.Equal(t, "1m0s", sf.Uptime)
	assert.Equal(t, []int{21}, sf.BoundPorts())
	require.Len(t, sf.FailedListeners(), 1)
	assert.Equal(t, 22, sf.FailedListeners()[0].Port)
	assert.Equal(t, 2, sf.ActiveSessions["10.0.0.5"])
	assert.Equal(t, "1.0.0", sf.Version)
}

func TestStatusFileVersionMismatch(t *testing.T) {
	sf := &StatusFile{Version: "1.0.0"}
	assert.False(t, sf.VersionMismatch("v1.0.0"))
	assert.True(t, sf.VersionMismatch("1.1.0"))
	assert.False(t, sf.VersionMismatch("dev"))

	sf.Version = ""
	assert.False(t, sf.VersionMismatch("1.0.0"))
}

func TestCheckRunningWithoutPIDFile(t *testing.T) {
	running, pid := CheckRunning(t.TempDir())
	assert.False(t, running)
	assert.Zero(t, pid)
	assert.Error(t, SendStop(t.TempDir()))
}
