package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blang/semver"
	jsoniter "github.com/json-iterator/go"

	"github.com/user/honeypulse/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusFileName is the name of the daemon status snapshot inside the data dir.
const StatusFileName = "status.json"

// CheckRunning checks if the daemon is already running.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, PIDFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// Signal 0 only checks that the process exists.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}

	return true, pid
}

// SendStop sends a stop signal to the running daemon.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	return nil
}

// StatusFile holds serialized daemon status.
type StatusFile struct {
	Running        bool                   `json:"running"`
	Version        string                 `json:"version"`
	PID            int                    `json:"pid"`
	StartTime      string                 `json:"start_time"`
	Uptime         string                 `json:"uptime"`
	UpdatedAt      string                 `json:"updated_at"`
	LogDir         string                 `json:"log_dir"`
	CurrentLog     string                 `json:"current_log,omitempty"`
	RecordsWritten int64                  `json:"records_written"`
	Listeners      []model.ListenerStatus `json:"listeners"`
	ActiveSessions map[string]int         `json:"active_sessions"`
	Jobs           []JobStatus            `json:"jobs"`
}

// BoundPorts returns the ports that are being monitored.
func (sf *StatusFile) BoundPorts() []int {
	var ports []int
	for _, l := range sf.Listeners {
		if l.Bound {
			ports = append(ports, l.Port)
		}
	}
	return ports
}

// FailedListeners returns the ports that could not be bound.
func (sf *StatusFile) FailedListeners() []model.ListenerStatus {
	var failed []model.ListenerStatus
	for _, l := range sf.Listeners {
		if !l.Bound {
			failed = append(failed, l)
		}
	}
	return failed
}

// VersionMismatch reports whether the daemon that wrote the status runs a
// different release than cli. Unparsable versions never mismatch.
func (sf *StatusFile) VersionMismatch(cli string) bool {
	daemonVer, err := semver.ParseTolerant(sf.Version)
	if err != nil {
		return false
	}
	cliVer, err := semver.ParseTolerant(cli)
	if err != nil {
		return false
	}
	return !daemonVer.Equals(cliVer)
}

// WriteStatusFile writes the daemon status to a file.
func WriteStatusFile(dataDir string, status *DaemonStatus) error {
	sf := StatusFile{
		Running:        status.Running,
		Version:        status.Version,
		PID:            status.PID,
		StartTime:      status.StartTime.Format("2006-01-02 15:04:05"),
		Uptime:         status.Uptime.Round(time.Second).String(),
		UpdatedAt:      time.Now().Format("2006-01-02 15:04:05"),
		LogDir:         status.LogDir,
		CurrentLog:     status.CurrentLog,
		RecordsWritten: status.RecordsWritten,
		Listeners:      status.Listeners,
		ActiveSessions: status.ActiveSessions,
		Jobs:           status.Jobs,
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial file.
	path := filepath.Join(dataDir, StatusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatusFile reads the daemon status from a file.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, StatusFileName))
	if err != nil {
		return nil, err
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}

	return &sf, nil
}
