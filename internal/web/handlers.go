package web

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/daemon"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/report"
	"github.com/user/honeypulse/internal/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errBadLogName = errors.New("invalid log file name")

// Handlers contains HTTP handlers.
type Handlers struct {
	config    *util.Config
	generator *report.Generator
	hub       *Hub
	geo       *GeoLocator
	now       func() time.Time
}

// NewHandlers creates new handlers.
func NewHandlers(cfg *util.Config, gen *report.Generator, hub *Hub, geo *GeoLocator) *Handlers {
	return &Handlers{
		config:    cfg,
		generator: gen,
		hub:       hub,
		geo:       geo,
		now:       time.Now,
	}
}

// Dashboard serves the main dashboard page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := map[string]interface{}{
		"Ports":  h.config.Ports,
		"LogDir": h.config.LogDir,
	}
	if err := getDashboardTemplate().Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Health reports that the server is up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// APIHoneypotData returns the dashboard summary of the latest activity log.
func (h *Handlers) APIHoneypotData(w http.ResponseWriter, r *http.Request) {
	cached, err := h.generator.Generate(model.ReportOptions{})
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	writeJSON(w, report.BuildDashboard(cached.Report, h.now()))
}

// APIGetReport returns the full report of one activity log, the latest by
// default. ?file= selects a log by name.
func (h *Handlers) APIGetReport(w http.ResponseWriter, r *http.Request) {
	path, err := logPath(h.config.LogDir, r.URL.Query().Get("file"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	opts := model.ReportOptions{LogFile: path}
	var cached *model.CachedReport
	if r.URL.Query().Get("refresh") == "true" {
		cached, err = h.generator.Refresh(opts)
	} else {
		cached, err = h.generator.Generate(opts)
	}
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	writeJSON(w, cached)
}

// LogFileInfo describes one activity log file.
type LogFileInfo struct {
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	ModTime    time.Time  `json:"mod_time"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	Stale      bool       `json:"stale"`
}

// APIGetLogs lists the activity log files, newest first.
func (h *Handlers) APIGetLogs(w http.ResponseWriter, r *http.Request) {
	files, err := analysis.ListLogFiles(h.config.LogDir)
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	cached, err := h.generator.Cached()
	if err != nil {
		util.Warn("Failed to list cached reports: %v", err)
	}

	out := make([]LogFileInfo, 0, len(files))
	for i := len(files) - 1; i >= 0; i-- {
		info, err := os.Stat(files[i])
		if err != nil {
			continue
		}
		lf := LogFileInfo{
			Name:    filepath.Base(files[i]),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Stale:   true,
		}
		abs, _ := filepath.Abs(files[i])
		if c, ok := cached[abs]; ok {
			at := c.GeneratedAt
			lf.AnalyzedAt = &at
			lf.Stale = c.FileSize != info.Size() || !c.FileModTime.Equal(info.ModTime().UTC())
		}
		out = append(out, lf)
	}

	writeJSON(w, out)
}

// APIGetStatus returns daemon status.
func (h *Handlers) APIGetStatus(w http.ResponseWriter, r *http.Request) {
	running, pid := daemon.CheckRunning(h.config.DataDir)

	status := map[string]interface{}{
		"running":      running,
		"pid":          pid,
		"log_dir":      h.config.LogDir,
		"live_clients": h.hub.Clients(),
	}

	if sf, err := daemon.ReadStatusFile(h.config.DataDir); err == nil {
		status["listeners"] = sf.Listeners
		status["records_written"] = sf.RecordsWritten
		status["active_sessions"] = sf.ActiveSessions
		status["jobs"] = sf.Jobs
		status["updated_at"] = sf.UpdatedAt
	}

	writeJSON(w, status)
}

// GeoIPHandler handles single IP lookup.
func (h *Handlers) GeoIPHandler(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, errors.New("missing ip parameter"), http.StatusBadRequest)
		return
	}

	geo, err := h.geo.Lookup(r.Context(), ip)
	switch {
	case errors.Is(err, ErrInvalidIP):
		writeError(w, err, http.StatusBadRequest)
	case errors.Is(err, ErrGeoIPDisabled):
		writeError(w, err, http.StatusServiceUnavailable)
	case err != nil:
		writeError(w, err, http.StatusBadGateway)
	default:
		writeJSON(w, geo)
	}
}

// DownloadReport renders the report of one activity log as a file download.
// ?format= selects markdown (default), text or json.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	path, err := logPath(h.config.LogDir, r.URL.Query().Get("file"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatMarkdown
	}

	var contentType, ext string
	switch format {
	case report.FormatMarkdown:
		contentType, ext = "text/markdown; charset=utf-8", "md"
	case report.FormatText:
		contentType, ext = "text/plain; charset=utf-8", "txt"
	case report.FormatJSON:
		contentType, ext = "application/json", "json"
	default:
		writeError(w, fmt.Errorf("unknown report format %q", format), http.StatusBadRequest)
		return
	}

	cached, err := h.generator.Generate(model.ReportOptions{LogFile: path})
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	name := strings.TrimSuffix(filepath.Base(cached.LogFile), ".json")
	name = strings.Replace(name, "honeypot_", "honeypot_analysis_", 1)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", name, ext))
	if err := report.Render(w, cached.Report, format); err != nil {
		util.Warn("Failed to render report: %v", err)
	}
}

// logPath maps a log file name from a request to its path in logDir.
// An empty name selects the latest log.
func logPath(logDir, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if filepath.Base(name) != name || !strings.HasSuffix(name, ".json") {
		return "", fmt.Errorf("%w: %q", errBadLogName, name)
	}
	return filepath.Join(logDir, name), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrNoLogDir),
		errors.Is(err, analysis.ErrNoLogFiles),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, errBadLogName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	if status >= http.StatusInternalServerError {
		util.Error("API error: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
