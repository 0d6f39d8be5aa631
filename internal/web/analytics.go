package web

import (
	"errors"
	"net/http"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/report"
	"github.com/user/honeypulse/internal/util"
)

// AnalyticsHandlers provides analytics API endpoints spanning reports.
type AnalyticsHandlers struct {
	config    *util.Config
	generator *report.Generator
	geo       *GeoLocator
}

// NewAnalyticsHandlers creates analytics handlers.
func NewAnalyticsHandlers(cfg *util.Config, gen *report.Generator, geo *GeoLocator) *AnalyticsHandlers {
	return &AnalyticsHandlers{config: cfg, generator: gen, geo: geo}
}

// GetTrend returns one point per activity log, oldest first.
func (h *AnalyticsHandlers) GetTrend(w http.ResponseWriter, r *http.Request) {
	files, err := analysis.ListLogFiles(h.config.LogDir)
	if err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	writeJSON(w, h.generator.Trend(files, nil))
}

// Attacker is a ranked source address with its location.
type Attacker struct {
	model.IPSummary
	Geo *GeoIP `json:"geo,omitempty"`
}

// GetAttackers returns the most active addresses of a log, located when
// lookups are enabled.
func (h *AnalyticsHandlers) GetAttackers(w http.ResponseWriter, r *http.Request) {
	cached, ok := h.reportFor(w, r)
	if !ok {
		return
	}

	out := make([]Attacker, 0, len(cached.Report.TopIPs))
	for _, ip := range cached.Report.TopIPs {
		a := Attacker{IPSummary: ip}
		geo, err := h.geo.Lookup(r.Context(), ip.IP)
		switch {
		case err == nil:
			a.Geo = geo
		case !errors.Is(err, ErrGeoIPDisabled):
			util.Debug("GeoIP lookup for %s failed: %v", ip.IP, err)
		}
		out = append(out, a)
	}

	writeJSON(w, out)
}

// MermaidDiagram returns a Mermaid chart of a log: ?chart=ports (default)
// or hourly.
func (h *AnalyticsHandlers) MermaidDiagram(w http.ResponseWriter, r *http.Request) {
	cached, ok := h.reportFor(w, r)
	if !ok {
		return
	}

	var chart string
	switch r.URL.Query().Get("chart") {
	case "", "ports":
		chart = report.PortPieChart(cached.Report.Ports)
	case "hourly":
		chart = report.HourlyChart(cached.Report.Hourly)
	default:
		writeError(w, errors.New("unknown chart, want ports or hourly"), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(chart))
}

func (h *AnalyticsHandlers) reportFor(w http.ResponseWriter, r *http.Request) (*model.CachedReport, bool) {
	path, err := logPath(h.config.LogDir, r.URL.Query().Get("file"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return nil, false
	}

	cached, err := h.generator.Generate(model.ReportOptions{LogFile: path})
	if err != nil {
		writeError(w, err, statusFor(err))
		return nil, false
	}
	return cached, true
}
