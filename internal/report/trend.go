package report

import (
	"path/filepath"
	"strings"

	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/util"
)

// TrendPoint summarizes one day of activity.
type TrendPoint struct {
	Day          string  `json:"day"`
	LogFile      string  `json:"log_file"`
	TotalRecords int     `json:"total_records"`
	SkippedLines int     `json:"skipped_lines"`
	Ports        int     `json:"ports"`
	UniqueIPs    int     `json:"unique_ips"`
	TopIP        string  `json:"top_ip,omitempty"`
	TopScore     float64 `json:"top_score"`
}

// DayOf returns the YYYYMMDD part of an activity log name.
func DayOf(logFile string) string {
	name := filepath.Base(logFile)
	return strings.TrimSuffix(strings.TrimPrefix(name, "honeypot_"), ".json")
}

// Trend analyses every file, reusing cached results, and returns one point
// per readable log in the order given. progress, when set, is called after
// each file.
func (g *Generator) Trend(files []string, progress func(file string)) []TrendPoint {
	points := make([]TrendPoint, 0, len(files))
	for _, file := range files {
		cached, err := g.Generate(model.ReportOptions{LogFile: file})
		if progress != nil {
			progress(file)
		}
		if err != nil {
			util.Warn("Skipping %s in trend: %v", file, err)
			continue
		}
		points = append(points, trendPoint(cached))
	}
	return points
}

func trendPoint(cached *model.CachedReport) TrendPoint {
	rep := cached.Report
	p := TrendPoint{
		Day:          DayOf(cached.LogFile),
		LogFile:      filepath.Base(cached.LogFile),
		TotalRecords: rep.TotalRecords,
		SkippedLines: rep.SkippedLines,
		Ports:        len(rep.Ports),
		UniqueIPs:    rep.UniqueIPs,
	}
	if len(rep.TopIPs) > 0 {
		p.TopIP = rep.TopIPs[0].IP
		p.TopScore = rep.TopIPs[0].Score
	}
	return p
}
