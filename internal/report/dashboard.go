package report

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/capture"
	"github.com/user/honeypulse/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dashboard limits.
const (
	DashboardPayloads   = 6
	DashboardPayloadLen = 30
)

// Dashboard is the summary consumed by the web dashboard.
type Dashboard struct {
	Timestamp     string          `json:"timestamp"`
	TotalAttacks  int             `json:"totalAttacks"`
	AttackerScore float64         `json:"attackerScore"`
	PortStats     []PortStat      `json:"portStats"`
	PayloadStats  []PayloadStat   `json:"payloadStats"`
	TimelineData  []TimelinePoint `json:"timelineData"`
}

// PortStat is one port entry of the dashboard.
type PortStat struct {
	Port           int    `json:"port"`
	Name           string `json:"name"`
	Attacks        int    `json:"attacks"`
	UniquePayloads int    `json:"uniquePayloads"`
}

// PayloadStat is one payload entry of the dashboard.
type PayloadStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TimelinePoint is one hour of the dashboard timeline.
type TimelinePoint struct {
	Hour    int `json:"hour"`
	Attacks int `json:"attacks"`
}

// BuildDashboard projects rep into the dashboard summary.
func BuildDashboard(rep *model.Report, now time.Time) *Dashboard {
	d := &Dashboard{
		Timestamp:    now.Format("2006-01-02T15:04:05.000000"),
		TotalAttacks: rep.TotalRecords,
		PortStats:    make([]PortStat, 0, len(rep.Ports)),
		PayloadStats: make([]PayloadStat, 0, DashboardPayloads),
		TimelineData: make([]TimelinePoint, 24),
	}

	if len(rep.TopIPs) > 0 {
		d.AttackerScore = rep.TopIPs[0].Score
	}

	for _, p := range rep.Ports {
		d.PortStats = append(d.PortStats, PortStat{
			Port:           p.Port,
			Name:           capture.ServiceName(p.Port),
			Attacks:        p.TotalAttempts,
			UniquePayloads: p.UniquePayloads,
		})
	}

	for i, p := range rep.TopPayloads {
		if i == DashboardPayloads {
			break
		}
		name, _ := analysis.Truncate(p.Payload, DashboardPayloadLen)
		d.PayloadStats = append(d.PayloadStats, PayloadStat{Name: name, Count: p.Count})
	}

	for hour := range d.TimelineData {
		d.TimelineData[hour].Hour = hour
	}
	for _, h := range rep.Hourly {
		if h.Hour >= 0 && h.Hour < 24 {
			d.TimelineData[h.Hour].Attacks = h.Attempts
		}
	}

	return d
}
