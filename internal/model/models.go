// Package model defines core data structures for honeypulse.
package model

import "time"

// ActivityRecord is one observed inbound payload on a monitored port.
type ActivityRecord struct {
	Timestamp time.Time `json:"timestamp"`
	RemoteIP  string    `json:"remote_ip"`
	Port      int       `json:"port"`
	Data      string    `json:"data"`
}

// IPProfile aggregates all records seen from one source address.
type IPProfile struct {
	IP             string
	TotalAttempts  int
	FirstSeen      time.Time
	LastSeen       time.Time
	TargetedPorts  map[int]struct{}
	UniquePayloads map[string]struct{}
}

// NewIPProfile creates an empty profile for ip.
func NewIPProfile(ip string) *IPProfile {
	return &IPProfile{
		IP:             ip,
		TargetedPorts:  make(map[int]struct{}),
		UniquePayloads: make(map[string]struct{}),
	}
}

// Observe folds one record into the profile. payload must already be trimmed.
func (p *IPProfile) Observe(ts time.Time, port int, payload string) {
	if p.TotalAttempts == 0 || ts.Before(p.FirstSeen) {
		p.FirstSeen = ts
	}
	if p.TotalAttempts == 0 || ts.After(p.LastSeen) {
		p.LastSeen = ts
	}
	p.TotalAttempts++
	p.TargetedPorts[port] = struct{}{}
	p.UniquePayloads[payload] = struct{}{}
}

// SophisticationScore weighs payload diversity above port diversity.
func (p *IPProfile) SophisticationScore() float64 {
	return 0.4*float64(len(p.TargetedPorts)) + 0.6*float64(len(p.UniquePayloads))
}

// PortProfile aggregates all records received on one port.
type PortProfile struct {
	Port           int
	TotalAttempts  int
	UniqueIPs      map[string]struct{}
	UniquePayloads map[string]struct{}
}

// NewPortProfile creates an empty profile for port.
func NewPortProfile(port int) *PortProfile {
	return &PortProfile{
		Port:           port,
		UniqueIPs:      make(map[string]struct{}),
		UniquePayloads: make(map[string]struct{}),
	}
}

// Observe folds one record into the profile. payload must already be trimmed.
func (p *PortProfile) Observe(ip, payload string) {
	p.TotalAttempts++
	p.UniqueIPs[ip] = struct{}{}
	p.UniquePayloads[payload] = struct{}{}
}

// IPSummary is a ranked, serializable view of an IPProfile.
type IPSummary struct {
	IP             string        `json:"ip"`
	TotalAttempts  int           `json:"total_attempts"`
	FirstSeen      time.Time     `json:"first_seen"`
	LastSeen       time.Time     `json:"last_seen"`
	ActiveDuration time.Duration `json:"active_duration"`
	TargetedPorts  []int         `json:"targeted_ports"`
	UniquePayloads []string      `json:"unique_payloads"`
	Score          float64       `json:"sophistication_score"`
}

// PortSummary is a ranked, serializable view of a PortProfile.
type PortSummary struct {
	Port           int `json:"port"`
	TotalAttempts  int `json:"total_attempts"`
	UniqueIPs      int `json:"unique_ips"`
	UniquePayloads int `json:"unique_payloads"`
}

// HourBucket is one entry of the hour-of-day histogram.
type HourBucket struct {
	Hour     int `json:"hour"`
	Attempts int `json:"attempts"`
}

// PayloadCount is one entry of the payload frequency ranking.
type PayloadCount struct {
	Payload   string `json:"payload"`
	Count     int    `json:"count"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Report is the result of one analysis run over a log file.
type Report struct {
	Source       string         `json:"source"`
	TotalRecords int            `json:"total_records"`
	SkippedLines int            `json:"skipped_lines"`
	UniqueIPs    int            `json:"unique_ips"`
	TopIPs       []IPSummary    `json:"top_ips"`
	Ports        []PortSummary  `json:"ports"`
	Hourly       []HourBucket   `json:"hourly"`
	TopPayloads  []PayloadCount `json:"top_payloads"`
}

// CachedReport is a report persisted alongside the state of its source file.
type CachedReport struct {
	ID          int64     `json:"id"`
	LogFile     string    `json:"log_file"`
	FileSize    int64     `json:"file_size"`
	FileModTime time.Time `json:"file_mod_time"`
	GeneratedAt time.Time `json:"generated_at"`
	Report      *Report   `json:"report"`
}

// ListenerStatus describes the outcome of binding one monitored port.
type ListenerStatus struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
	Bound   bool   `json:"bound"`
	Error   string `json:"error,omitempty"`
}

// LiveEvent is an ActivityRecord tagged with the session that produced it.
type LiveEvent struct {
	SessionID string         `json:"session_id"`
	Record    ActivityRecord `json:"record"`
}

// ReportOptions defines options for report rendering.
type ReportOptions struct {
	LogFile string `json:"log_file"`
	Format  string `json:"format"`
	Output  string `json:"output"`
}
