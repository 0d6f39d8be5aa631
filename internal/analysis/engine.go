// Package analysis turns a day's activity log into attacker, port and
// temporal profiles.
package analysis

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults used when Options leave a field zero.
const (
	DefaultTopN              = 10
	DefaultPayloadDisplayLen = 50
	TruncationMarker         = "..."
)

// Timestamp layouts accepted in the timestamp field, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Options tunes report assembly.
type Options struct {
	TopN              int
	PayloadDisplayLen int
}

// Engine builds Reports from activity log files. It holds no state between runs.
type Engine struct {
	topN       int
	displayLen int
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options) *Engine {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.PayloadDisplayLen <= 0 {
		opts.PayloadDisplayLen = DefaultPayloadDisplayLen
	}
	return &Engine{topN: opts.TopN, displayLen: opts.PayloadDisplayLen}
}

// rawRecord mirrors a log line; pointers detect missing fields.
type rawRecord struct {
	Timestamp *string `json:"timestamp"`
	RemoteIP  *string `json:"remote_ip"`
	Port      *int    `json:"port"`
	Data      *string `json:"data"`
}

// ParseLine decodes one log line. It fails on malformed JSON and on missing
// or unparsable required fields.
func ParseLine(line []byte) (model.ActivityRecord, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return model.ActivityRecord{}, fmt.Errorf("malformed record: %w", err)
	}
	if raw.Timestamp == nil || raw.RemoteIP == nil || raw.Port == nil || raw.Data == nil {
		return model.ActivityRecord{}, errors.New("record is missing required fields")
	}
	ts, err := parseTimestamp(*raw.Timestamp)
	if err != nil {
		return model.ActivityRecord{}, err
	}
	return model.ActivityRecord{
		Timestamp: ts,
		RemoteIP:  *raw.RemoteIP,
		Port:      *raw.Port,
		Data:      *raw.Data,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// aggregates is the per-run state, discarded once the Report is built.
type aggregates struct {
	ips          map[string]*model.IPProfile
	ipOrder      []string
	ports        map[int]*model.PortProfile
	portOrder    []int
	hourly       [24]int
	payloads     map[string]int
	payloadOrder []string
	records      int
	skipped      int
}

func newAggregates() *aggregates {
	return &aggregates{
		ips:      make(map[string]*model.IPProfile),
		ports:    make(map[int]*model.PortProfile),
		payloads: make(map[string]int),
	}
}

func (a *aggregates) add(rec model.ActivityRecord) {
	payload := strings.TrimSpace(rec.Data)

	ip, ok := a.ips[rec.RemoteIP]
	if !ok {
		ip = model.NewIPProfile(rec.RemoteIP)
		a.ips[rec.RemoteIP] = ip
		a.ipOrder = append(a.ipOrder, rec.RemoteIP)
	}
	ip.Observe(rec.Timestamp, rec.Port, payload)

	port, ok := a.ports[rec.Port]
	if !ok {
		port = model.NewPortProfile(rec.Port)
		a.ports[rec.Port] = port
		a.portOrder = append(a.portOrder, rec.Port)
	}
	port.Observe(rec.RemoteIP, payload)

	a.hourly[rec.Timestamp.Hour()]++

	if payload != "" {
		if _, seen := a.payloads[payload]; !seen {
			a.payloadOrder = append(a.payloadOrder, payload)
		}
		a.payloads[payload]++
	}

	a.records++
}

// AnalyzeFile reads the log at path and builds its Report.
func (e *Engine) AnalyzeFile(path string) (*model.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	report, err := e.Analyze(f)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", path, err)
	}
	report.Source = path
	return report, nil
}

// Analyze builds a Report from newline-delimited records in r, in one pass.
// Lines that do not hold a well-formed record are counted and skipped.
func (e *Engine) Analyze(r io.Reader) (*model.Report, error) {
	agg := newAggregates()
	reader := bufio.NewReader(r)

	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			rec, perr := ParseLine(line)
			if perr != nil {
				agg.skipped++
				util.Debug("Skipping log line: %v", perr)
			} else {
				agg.add(rec)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return e.build(agg), nil
}

func (e *Engine) build(agg *aggregates) *model.Report {
	report := &model.Report{
		TotalRecords: agg.records,
		SkippedLines: agg.skipped,
		UniqueIPs:    len(agg.ipOrder),
		TopIPs:       e.topIPs(agg),
		Ports:        rankPorts(agg),
		Hourly:       make([]model.HourBucket, 24),
		TopPayloads:  e.topPayloads(agg),
	}
	for hour, n := range agg.hourly {
		report.Hourly[hour] = model.HourBucket{Hour: hour, Attempts: n}
	}
	return report
}

func (e *Engine) topIPs(agg *aggregates) []model.IPSummary {
	profiles := make([]*model.IPProfile, 0, len(agg.ipOrder))
	for _, ip := range agg.ipOrder {
		profiles = append(profiles, agg.ips[ip])
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].TotalAttempts > profiles[j].TotalAttempts
	})
	if len(profiles) > e.topN {
		profiles = profiles[:e.topN]
	}

	out := make([]model.IPSummary, 0, len(profiles))
	for _, p := range profiles {
		ports := make([]int, 0, len(p.TargetedPorts))
		for port := range p.TargetedPorts {
			ports = append(ports, port)
		}
		sort.Ints(ports)

		payloads := make([]string, 0, len(p.UniquePayloads))
		for payload := range p.UniquePayloads {
			payloads = append(payloads, payload)
		}
		sort.Strings(payloads)

		out = append(out, model.IPSummary{
			IP:             p.IP,
			TotalAttempts:  p.TotalAttempts,
			FirstSeen:      p.FirstSeen,
			LastSeen:       p.LastSeen,
			ActiveDuration: p.LastSeen.Sub(p.FirstSeen),
			TargetedPorts:  ports,
			UniquePayloads: payloads,
			Score:          p.SophisticationScore(),
		})
	}
	return out
}

func rankPorts(agg *aggregates) []model.PortSummary {
	out := make([]model.PortSummary, 0, len(agg.portOrder))
	for _, port := range agg.portOrder {
		p := agg.ports[port]
		out = append(out, model.PortSummary{
			Port:           p.Port,
			TotalAttempts:  p.TotalAttempts,
			UniqueIPs:      len(p.UniqueIPs),
			UniquePayloads: len(p.UniquePayloads),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalAttempts > out[j].TotalAttempts
	})
	return out
}

func (e *Engine) topPayloads(agg *aggregates) []model.PayloadCount {
	out := make([]model.PayloadCount, 0, len(agg.payloadOrder))
	for _, payload := range agg.payloadOrder {
		out = append(out, model.PayloadCount{Payload: payload, Count: agg.payloads[payload]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if len(out) > e.topN {
		out = out[:e.topN]
	}
	for i := range out {
		out[i].Payload, out[i].Truncated = Truncate(out[i].Payload, e.displayLen)
	}
	return out
}

// Truncate shortens s to max runes followed by the truncation marker.
func Truncate(s string, max int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	return string(runes[:max]) + TruncationMarker, true
}
