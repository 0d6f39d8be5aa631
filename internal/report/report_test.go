package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/util"
)

const sampleLog = `{"timestamp": "2024-03-22T03:00:00", "remote_ip": "10.0.0.5", "port": 21, "data": "USER admin\r\n"}
{"timestamp": "2024-03-22T03:05:00", "remote_ip": "10.0.0.5", "port": 22, "data": "USER root\r\n"}
{"timestamp": "2024-03-22T04:00:00", "remote_ip": "10.0.0.9", "port": 21, "data": "USER admin\r\n"}
`

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfig(logDir string) *util.Config {
	cfg := util.DefaultConfig()
	cfg.LogDir = logDir
	return cfg
}

func sampleReport(t *testing.T) *model.Report {
	t.Helper()
	rep, err := analysis.NewEngine(analysis.Options{}).Analyze(strings.NewReader(sampleLog))
	require.NoError(t, err)
	return rep
}

func TestGeneratorUsesLatestLog(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "honeypot_20240321.json", `{"timestamp": "2024-03-21T01:00:00", "remote_ip": "1.1.1.1", "port": 80, "data": "GET /"}`+"\n")
	latest := writeLog(t, dir, "honeypot_20240322.json", sampleLog)

	g := NewGenerator(nil, testConfig(dir))
	cached, err := g.Generate(model.ReportOptions{})
	require.NoError(t, err)

	assert.Equal(t, latest, cached.LogFile)
	assert.Equal(t, 3, cached.Report.TotalRecords)
	assert.Equal(t, latest, cached.Report.Source)
}

func TestGeneratorTrend(t *testing.T) {
	dir := t.TempDir()
	first := writeLog(t, dir, "honeypot_20240321.json", `{"timestamp": "2024-03-21T01:00:00", "remote_ip": "1.1.1.1", "port": 80, "data": "GET /"}`+"\n")
	second := writeLog(t, dir, "honeypot_20240322.json", sampleLog)
	missing := filepath.Join(dir, "honeypot_20240323.json")

	var seen []string
	g := NewGenerator(nil, testConfig(dir))
	points := g.Trend([]string{first, second, missing}, func(file string) {
		seen = append(seen, file)
	})

	assert.Equal(t, []string{first, second, missing}, seen)
	require.Len(t, points, 2)
	assert.Equal(t, "20240321", points[0].Day)
	assert.Equal(t, "1.1.1.1", points[0].TopIP)
	assert.Equal(t, "honeypot_20240322.json", points[1].LogFile)
	assert.Equal(t, 3, points[1].TotalRecords)
	assert.Equal(t, 2, points[1].UniqueIPs)
	assert.Equal(t, 2, points[1].Ports)
	assert.InDelta(t, 2.0, points[1].TopScore, 1e-9)
}

func TestGeneratorNoLogs(t *testing.T) {
	g := NewGenerator(nil, testConfig(filepath.Join(t.TempDir(), "missing")))
	_, err := g.Generate(model.ReportOptions{})
	assert.ErrorIs(t, err, analysis.ErrNoLogDir)

	g = NewGenerator(nil, testConfig(t.TempDir()))
	_, err = g.Generate(model.ReportOptions{})
	assert.ErrorIs(t, err, analysis.ErrNoLogFiles)
}

func TestGeneratorCache(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "honeypot_20240322.json", sampleLog)

	db, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	g := NewGenerator(db, testConfig(dir))
	first := time.Date(2024, 3, 22, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return first }

	a, err := g.Generate(model.ReportOptions{LogFile: path})
	require.NoError(t, err)

	g.now = func() time.Time { return first.Add(time.Hour) }
	b, err := g.Generate(model.ReportOptions{LogFile: path})
	require.NoError(t, err)
	assert.True(t, b.GeneratedAt.Equal(first), "unchanged file should be served from cache")
	assert.Equal(t, a.Report.TotalRecords, b.Report.TotalRecords)

	// Growing the file invalidates the cache entry.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp": "2024-03-22T05:00:00", "remote_ip": "10.0.0.7", "port": 80, "data": "GET /"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := g.Generate(model.ReportOptions{LogFile: path})
	require.NoError(t, err)
	assert.Equal(t, 4, c.Report.TotalRecords)
	assert.True(t, c.GeneratedAt.Equal(first.Add(time.Hour)))

	d, err := g.Refresh(model.ReportOptions{LogFile: path})
	require.NoError(t, err)
	assert.Equal(t, 4, d.Report.TotalRecords)

	cached, err := g.Cached()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, d.FileSize, cached[d.LogFile].FileSize)

	none, err := NewGenerator(nil, testConfig(dir)).Cached()
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport(t)))
	out := buf.String()

	for _, section := range []string{
		"=== Honeypot Analysis Report ===",
		"Most Active IPs:",
		"Port Targeting Analysis:",
		"Hourly Attack Distribution:",
		"Attacker Sophistication Analysis:",
		"Most Common Payloads:",
	} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "Hour 03: 2 attempts")
	assert.Contains(t, out, "Hour 04: 1 attempts")
	assert.NotContains(t, out, "Hour 05:")
	assert.Contains(t, out, "IP 10.0.0.5: Sophistication Score 2.00")
	assert.Contains(t, out, "IP 10.0.0.9: Sophistication Score 1.00")
	assert.Contains(t, out, "USER admin")
}

func TestRenderFormats(t *testing.T) {
	rep := sampleReport(t)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, FormatJSON))
	var decoded model.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.TotalRecords, decoded.TotalRecords)
	assert.Len(t, decoded.Hourly, 24)

	buf.Reset()
	require.NoError(t, Render(&buf, rep, FormatMarkdown))
	md := buf.String()
	assert.True(t, strings.HasPrefix(md, "# Honeypot Analysis Report"))
	assert.Contains(t, md, "| 10.0.0.5 | 2 |")
	assert.Contains(t, md, "pie title Attempts by port")
	assert.Contains(t, md, "\"21 FTP\" : 2")

	assert.Error(t, Render(&buf, rep, "xml"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "report.md")
	require.NoError(t, WriteFile(path, sampleReport(t), FormatMarkdown))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## Top Payloads")
}

func TestHourlyChart(t *testing.T) {
	chart := HourlyChart(sampleReport(t).Hourly)
	assert.Contains(t, chart, "xychart-beta")
	assert.Contains(t, chart, `"00", "01"`)
	assert.Contains(t, chart, "bar [0, 0, 0, 2, 1, 0")
}

func TestBuildDashboard(t *testing.T) {
	rep := sampleReport(t)
	rep.TopPayloads = append(rep.TopPayloads,
		model.PayloadCount{Payload: strings.Repeat("A", 40), Count: 1},
		model.PayloadCount{Payload: "p3", Count: 1},
		model.PayloadCount{Payload: "p4", Count: 1},
		model.PayloadCount{Payload: "p5", Count: 1},
		model.PayloadCount{Payload: "p6", Count: 1},
	)
	rep.Ports = append(rep.Ports, model.PortSummary{Port: 8080, TotalAttempts: 0})

	now := time.Date(2024, 3, 22, 10, 0, 0, 0, time.UTC)
	d := BuildDashboard(rep, now)

	assert.Equal(t, "2024-03-22T10:00:00.000000", d.Timestamp)
	assert.Equal(t, 3, d.TotalAttacks)
	assert.InDelta(t, 2.0, d.AttackerScore, 1e-9)

	require.Len(t, d.PortStats, 3)
	assert.Equal(t, PortStat{Port: 21, Name: "FTP", Attacks: 2, UniquePayloads: 1}, d.PortStats[0])
	assert.Equal(t, "SSH", d.PortStats[1].Name)
	assert.Equal(t, "Unknown", d.PortStats[2].Name)

	require.Len(t, d.PayloadStats, DashboardPayloads)
	assert.Equal(t, PayloadStat{Name: "USER admin", Count: 2}, d.PayloadStats[0])
	assert.Equal(t, strings.Repeat("A", 30)+"...", d.PayloadStats[2].Name)

	require.Len(t, d.TimelineData, 24)
	assert.Equal(t, TimelinePoint{Hour: 3, Attacks: 2}, d.TimelineData[3])
	assert.Equal(t, TimelinePoint{Hour: 23, Attacks: 0}, d.TimelineData[23])
}

func TestAnalysisFileName(t *testing.T) {
	day := time.Date(2024, 3, 22, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "honeypot_analysis_20240322.txt", AnalysisFileName(day))
}
