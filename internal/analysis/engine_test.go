package analysis

import (
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(ts, ip string, port int, data string) string {
	b, _ := stdjson.Marshal(map[string]interface{}{
		"timestamp": ts,
		"remote_ip": ip,
		"port":      port,
		"data":      data,
	})
	return string(b) + "\n"
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "honeypot_20240322.json")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "")), 0644))
	return path
}

func TestScenarioSingleAttacker(t *testing.T) {
	path := writeLog(t,
		logLine("2024-03-22T03:10:00", "10.0.0.5", 21, "USER admin\r\n"),
		logLine("2024-03-22T04:20:00", "10.0.0.5", 22, "USER root\r\n"),
	)

	report, err := NewEngine(Options{}).AnalyzeFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, report.Source)
	assert.Equal(t, 2, report.TotalRecords)
	assert.Equal(t, 1, report.UniqueIPs)
	require.Len(t, report.TopIPs, 1)
	ip := report.TopIPs[0]
	assert.Equal(t, "10.0.0.5", ip.IP)
	assert.Equal(t, 2, ip.TotalAttempts)
	assert.Equal(t, []int{21, 22}, ip.TargetedPorts)
	assert.Equal(t, []string{"USER admin", "USER root"}, ip.UniquePayloads)
	assert.InDelta(t, 2.0, ip.Score, 1e-9)
	assert.Equal(t, "1h10m0s", ip.ActiveDuration.String())
	assert.True(t, !ip.FirstSeen.After(ip.LastSeen))

	require.Len(t, report.Hourly, 24)
	assert.Equal(t, 1, report.Hourly[3].Attempts)
	assert.Equal(t, 1, report.Hourly[4].Attempts)
	assert.Equal(t, 3, report.Hourly[3].Hour)
}

func TestSophisticationScore(t *testing.T) {
	var lines []string
	ports := []int{21, 22, 80}
	for i := 0; i < 5; i++ {
		lines = append(lines, logLine("2024-03-22T10:00:00", "1.1.1.1", ports[i%3], fmt.Sprintf("payload-%d", i)))
	}
	report, err := NewEngine(Options{}).Analyze(strings.NewReader(strings.Join(lines, "")))
	require.NoError(t, err)
	require.Len(t, report.TopIPs, 1)
	assert.InDelta(t, 4.2, report.TopIPs[0].Score, 1e-9)
}

func TestTopIPsStableUnderTies(t *testing.T) {
	input := logLine("2024-03-22T01:00:00", "b", 21, "x") +
		logLine("2024-03-22T01:00:00", "a", 21, "x") +
		logLine("2024-03-22T01:00:00", "c", 21, "x") +
		logLine("2024-03-22T01:00:00", "c", 21, "y")

	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, report.TopIPs, 3)
	assert.Equal(t, "c", report.TopIPs[0].IP)
	assert.Equal(t, "b", report.TopIPs[1].IP)
	assert.Equal(t, "a", report.TopIPs[2].IP)
}

func TestTopNLimits(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		for j := 0; j <= i; j++ {
			b.WriteString(logLine("2024-03-22T01:00:00", fmt.Sprintf("10.0.0.%d", i), 80, fmt.Sprintf("p%d", i)))
		}
	}
	report, err := NewEngine(Options{}).Analyze(strings.NewReader(b.String()))
	require.NoError(t, err)

	require.Len(t, report.TopIPs, 10)
	assert.Equal(t, "10.0.0.14", report.TopIPs[0].IP)
	assert.Equal(t, 15, report.TopIPs[0].TotalAttempts)
	require.Len(t, report.TopPayloads, 10)
	assert.Equal(t, "p14", report.TopPayloads[0].Payload)

	report, err = NewEngine(Options{TopN: 3}).Analyze(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, report.TopIPs, 3)
	assert.Len(t, report.TopPayloads, 3)
}

func TestPortsRankedByAttempts(t *testing.T) {
	input := logLine("2024-03-22T01:00:00", "a", 80, "GET /") +
		logLine("2024-03-22T01:00:00", "a", 22, "x") +
		logLine("2024-03-22T01:00:00", "b", 22, "x") +
		logLine("2024-03-22T01:00:00", "c", 443, "y") +
		logLine("2024-03-22T01:00:00", "c", 22, "z")

	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, report.Ports, 3)
	assert.Equal(t, 22, report.Ports[0].Port)
	assert.Equal(t, 3, report.Ports[0].TotalAttempts)
	assert.Equal(t, 3, report.Ports[0].UniqueIPs)
	assert.Equal(t, 2, report.Ports[0].UniquePayloads)
	assert.Equal(t, 80, report.Ports[1].Port)
	assert.Equal(t, 443, report.Ports[2].Port)
}

func TestPayloadFrequency(t *testing.T) {
	long := strings.Repeat("x", 60)
	input := logLine("2024-03-22T01:00:00", "a", 21, "  USER admin\r\n") +
		logLine("2024-03-22T01:00:00", "b", 21, "USER admin") +
		logLine("2024-03-22T01:00:00", "b", 21, "\r\n") +
		logLine("2024-03-22T01:00:00", "c", 80, long)

	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, report.TopPayloads, 2)
	assert.Equal(t, "USER admin", report.TopPayloads[0].Payload)
	assert.Equal(t, 2, report.TopPayloads[0].Count)
	assert.False(t, report.TopPayloads[0].Truncated)
	assert.Equal(t, strings.Repeat("x", 50)+"...", report.TopPayloads[1].Payload)
	assert.True(t, report.TopPayloads[1].Truncated)

	// The empty payload still counts as distinct for the attacker profile.
	for _, ip := range report.TopIPs {
		if ip.IP == "b" {
			assert.Equal(t, []string{"", "USER admin"}, ip.UniquePayloads)
		}
	}
}

func TestPayloadTiesKeepFirstSeenOrder(t *testing.T) {
	input := logLine("2024-03-22T01:00:00", "a", 21, "PASS x") +
		logLine("2024-03-22T01:00:00", "b", 22, "SSH-2.0") +
		logLine("2024-03-22T01:00:00", "c", 80, "GET /") +
		logLine("2024-03-22T01:00:01", "c", 80, "GET /")

	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)

	var got []string
	for _, p := range report.TopPayloads {
		got = append(got, p.Payload)
	}
	assert.Equal(t, []string{"GET /", "PASS x", "SSH-2.0"}, got)
}

func TestHistogramSumsToRecords(t *testing.T) {
	var b strings.Builder
	for h := 0; h < 24; h++ {
		for i := 0; i <= h%3; i++ {
			b.WriteString(logLine(fmt.Sprintf("2024-03-22T%02d:15:00", h), "a", 21, "x"))
		}
	}
	b.WriteString("garbage\n")

	report, err := NewEngine(Options{}).Analyze(strings.NewReader(b.String()))
	require.NoError(t, err)

	sum := 0
	for i, bucket := range report.Hourly {
		assert.Equal(t, i, bucket.Hour)
		sum += bucket.Attempts
	}
	assert.Equal(t, report.TotalRecords, sum)
	assert.Equal(t, 1, report.SkippedLines)
}

func TestMalformedLinesDoNotChangeReport(t *testing.T) {
	first := logLine("2024-03-22T01:00:00", "a", 21, "USER a")
	second := logLine("2024-03-22T02:00:00", "b", 22, "USER b")

	clean, err := NewEngine(Options{}).Analyze(strings.NewReader(first + second))
	require.NoError(t, err)

	noisy, err := NewEngine(Options{}).Analyze(strings.NewReader(first +
		"not json at all\n" +
		`{"timestamp":"2024-03-22T01:00:00","remote_ip":"x","port":21}` + "\n" +
		`{"timestamp":"yesterday","remote_ip":"x","port":21,"data":"d"}` + "\n" +
		`{"timestamp":"2024-03-22T01:00:00","remote_ip":"x","port":"21","data":"d"}` + "\n" +
		"\n" +
		second))
	require.NoError(t, err)

	assert.Equal(t, 4, noisy.SkippedLines)
	noisy.SkippedLines = 0
	assert.Equal(t, clean, noisy)
}

func TestPartialLastLineIsSkipped(t *testing.T) {
	input := logLine("2024-03-22T01:00:00", "a", 21, "USER a") +
		`{"timestamp":"2024-03-22T01:00:01","remote_ip":"a","po`

	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalRecords)
	assert.Equal(t, 1, report.SkippedLines)
}

func TestUnterminatedValidLastLineIsKept(t *testing.T) {
	input := strings.TrimSuffix(logLine("2024-03-22T01:00:00", "a", 21, "USER a"), "\n")
	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalRecords)
}

func TestAnalysisIsIdempotent(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(logLine(
			fmt.Sprintf("2024-03-22T%02d:00:00.123456+02:00", i%24),
			fmt.Sprintf("192.168.0.%d", i%7),
			[]int{21, 22, 80, 443}[i%4],
			fmt.Sprintf("cmd %d", i%5)))
	}
	path := writeLog(t, b.String())

	engine := NewEngine(Options{})
	first, err := engine.AnalyzeFile(path)
	require.NoError(t, err)
	second, err := engine.AnalyzeFile(path)
	require.NoError(t, err)

	a, err := stdjson.Marshal(first)
	require.NoError(t, err)
	c, err := stdjson.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))
}

func TestTimestampOffsetKeepsWrittenHour(t *testing.T) {
	input := logLine("2024-03-22T23:30:00.5+05:30", "a", 21, "x")
	report, err := NewEngine(Options{}).Analyze(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Hourly[23].Attempts)
}

func TestParseLine(t *testing.T) {
	rec, err := ParseLine([]byte(`{"timestamp":"2024-03-22T12:00:00Z","remote_ip":"1.2.3.4","port":443,"data":"\u0016\u0003"}`))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", rec.RemoteIP)
	assert.Equal(t, 443, rec.Port)
	assert.Equal(t, 12, rec.Timestamp.Hour())

	_, err = ParseLine([]byte(`{"timestamp":"2024-03-22T12:00:00Z","remote_ip":"1.2.3.4","port":443,"data":null}`))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	s, cut := Truncate("héllo wörld", 5)
	assert.Equal(t, "héllo...", s)
	assert.True(t, cut)

	s, cut = Truncate("short", 50)
	assert.Equal(t, "short", s)
	assert.False(t, cut)
}

func TestAnalyzeFileMissing(t *testing.T) {
	_, err := NewEngine(Options{}).AnalyzeFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLatestLogFile(t *testing.T) {
	dir := t.TempDir()

	_, err := LatestLogFile(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNoLogDir)

	_, err = LatestLogFile(dir)
	assert.ErrorIs(t, err, ErrNoLogFiles)

	for _, name := range []string{"honeypot_20240321.json", "honeypot_20240323.json", "honeypot_20240322.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	latest, err := LatestLogFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "honeypot_20240323.json"), latest)

	files, err := ListLogFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}
