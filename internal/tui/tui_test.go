package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/util"
)

const sampleLog = `{"timestamp": "2024-03-22T03:00:00", "remote_ip": "10.0.0.5", "port": 21, "data": "USER admin\r\n"}
{"timestamp": "2024-03-22T03:05:00", "remote_ip": "10.0.0.5", "port": 22, "data": "USER root\r\n"}
{"timestamp": "2024-03-22T04:00:00", "remote_ip": "10.0.0.9", "port": 21, "data": "USER admin\r\n"}
`

type fakeSource struct {
	cached    *model.CachedReport
	err       error
	refreshed int
}

func (f *fakeSource) Generate(model.ReportOptions) (*model.CachedReport, error) {
	return f.cached, f.err
}

func (f *fakeSource) Refresh(model.ReportOptions) (*model.CachedReport, error) {
	f.refreshed++
	return f.cached, f.err
}

func sampleCached(t *testing.T) *model.CachedReport {
	t.Helper()
	rep, err := analysis.NewEngine(analysis.Options{}).Analyze(strings.NewReader(sampleLog))
	require.NoError(t, err)
	return &model.CachedReport{
		LogFile:     "/var/lib/honeypulse/honeypot_logs/honeypot_20240322.json",
		GeneratedAt: time.Date(2024, 3, 22, 12, 0, 0, 0, time.UTC),
		Report:      rep,
	}
}

func TestDashboardView(t *testing.T) {
	d := NewDashboard(dataMsg{Report: sampleCached(t)}, 120, 40)
	view := d.View()

	assert.Contains(t, view, "HoneyPulse Dashboard")
	assert.Contains(t, view, "honeypot_20240322.json")
	assert.Contains(t, view, "FTP")
	assert.Contains(t, view, "10.0.0.5")
	assert.Contains(t, view, "2.00")
	assert.Contains(t, view, `"USER admin"`)
}

func TestDashboardViewEmptyReport(t *testing.T) {
	rep, err := analysis.NewEngine(analysis.Options{}).Analyze(strings.NewReader(""))
	require.NoError(t, err)

	d := NewDashboard(dataMsg{Report: &model.CachedReport{Report: rep}}, 80, 24)
	view := d.View()
	assert.Contains(t, view, "No activity recorded yet")
	assert.Contains(t, view, "No payloads captured yet")
}

func TestModelLoadsAndRefreshes(t *testing.T) {
	src := &fakeSource{cached: sampleCached(t)}
	m := newModel(src, util.DefaultConfig())

	msg := loadData(src, false)()
	require.IsType(t, dataMsg{}, msg)

	updated, _ := m.Update(msg)
	m = updated.(appModel)
	assert.True(t, m.ready)
	assert.NotNil(t, m.dashboard)
	assert.Contains(t, m.View(), "re-analyze")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, src.refreshed)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelShowsError(t *testing.T) {
	src := &fakeSource{err: analysis.ErrNoLogFiles}
	m := newModel(src, util.DefaultConfig())

	msg := loadData(src, false)()
	errM, ok := msg.(errMsg)
	require.True(t, ok)
	assert.True(t, errors.Is(errM.err, analysis.ErrNoLogFiles))

	updated, _ := m.Update(msg)
	assert.Contains(t, updated.View(), "no log files found")
}

func TestRenderBar(t *testing.T) {
	assert.Contains(t, RenderBar(5, 10, 10), strings.Repeat("█", 5)+strings.Repeat("░", 5))
	assert.Contains(t, RenderBar(20, 10, 4), strings.Repeat("█", 4))
	assert.Contains(t, RenderBar(0, 0, 3), strings.Repeat("░", 3))
}
