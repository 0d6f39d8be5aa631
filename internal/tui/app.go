// Package tui provides a terminal dashboard over the latest honeypot report.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/report"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/util"
)

// refreshInterval is how often the dashboard reloads on its own.
const refreshInterval = 30 * time.Second

// reportSource produces the report shown by the dashboard.
type reportSource interface {
	Generate(opts model.ReportOptions) (*model.CachedReport, error)
	Refresh(opts model.ReportOptions) (*model.CachedReport, error)
}

// App is the main TUI application.
type App struct {
	source reportSource
	config *util.Config
}

// NewApp creates a new TUI application. db may be nil, which disables the
// report cache.
func NewApp(db *storage.DB, cfg *util.Config) *App {
	return &App{
		source: report.NewGenerator(db, cfg),
		config: cfg,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.source, a.config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// appModel is the main bubbletea model.
type appModel struct {
	source    reportSource
	config    *util.Config
	dashboard *Dashboard
	viewport  viewport.Model
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(source reportSource, cfg *util.Config) appModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	return appModel{
		source:   source,
		config:   cfg,
		spinner:  s,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
}

// Init initializes the model.
func (m appModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.source, false),
		scheduleRefresh(),
	)
}

// Update handles messages.
func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadData(m.source, true)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 2
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
			m.viewport.SetContent(m.dashboard.View())
		}
		return m, nil

	case dataMsg:
		m.ready = true
		m.err = nil
		m.dashboard = NewDashboard(msg, m.width, m.height)
		m.viewport.SetContent(m.dashboard.View())
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case refreshMsg:
		return m, tea.Batch(loadData(m.source, false), scheduleRefresh())

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the UI.
func (m appModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: "+m.err.Error()) + "\n" +
			HelpStyle.Render("Press 'r' to retry • 'q' to quit")
	}

	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Analyzing activity log...")
	}

	return m.viewport.View() + "\n" +
		HelpStyle.Render("↑/↓ scroll • 'r' re-analyze • 'q' quit")
}

// Messages
type dataMsg struct {
	Report *model.CachedReport
}

type errMsg struct {
	err error
}

type refreshMsg struct{}

func loadData(source reportSource, force bool) tea.Cmd {
	return func() tea.Msg {
		var (
			cached *model.CachedReport
			err    error
		)
		if force {
			cached, err = source.Refresh(model.ReportOptions{})
		} else {
			cached, err = source.Generate(model.ReportOptions{})
		}
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Report: cached}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}
