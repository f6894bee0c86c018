package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/aqualogic/internal/controller"
	"github.com/muurk/aqualogic/internal/state"
)

// Messages fed to the dashboard by the decode pipeline
type (
	// StateMsg carries a new state snapshot
	StateMsg struct{ State state.State }

	// DisplayMsg carries the latest LCD line
	DisplayMsg string

	// PanelKeyMsg reports a key event seen on the bus
	PanelKeyMsg struct {
		Code string
		At   time.Time
	}

	// DoneMsg reports that the pipeline stopped
	DoneMsg struct{ Err error }

	tickMsg time.Time
)

const (
	maxEvents     = 8
	statsInterval = time.Second
	indicatorCols = 3
)

// dashboardKeyMap defines key bindings for the dashboard
type dashboardKeyMap struct {
	Clear key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Help, k.Quit}}
}

var dashboardKeys = dashboardKeyMap{
	Clear: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear events")),
	Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more help")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// Dashboard is the live monitor screen
type Dashboard struct {
	source  string
	statsFn func() controller.Stats

	snap    state.State
	stats   controller.Stats
	display string
	events  []string
	err     error
	done    bool

	width   int
	spinner spinner.Model
	help    help.Model
	keys    dashboardKeyMap
}

// NewDashboard creates the monitor screen for source. statsFn is polled
// once a second and may be nil.
func NewDashboard(source string, statsFn func() controller.Stats) Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Dashboard{
		source:  source,
		statsFn: statsFn,
		width:   GetTerminalWidth(),
		spinner: s,
		help:    help.New(),
		keys:    dashboardKeys,
	}
}

// Init implements tea.Model
func (m Dashboard) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(statsInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.help.Width = m.width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Clear):
			m.events = nil
		}
		return m, nil

	case StateMsg:
		m.snap = msg.State
		return m, nil

	case DisplayMsg:
		m.display = string(msg)
		return m, nil

	case PanelKeyMsg:
		m.events = append(m.events, fmt.Sprintf("%s  key %s", msg.At.Format("15:04:05"), msg.Code))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if m.statsFn != nil {
			m.stats = m.statsFn()
		}
		return m, nil

	case tickMsg:
		if m.statsFn != nil {
			m.stats = m.statsFn()
		}
		if m.done {
			return m, nil
		}
		return m, tick()

	case spinner.TickMsg:
		if m.snap.Version > 0 || m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m Dashboard) View() string {
	sections := []string{
		NewHeader("AquaLogic Monitor", "aqualogic monitor", Detail{Key: "Source", Value: m.source}).
			SetWidth(m.width).Render(),
		m.viewReadings(),
		m.viewIndicators(),
		m.viewDisplay(),
		m.viewEvents(),
		m.viewStats(),
	}
	if m.err != nil {
		sections = append(sections, ErrorMessageStyle.Render("Stopped: "+m.err.Error()))
	} else if m.done {
		sections = append(sections, EventStyle.Render("End of stream"))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Dashboard) viewReadings() string {
	if m.snap.Version == 0 && !m.done {
		return m.spinner.View() + " Waiting for controller data..."
	}

	unit := "°" + m.snap.TemperatureUnit.String()
	temp := func(r state.Reading) string {
		if !r.Valid {
			return r.String()
		}
		return r.String() + unit
	}
	chlor := m.snap.ChlorinatorPercent.String()
	if m.snap.ChlorinatorPercent.Valid {
		chlor += "%"
	}

	rows := []string{
		SectionTitleStyle.Render("Readings"),
		ReadingLabelStyle.Render("Pool") + ReadingValueStyle.Render(temp(m.snap.PoolTemperature)),
		ReadingLabelStyle.Render("Air") + ReadingValueStyle.Render(temp(m.snap.AirTemperature)),
		ReadingLabelStyle.Render("Chlorinator") + ReadingValueStyle.Render(chlor),
	}
	return strings.Join(rows, "\n")
}

func (m Dashboard) viewIndicators() string {
	cellWidth := (m.width - 2) / indicatorCols
	cell := lipgloss.NewStyle().Width(cellWidth)

	var rows []string
	var row []string
	for _, ind := range state.AllIndicators() {
		var label string
		if m.snap.IsIndicatorActive(ind) {
			label = IndicatorOnStyle.Render(LitMarker + " " + ind.String())
		} else {
			label = IndicatorOffStyle.Render(UnlitMarker + " " + ind.String())
		}
		row = append(row, cell.Render(label))
		if len(row) == indicatorCols {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return SectionTitleStyle.Render("Indicators") + "\n" + strings.Join(rows, "\n")
}

func (m Dashboard) viewDisplay() string {
	text := m.display
	if text == "" {
		text = " "
	}
	return SectionTitleStyle.Render("Display") + "\n" + DisplayStyle.Render(text)
}

func (m Dashboard) viewEvents() string {
	if len(m.events) == 0 {
		return SectionTitleStyle.Render("Key events") + "\n" + EventStyle.Render("none")
	}
	return SectionTitleStyle.Render("Key events") + "\n" + EventStyle.Render(strings.Join(m.events, "\n"))
}

func (m Dashboard) viewStats() string {
	s := m.stats
	return EventStyle.Render(fmt.Sprintf(
		"frames %d  dropped %d  unknown %d  anomalies %d  skipped %d  changes %d",
		s.Frames, s.Dropped(), s.UnknownFrames, s.EscapeAnomalies, s.SkippedBytes, s.StateChanges,
	))
}

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// NewProgram creates a full-screen program for the dashboard that stops
// when ctx is cancelled
func NewProgram(ctx context.Context, d Dashboard) *tea.Program {
	return tea.NewProgram(d, tea.WithContext(ctx), tea.WithAltScreen())
}

// Forward sends every snapshot from updates to p until ctx ends or
// updates is closed
func Forward(ctx context.Context, p Sender, updates <-chan state.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			p.Send(StateMsg{State: snap})
		}
	}
}
