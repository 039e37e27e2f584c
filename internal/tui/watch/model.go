package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chachacholly/kairoi/internal/events"
)

const (
	healthInterval = 2 * time.Second
	reconnectDelay = 3 * time.Second
	errorRetry     = 5 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health    healthMsg
	lastCheck time.Time
	connected bool
	lastSeq   int64
	fatal     string
	lastError string

	requests *tracker
	table    table.Model
	theme    Theme

	hubEvents chan events.Event
}

// New creates a watch model for the API at apiURL.
func New(apiURL, apiKey string) Model {
	theme := NewDefaultTheme()

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Request", Width: 36},
			{Title: "Job", Width: 24},
			{Title: "State", Width: 10},
			{Title: "Elapsed", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(styles)

	return Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		requests:  newTracker(),
		table:     t,
		theme:     theme,
		hubEvents: make(chan events.Event, 100),
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(apiURL, apiKey string) error {
	_, err := tea.NewProgram(New(apiURL, apiKey), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(m.height-12, 3))

	case eventMsg:
		ev := events.Event(msg)
		m.connected = true
		m.lastError = ""
		if ev.Seq > m.lastSeq {
			m.lastSeq = ev.Seq
			if ev.Kind == events.ProcessorFatal {
				m.fatal = ev.Detail
			}
			if m.requests.apply(ev) {
				m.table.SetRows(m.tableRows())
			}
		}
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = msg
		m.lastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})

	case streamDownMsg:
		m.connected = false
		m.lastError = "stream disconnected, reconnecting..."
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		// The pending receiveNextEvent keeps reading the same channel.
		return m, subscribe(m.apiURL, m.apiKey, m.lastSeq, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(errorRetry, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})
	}

	return m, nil
}

func (m Model) tableRows() []table.Row {
	rows := make([]table.Row, 0, len(m.requests.order))
	for _, r := range m.requests.rows() {
		elapsed := "-"
		if r.State != stateRunning && !r.Started.IsZero() {
			elapsed = r.Elapsed().Round(time.Millisecond).String()
		}
		rows = append(rows, table.Row{r.ID, r.JobID, r.State, elapsed})
	}
	return rows
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to kairoi..."
	}

	status := m.theme.StatusOK.Render("● live")
	if !m.connected {
		status = m.theme.StatusFailed.Render("○ offline")
	}
	title := lipgloss.JoinHorizontal(lipgloss.Center,
		m.theme.Title.Render("kairoi watch"), " ", status, " ",
		m.theme.Dim.Render(m.apiURL),
	)

	s := m.health.Dispatch
	stats := m.theme.Header.Render(fmt.Sprintf(
		"pending %d  received %d  rejected %d  completed %d  sent %d  ticks %d  overruns %d",
		m.health.Pending, s.Received, s.Rejected, s.Completed, s.Sent, s.Ticks, s.Overruns,
	))
	uptime := m.theme.Dim.Render(fmt.Sprintf("up %s", time.Duration(m.health.UptimeSeconds)*time.Second))

	parts := []string{title, stats, uptime, m.theme.Border.Render(m.table.View())}
	if m.fatal != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" dispatch loop stopped: "+m.fatal))
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
