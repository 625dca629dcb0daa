package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/service"
)

// WatchModel shows the active session and projects its elapsed time and
// amount locally between reads. The database stays the source of truth: the
// projection is replaced by a fresh snapshot after every action and every
// resync interval.
type WatchModel struct {
	ctx      context.Context
	sessions service.SessionService
	resync   time.Duration
	clock    func() time.Time
	keys     KeyMap
	help     help.Model

	active    *service.ActiveSession
	fetchedAt time.Time // local time the snapshot arrived
	now       time.Time
	loaded    bool
	fetching  bool

	err       error
	statusMsg string
}

// NewWatchModel creates a WatchModel. A zero resync disables periodic reads.
func NewWatchModel(ctx context.Context, sessions service.SessionService, resync time.Duration) *WatchModel {
	return &WatchModel{
		ctx:      ctx,
		sessions: sessions,
		resync:   resync,
		clock:    time.Now,
		keys:     DefaultKeyMap,
		help:     help.New(),
	}
}

// RunWatch runs the watch view until the user quits or ctx is cancelled.
func RunWatch(ctx context.Context, sessions service.SessionService, resync time.Duration) error {
	p := tea.NewProgram(NewWatchModel(ctx, sessions, resync), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *WatchModel) fetch() tea.Cmd {
	m.fetching = true
	return func() tea.Msg {
		active, err := m.sessions.Active(m.ctx)
		return snapshotMsg{active: active, err: err}
	}
}

func (m *WatchModel) act(verb string, fn func(context.Context, int64) (*domain.TimeSession, error)) tea.Cmd {
	id := m.active.Session.ID
	return func() tea.Msg {
		s, err := fn(m.ctx, id)
		return actionMsg{verb: verb, session: s, err: err}
	}
}

// Init loads the first snapshot and starts the ticker
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

// Update handles snapshots, ticks and key presses
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.fetching = false
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.active = msg.active
		m.fetchedAt = m.clock()
		m.now = m.fetchedAt
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.resync > 0 && !m.fetching && m.now.Sub(m.fetchedAt) >= m.resync {
			return m, tea.Batch(m.fetch(), tick())
		}
		return m, tick()

	case actionMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.statusMsg = fmt.Sprintf("Session %d %s", msg.session.ID, msg.verb)
			if msg.session.Status == domain.SessionStopped {
				m.statusMsg += fmt.Sprintf(": %s billed, %s",
					formatElapsed(msg.session.Duration()), formatMoney(msg.session.Amount()))
			}
		}
		// Re-read even on failure; a conflict usually means another process moved the session.
		return m, m.fetch()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch()
	}

	m.statusMsg = ""
	if m.active == nil {
		if key.Matches(msg, m.keys.Pause, m.keys.Resume, m.keys.Stop) {
			m.statusMsg = "No active session"
		}
		return m, nil
	}

	status := m.active.Session.Status
	switch {
	case key.Matches(msg, m.keys.Pause):
		if status != domain.SessionRunning {
			m.statusMsg = "Session is not running"
			return m, nil
		}
		return m, m.act("paused", m.sessions.Pause)
	case key.Matches(msg, m.keys.Resume):
		if status != domain.SessionPaused {
			m.statusMsg = "Session is not paused"
			return m, nil
		}
		return m, m.act("resumed", m.sessions.Resume)
	case key.Matches(msg, m.keys.Stop):
		return m, m.act("stopped", m.sessions.Stop)
	}
	return m, nil
}

// Elapsed returns the projected elapsed seconds as of the last tick.
func (m *WatchModel) Elapsed() int64 {
	if m.active == nil {
		return 0
	}
	since := int64(m.now.Sub(m.fetchedAt) / time.Second)
	if since < 0 {
		since = 0
	}
	return m.active.ElapsedSeconds + since
}

// View renders the watch screen
func (m *WatchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("tally") + subtitleStyle.Render("  live timer") + "\n\n")

	switch {
	case !m.loaded:
		b.WriteString(subtitleStyle.Render("Loading...") + "\n")
	case m.active == nil:
		b.WriteString("No active session\n\n")
		b.WriteString(subtitleStyle.Render("Start one with: tally timer start <project> [description]") + "\n")
	default:
		m.renderActive(&b)
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	} else if m.statusMsg != "" {
		b.WriteString("\n" + statusStyle.Render(m.statusMsg) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return appBorderStyle.Render(b.String())
}

func (m *WatchModel) renderActive(b *strings.Builder) {
	s := m.active.Session
	elapsed := m.Elapsed()
	duration := domain.RoundUpToIncrement(elapsed)

	state := timerRunningStyle.Render("● RUNNING")
	if s.Status == domain.SessionPaused {
		state = timerPausedStyle.Render("❚❚ PAUSED")
	}

	row := func(label, value string) {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value) + "\n")
	}

	b.WriteString(state + "  " + timerValueStyle.Render(formatElapsed(elapsed)) + "\n\n")
	project := fmt.Sprintf("#%d", s.ProjectID)
	if m.active.Project != nil {
		project = m.active.Project.Name
	}
	row("Project", truncateStr(project, 40))
	if s.Description != "" {
		row("Description", truncateStr(s.Description, 40))
	}
	row("Started", s.StartTime.Local().Format("15:04:05 Mon Jan 2"))
	row("Rate", formatMoney(s.HourlyRateCents)+"/h")
	row("If stopped", fmt.Sprintf("%s billed, %s", formatElapsed(duration), formatMoney(domain.ProrateCents(duration, s.HourlyRateCents))))
	if !s.IsBillable {
		row("", subtitleStyle.Render("non-billable"))
	}
}
