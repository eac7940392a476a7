// Package tui renders a live view of a bootstrap run.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/bootstrap/internal/bootstrap"
	"github.com/kingrea/bootstrap/internal/unit"
)

var (
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	layerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Underline(true)
)

type unitState int

const (
	statePending unitState = iota
	stateRunning
	stateDone
	stateFailed
)

type row struct {
	kind     unit.Kind
	priority int
	async    bool
	state    unitState
	elapsed  time.Duration
	err      error
}

type eventMsg bootstrap.Event

type eventsClosedMsg struct{}

type runFinishedMsg struct {
	err error
}

// Model is the Bubble Tea model for a single run.
type Model struct {
	title    string
	runID    string
	rows     []row
	index    map[unit.Kind]int
	spinner  spinner.Model
	events   <-chan bootstrap.Event
	result   <-chan error
	cancel   func()
	drained  bool
	finished bool
	err      error
}

// New builds a model listing every unit in layers. events feeds unit updates
// and result delivers the return value of Manager.Run. cancel, when set, is
// called if the user quits before the run finishes.
func New(title string, layers []bootstrap.Layer, events <-chan bootstrap.Event, result <-chan error, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyleRunning
	m := Model{
		title:   title,
		index:   map[unit.Kind]int{},
		spinner: s,
		events:  events,
		result:  result,
		cancel:  cancel,
		drained: events == nil,
	}
	for _, layer := range layers {
		for _, e := range layer.Entries {
			if _, seen := m.index[e.Kind()]; seen {
				continue
			}
			m.index[e.Kind()] = len(m.rows)
			m.rows = append(m.rows, row{kind: e.Kind(), priority: e.Priority, async: e.Unit.IsAsync()})
		}
	}
	return m
}

// Err returns the run error once the run has finished.
func (m Model) Err() error {
	return m.err
}

// Finished reports whether the run returned.
func (m Model) Finished() bool {
	return m.finished
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), waitForResult(m.result))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.finished && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.apply(bootstrap.Event(msg))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		m.drained = true
		return m, m.quitWhenSettled()
	case runFinishedMsg:
		m.finished = true
		m.err = msg.err
		return m, m.quitWhenSettled()
	}
	return m, nil
}

// quitWhenSettled exits once the run returned and every event was shown.
func (m Model) quitWhenSettled() tea.Cmd {
	if m.finished && m.drained {
		return tea.Quit
	}
	return nil
}

func (m *Model) apply(ev bootstrap.Event) {
	if m.runID == "" {
		m.runID = ev.RunID
	}
	idx, ok := m.index[ev.Kind]
	if !ok {
		idx = len(m.rows)
		m.index[ev.Kind] = idx
		m.rows = append(m.rows, row{kind: ev.Kind, priority: ev.Priority, async: ev.Async})
	}
	r := &m.rows[idx]
	switch ev.Type {
	case bootstrap.EventDispatched:
		if r.state == statePending {
			r.state = stateRunning
		}
	case bootstrap.EventCompleted:
		r.state = stateDone
		r.elapsed = ev.Elapsed
	case bootstrap.EventFailed:
		r.state = stateFailed
		r.elapsed = ev.Elapsed
		r.err = ev.Err
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	if m.runID != "" {
		b.WriteString(" " + detailTextStyle.Render(m.runID))
	}
	b.WriteString("\n\n")

	lastPriority, first := 0, true
	done := 0
	for _, r := range m.rows {
		if first || r.priority != lastPriority {
			b.WriteString(layerStyle.Render(fmt.Sprintf("priority %d", r.priority)) + "\n")
			lastPriority, first = r.priority, false
		}
		if r.state == stateDone {
			done++
		}
		b.WriteString("  " + m.label(r) + " " + string(r.kind))
		if r.async {
			b.WriteString(detailTextStyle.Render(" (async)"))
		}
		if r.elapsed > 0 {
			b.WriteString(detailTextStyle.Render(" " + r.elapsed.Round(time.Millisecond).String()))
		}
		if r.err != nil {
			b.WriteString("\n    " + labelStyleFailed.Render(r.err.Error()))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d/%d initialized", done, len(m.rows))
	switch {
	case m.finished && m.err != nil:
		b.WriteString(labelStyleFailed.Render("failed: " + m.err.Error()))
	case m.finished:
		b.WriteString(labelStyleDone.Render(summary))
	default:
		b.WriteString(detailTextStyle.Render(summary + "  (q to abort)"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) label(r row) string {
	switch r.state {
	case stateRunning:
		return m.spinner.View()
	case stateDone:
		return labelStyleDone.Render("✓")
	case stateFailed:
		return labelStyleFailed.Render("✗")
	default:
		return labelStylePending.Render("·")
	}
}

func waitForEvent(events <-chan bootstrap.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func waitForResult(result <-chan error) tea.Cmd {
	if result == nil {
		return nil
	}
	return func() tea.Msg {
		return runFinishedMsg{err: <-result}
	}
}
