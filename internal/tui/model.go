package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TargetStatus represents the display state of a package or stage.
// Values mirror orchestrator.Status for straightforward bridging via
// StatusUpdateMsg, keeping the tui package decoupled from orchestrator.
type TargetStatus string

const (
	StatusPending TargetStatus = "pending"
	StatusRunning TargetStatus = "running"
	StatusPassed  TargetStatus = "passed"
	StatusFailed  TargetStatus = "failed"
	StatusSkipped TargetStatus = "skipped"
)

// TargetState tracks the display state of one package or stage.
type TargetState struct {
	Name     string
	Status   TargetStatus
	Batch    int
	Passed   int
	Failed   int
	Duration time.Duration
	Error    string
}

// Model is the Bubble Tea model for run progress.
type Model struct {
	title      string
	targets    []TargetState
	index      map[string]int
	spinner    spinner.Model
	done       bool
	err        error
	startTime  time.Time
	cancelFunc context.CancelFunc
}

// StatusUpdateMsg bridges orchestrator status updates to the TUI.
type StatusUpdateMsg struct {
	Target   string
	Status   TargetStatus
	Progress string
	Batch    int
	Passed   int
	Failed   int
	Duration time.Duration
	Error    string
}

// RunDoneMsg signals that the run finished. Test failures still end with
// RunDoneMsg; RunErrorMsg is for runs that could not complete.
type RunDoneMsg struct{}

// RunErrorMsg signals that the run aborted with an error.
type RunErrorMsg struct {
	Err error
}

func (StatusUpdateMsg) isDisplayEvent() {}
func (RunDoneMsg) isDisplayEvent()      {}
func (RunErrorMsg) isDisplayEvent()     {}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCancelFunc sets the function called when the user aborts with q or ctrl+c.
func WithCancelFunc(cancel context.CancelFunc) ModelOption {
	return func(m *Model) { m.cancelFunc = cancel }
}

// WithTitle sets the header line.
func WithTitle(title string) ModelOption {
	return func(m *Model) { m.title = title }
}

// NewModel creates a Model initialized with the given target names.
func NewModel(targets []string, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	states := make([]TargetState, len(targets))
	index := make(map[string]int, len(targets))
	for i, name := range targets {
		states[i] = TargetState{Name: name, Status: StatusPending}
		index[name] = i
	}

	m := Model{
		targets:   states,
		index:     index,
		spinner:   s,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusUpdateMsg:
		i, ok := m.index[msg.Target]
		if !ok {
			// Targets unknown at start (e.g. a stage file) are appended.
			i = len(m.targets)
			m.targets = append(m.targets, TargetState{Name: msg.Target})
			m.index = cloneIndex(m.index)
			m.index[msg.Target] = i
		} else {
			m.targets = append([]TargetState(nil), m.targets...)
		}
		t := &m.targets[i]
		t.Status = msg.Status
		if msg.Batch > 0 {
			t.Batch = msg.Batch
		}
		if msg.Duration > 0 {
			t.Duration = msg.Duration
		}
		t.Passed = msg.Passed
		t.Failed = msg.Failed
		t.Error = msg.Error
		return m, nil

	case RunDoneMsg:
		m.done = true
		return m, tea.Quit

	case RunErrorMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancelFunc != nil {
				m.cancelFunc()
			}
			m.done = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the target list with status indicators and a totals footer.
func (m Model) View() string {
	var b strings.Builder

	if m.title != "" {
		b.WriteString(headerStyle.Render(m.title) + "\n")
	}

	var finished, failed, passed, failedTests int
	for _, t := range m.targets {
		indicator := statusIndicator(t.Status, m.spinner.View())
		line := fmt.Sprintf("  %s %s", indicator, t.Name)
		if t.Batch > 0 {
			line += dimStyle.Render(fmt.Sprintf(" [batch %d]", t.Batch))
		}
		if t.Passed+t.Failed > 0 {
			line += fmt.Sprintf(" %d/%d", t.Passed, t.Passed+t.Failed)
		}
		if t.Duration > 0 {
			line += fmt.Sprintf(" %.1fs", t.Duration.Seconds())
		}
		if t.Status == StatusFailed && t.Error != "" {
			line += " " + failedStyle.Render(t.Error)
		}
		b.WriteString(line + "\n")

		switch t.Status {
		case StatusPassed, StatusSkipped:
			finished++
		case StatusFailed:
			finished++
			failed++
		}
		passed += t.Passed
		failedTests += t.Failed
	}

	footer := fmt.Sprintf("%d/%d done · %d tests passed · %d failed", finished, len(m.targets), passed, failedTests)
	if failed > 0 {
		footer = failedStyle.Render(footer)
	}
	b.WriteString("\n  " + footer + "\n")

	if m.done && m.err != nil {
		b.WriteString("\n  " + errTextStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	return b.String()
}

// statusIndicator returns the Unicode indicator for a target status.
func statusIndicator(status TargetStatus, spinnerView string) string {
	switch status {
	case StatusPending:
		return "○"
	case StatusRunning:
		return spinnerView
	case StatusPassed:
		return passedStyle.Render("✓")
	case StatusFailed:
		return failedStyle.Render("✗")
	case StatusSkipped:
		return dimStyle.Render("–")
	default:
		return "?"
	}
}

func cloneIndex(in map[string]int) map[string]int {
	out := make(map[string]int, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
