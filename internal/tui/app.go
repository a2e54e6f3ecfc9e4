// internal/tui/app.go
//
// Live progress view for a persona run. It follows The Elm Architecture
// used by bubbletea:
//
// 1. Model: per-persona state plus the final run result
// 2. Update: reacts to runner events and to the run finishing
// 3. View: renders one status line per persona and a closing summary
//
// The runner executes on its own goroutine; its events arrive here over a
// channel so the model never blocks a persona.

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aldenhart/agent-runner/internal/runner"
)

var (
	stylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	styleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	styleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleDetail  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

type personaPhase int

const (
	phasePending personaPhase = iota
	phaseRunning
	phaseDone
	phaseFailed
	phaseSkipped
)

type personaState struct {
	name   string
	phase  personaPhase
	detail string
}

type eventMsg runner.Event

type runFinishedMsg struct {
	result runner.RunResult
	err    error
}

// Model drives the progress screen for one batch of personas.
type Model struct {
	task     string
	personas []personaState
	index    map[string]int
	spinner  spinner.Model

	events <-chan runner.Event
	done   <-chan runFinishedMsg

	finished bool
	result   runner.RunResult
	err      error
	quitting bool
}

// NewModel builds the progress model for the given personas, in display order.
func NewModel(task string, personas []string, events <-chan runner.Event, done <-chan runFinishedMsg) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleRunning

	states := make([]personaState, len(personas))
	index := make(map[string]int, len(personas))
	for i, name := range personas {
		states[i] = personaState{name: name, phase: phasePending}
		index[name] = i
	}
	return Model{
		task:     task,
		personas: states,
		index:    index,
		spinner:  sp,
		events:   events,
		done:     done,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.waitForDone())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func (m Model) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return <-m.done
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(runner.Event(msg))
		return m, m.waitForEvent()

	case runFinishedMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(event runner.Event) {
	i, ok := m.index[event.Persona]
	if !ok {
		return
	}
	switch event.Kind {
	case runner.EventStarted:
		m.personas[i].phase = phaseRunning
	case runner.EventSkipped:
		m.personas[i].phase = phaseSkipped
		m.personas[i].detail = "excluded by preflight"
	case runner.EventFinished:
		if event.Result != nil && event.Result.OK {
			m.personas[i].phase = phaseDone
			m.personas[i].detail = event.Result.OutputPath
		} else {
			m.personas[i].phase = phaseFailed
			if event.Result != nil {
				m.personas[i].detail = event.Result.Error
			}
		}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("⬡ AGENT-RUNNER") + "\n")
	if m.task != "" {
		b.WriteString(styleDetail.Render("task: "+m.task) + "\n")
	}
	b.WriteString("\n")

	for _, p := range m.personas {
		b.WriteString(m.renderPersonaLine(p) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(styleFailed.Render("run failed: "+m.err.Error()) + "\n")
	case m.finished:
		b.WriteString(styleDetail.Render(m.result.Summary()) + "\n")
	default:
		b.WriteString(styleDetail.Render("press ctrl+c to abort") + "\n")
	}
	return b.String()
}

func (m Model) renderPersonaLine(p personaState) string {
	switch p.phase {
	case phaseRunning:
		return fmt.Sprintf("%s %s", m.spinner.View(), styleRunning.Render(p.name))
	case phaseDone:
		line := fmt.Sprintf("%s %s", styleDone.Render("✓"), p.name)
		if p.detail != "" {
			line += "  " + styleDetail.Render(p.detail)
		}
		return line
	case phaseFailed:
		line := fmt.Sprintf("%s %s", styleFailed.Render("✗"), p.name)
		if p.detail != "" {
			line += "  " + styleDetail.Render(p.detail)
		}
		return line
	case phaseSkipped:
		return fmt.Sprintf("%s %s  %s",
			stylePending.Render("-"), stylePending.Render(p.name), styleDetail.Render(p.detail))
	default:
		return fmt.Sprintf("%s %s", stylePending.Render("·"), stylePending.Render(p.name))
	}
}

// Run executes one batch under the progress view and returns the run result
// once the program exits. The runner must have been constructed with the
// events option returned by this package's EventBridge.
func Run(ctx context.Context, r *runner.Runner, req runner.Request, events chan runner.Event) (runner.RunResult, error) {
	done := make(chan runFinishedMsg, 1)
	go func() {
		result, err := r.Run(ctx, req)
		close(events)
		done <- runFinishedMsg{result: result, err: err}
	}()

	model := NewModel(req.Task, req.Personas, events, done)
	program := tea.NewProgram(model)
	final, err := program.Run()
	if err != nil {
		return runner.RunResult{}, fmt.Errorf("tui: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return runner.RunResult{}, fmt.Errorf("tui: unexpected final model %T", final)
	}
	if m.quitting && !m.finished {
		return runner.RunResult{}, fmt.Errorf("tui: run aborted")
	}
	return m.result, m.err
}

// EventBridge returns a channel plus a runner option that feeds it. The
// channel is buffered so a slow redraw never stalls persona workers.
func EventBridge(capacity int) (chan runner.Event, runner.Option) {
	if capacity < 1 {
		capacity = 64
	}
	events := make(chan runner.Event, capacity)
	return events, runner.WithEvents(func(e runner.Event) {
		events <- e
	})
}
