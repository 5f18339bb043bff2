package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// exportDoneMsg carries the outcome of the export command.
type exportDoneMsg struct {
	blob []byte
	err  error
}

// progressModel shows a spinner while an export is in flight. Ctrl+C or Esc
// cancels the export; the model still waits for the export to return so the
// caller always gets its result.
type progressModel struct {
	spinner   spinner.Model
	label     string
	run       tea.Cmd
	cancel    context.CancelFunc
	started   time.Time
	canceling bool
	done      bool

	blob []byte
	err  error
}

func newProgressModel(label string, run tea.Cmd, cancel context.CancelFunc) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return &progressModel{
		spinner: s,
		label:   label,
		run:     run,
		cancel:  cancel,
		started: time.Now(),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case exportDoneMsg:
		m.done = true
		m.blob = msg.blob
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if !m.canceling {
				m.canceling = true
				m.cancel()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if m.done {
		return ""
	}
	if m.canceling {
		return fmt.Sprintf("%s %s\n", m.spinner.View(), warnStyle.Render("Cancelling export..."))
	}
	elapsed := time.Since(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s\n",
		m.spinner.View(),
		valueStyle.Render(m.label),
		mutedStyle.Render(fmt.Sprintf("(%s, ctrl+c to cancel)", elapsed)),
	)
}
