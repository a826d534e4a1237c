package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/sqlbench/internal/scheduler"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Done() || m.stopping {
				return m, tea.Quit
			}
			// First press interrupts the run; the dashboard stays up
			// until teardown reports back
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.lastRefresh = time.Time(msg)
		if m.Done() {
			return m, nil
		}
		return m, tickCmd()

	case StatusMsg:
		m.status = scheduler.Status(msg)
		m.lastRefresh = m.status.At

	case DoneMsg:
		sum := msg.Summary
		m.summary = &sum
		m.runErr = msg.Err
		return m, tea.Quit
	}

	return m, nil
}
