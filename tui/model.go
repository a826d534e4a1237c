package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/sqlbench/internal/scheduler"
)

// Model is the run dashboard
type Model struct {
	// Data
	status  scheduler.Status
	summary *scheduler.Summary
	runErr  error

	// Run
	maxParallel int
	total       int
	startedAt   time.Time
	cancel      context.CancelFunc
	stopping    bool

	// UI state
	width  int
	height int

	// Refresh
	lastRefresh time.Time
}

// ModelConfig holds initial data for the dashboard
type ModelConfig struct {
	MaxParallel int
	Total       int
	StartedAt   time.Time
	// Cancel interrupts the scheduler when the user quits early
	Cancel context.CancelFunc
}

// NewModel creates a new dashboard model
func NewModel(cfg ModelConfig) Model {
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return Model{
		maxParallel: cfg.MaxParallel,
		total:       cfg.Total,
		startedAt:   started,
		cancel:      cfg.Cancel,
		status:      scheduler.Status{Queued: cfg.Total, FreeSlots: cfg.MaxParallel},
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// StatusMsg carries a scheduler snapshot
type StatusMsg scheduler.Status

// DoneMsg is sent once the scheduler returns
type DoneMsg struct {
	Summary scheduler.Summary
	Err     error
}

// Done reports whether the run has ended
func (m Model) Done() bool {
	return m.summary != nil
}
