package tui

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/sqlbench/internal/scheduler"
)

// ProgramReporter forwards scheduler snapshots to a running dashboard
type ProgramReporter struct {
	Program *tea.Program
}

// ReportStatus implements scheduler.StatusReporter
func (r ProgramReporter) ReportStatus(st scheduler.Status) {
	r.Program.Send(StatusMsg(st))
}

// Printer writes one rendered snapshot per cycle, for terminals without
// an interactive dashboard
type Printer struct {
	W           io.Writer
	MaxParallel int
	Width       int

	mu sync.Mutex
}

// ReportStatus implements scheduler.StatusReporter
func (p *Printer) ReportStatus(st scheduler.Status) {
	width := p.Width
	if width == 0 {
		width = defaultWidth
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.W, Render(st, p.MaxParallel, width))
}
