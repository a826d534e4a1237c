package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/scheduler"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// defaultWidth is used before the terminal reports its size
const defaultWidth = 80

// View renders the dashboard
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = defaultWidth
	}

	var b strings.Builder
	b.WriteString(Render(m.status, m.maxParallel, width))

	switch {
	case m.summary != nil && m.runErr != nil:
		b.WriteString(failedStyle.Render(fmt.Sprintf(" Run interrupted: %v ", m.runErr)))
		b.WriteString("\n")
	case m.summary != nil:
		b.WriteString(runningStyle.Render(fmt.Sprintf(" Run finished in %s ", m.summary.Elapsed.Round(time.Second))))
		b.WriteString("\n")
	case m.stopping:
		b.WriteString(warningStyle.Render(" Stopping: tearing down running units... "))
		b.WriteString("\n")
	}

	elapsed := time.Duration(0)
	if !m.lastRefresh.IsZero() {
		elapsed = m.lastRefresh.Sub(m.startedAt).Round(time.Second)
	}
	bar := fmt.Sprintf(" elapsed %s │ [q]uit ", elapsed)
	b.WriteString(statusBarStyle.Width(width).Render(bar))
	return b.String()
}

// Render draws a scheduler snapshot. It is shared by the dashboard and the
// line printer.
func Render(st scheduler.Status, maxParallel, width int) string {
	var b strings.Builder

	done := st.Finished + st.Failed
	total := done + len(st.Running) + st.Queued
	header := fmt.Sprintf(" sqlbench │ Running: %d/%d │ Queued: %d │ Finished: %d │ Failed: %d │ %s ",
		len(st.Running), maxParallel, st.Queued, st.Finished, st.Failed, progress(done, total))
	b.WriteString(headerStyle.Width(width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(width - 2).Render(renderRunning(st)))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Width(width - 2).Render(renderQueued(st)))
	b.WriteString("\n")
	return b.String()
}

func renderRunning(st scheduler.Status) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("RUNNING (%d)", len(st.Running))))
	b.WriteString("\n")
	if len(st.Running) == 0 {
		b.WriteString(queuedStyle.Render("  No running batches"))
		return b.String()
	}
	for _, batch := range st.Running {
		line := fmt.Sprintf("  #%-4d %-10s %-8s q%-9s %s",
			batch.ID, batch.Engine, batch.Benchmark, batch.Range.String(), runningFor(batch, st.At))
		b.WriteString(runningStyle.Render(line))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderQueued(st scheduler.Status) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("UP NEXT (%d queued)", st.Queued)))
	b.WriteString("\n")
	if len(st.Preview) == 0 {
		b.WriteString(queuedStyle.Render("  Queue is empty"))
		return b.String()
	}
	for _, batch := range st.Preview {
		line := fmt.Sprintf("  #%-4d %-10s %-8s q%s", batch.ID, batch.Engine, batch.Benchmark, batch.Range.String())
		b.WriteString(queuedStyle.Render(line))
		b.WriteString("\n")
	}
	if more := st.Queued - len(st.Preview); more > 0 {
		b.WriteString(queuedStyle.Render(fmt.Sprintf("  ... and %d more", more)))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func runningFor(b *domain.Batch, now time.Time) string {
	if b.LaunchedAt == nil || now.IsZero() {
		return ""
	}
	return now.Sub(*b.LaunchedAt).Round(time.Second).String()
}

func progress(done, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", done*100/total)
}
