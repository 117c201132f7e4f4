package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imkarma/taskplan/internal/store"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrMagenta   = lipgloss.AdaptiveColor{Light: "#A21CAF", Dark: "#E879F9"}
	clrWhite     = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

// --- Styles ---
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle   = lipgloss.NewStyle().Foreground(clrDim)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(0, 1)

	columnActiveStyle = columnStyle.BorderForeground(clrHighlight)

	cardSelectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrHighlight).
			Padding(1, 2)

	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrHighlight).
			Padding(1, 2).
			Width(60)

	statusStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

func statusColor(s store.TaskStatus) lipgloss.AdaptiveColor {
	switch s {
	case store.StatusInProgress:
		return clrBlue
	case store.StatusBlocked:
		return clrRed
	case store.StatusCompleted:
		return clrGreen
	case store.StatusFailed:
		return clrMagenta
	default:
		return clrWhite
	}
}

func priorityColor(p store.TaskPriority) lipgloss.AdaptiveColor {
	switch p {
	case store.PriorityCritical, store.PriorityHigh:
		return clrRed
	case store.PriorityMedium:
		return clrYellow
	default:
		return clrDim
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.screen {
	case screenBoard:
		content = m.viewBoard()
	case screenDetail:
		content = m.viewDetail()
	case screenReport:
		content = m.viewReport()
	}

	if m.popup != popupNone {
		content += "\n" + m.viewPopup()
	}
	return content
}

// --- Board ---

func (m Model) viewBoard() string {
	var b strings.Builder

	header := titleStyle.Render("taskplan board")
	header += dimStyle.Render(fmt.Sprintf(" · %d tasks", len(m.tasks)))
	b.WriteString(header + "\n\n")

	colWidth := 24
	if m.width > 0 {
		colWidth = max((m.width-len(columnStatuses)*4)/len(columnStatuses), 16)
	}

	var cols []string
	for i, status := range columnStatuses {
		cols = append(cols, m.renderColumn(i, status, colWidth))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(footer(
		"←→↑↓", "move", "enter", "details", "s", "start", "c", "complete",
		"b", "block", "f", "fail", "n", "new", "R", "report", "q", "quit",
	))
	return b.String()
}

func (m Model) renderColumn(idx int, status store.TaskStatus, width int) string {
	var b strings.Builder

	label := lipgloss.NewStyle().Bold(true).Foreground(statusColor(status)).
		Render(strings.ToUpper(status.Label()))
	b.WriteString(label + dimStyle.Render(fmt.Sprintf(" (%d)", len(m.columns[idx]))) + "\n")

	maxRows := 20
	if m.height > 0 {
		maxRows = max(m.height-10, 3)
	}

	for row, t := range m.columns[idx] {
		if row == maxRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("… %d more", len(m.columns[idx])-row)) + "\n")
			break
		}
		dot := lipgloss.NewStyle().Foreground(priorityColor(t.Priority)).Render("●")
		title := truncate(t.Title, width-2)
		if idx == m.cursorCol && row == m.cursorRow {
			title = cardSelectedStyle.Render(title)
		}
		b.WriteString(dot + " " + title + "\n")
	}

	style := columnStyle
	if idx == m.cursorCol {
		style = columnActiveStyle
	}
	return style.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

// --- Detail ---

func (m Model) viewDetail() string {
	t := m.detail
	if t == nil {
		return ""
	}
	const layout = "2006-01-02 15:04"

	var b strings.Builder
	b.WriteString(titleStyle.Render(t.Title) + "\n")
	b.WriteString(dimStyle.Render(t.ID) + "\n\n")

	field := func(name, value string) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%-11s", name)) + value + "\n")
	}
	field("Status", lipgloss.NewStyle().Foreground(statusColor(t.Status)).Render(t.Status.Label()))
	field("Priority", lipgloss.NewStyle().Foreground(priorityColor(t.Priority)).Render(string(t.Priority)))
	if len(t.Tags) > 0 {
		field("Tags", strings.Join(t.Tags, ", "))
	}
	if t.DueDate != nil {
		field("Due", t.DueDate.Format("2006-01-02"))
	}
	if t.EstimatedHours != nil {
		field("Estimated", fmt.Sprintf("%gh", *t.EstimatedHours))
	}
	if t.ActualHours != nil {
		field("Actual", fmt.Sprintf("%gh", *t.ActualHours))
	}
	field("Created", t.CreatedAt.Format(layout))
	field("Updated", t.UpdatedAt.Format(layout))
	if t.CompletionTime != nil {
		field("Completed", t.CompletionTime.Format(layout))
	}
	if t.ErrorMessage != nil {
		b.WriteString("\n" + errorStyle.Render("Error: "+*t.ErrorMessage) + "\n")
	}
	if t.Description != "" {
		b.WriteString("\n" + t.Description + "\n")
	}
	if len(t.Subtasks) > 0 {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("Subtasks (%d)", store.CountTasks(t)-1)) + "\n")
		for _, st := range t.Subtasks {
			b.WriteString("  " + lipgloss.NewStyle().Foreground(statusColor(st.Status)).Render("●") + " " + st.Title + "\n")
		}
	}

	width := 70
	if m.width > 0 {
		width = min(m.width-4, 100)
	}

	var out strings.Builder
	out.WriteString(panelStyle.Width(width).Render(strings.TrimRight(b.String(), "\n")))
	out.WriteString("\n")
	out.WriteString(m.statusLine())
	out.WriteString("\n")
	out.WriteString(footer("s", "start", "c", "complete", "b", "block", "p", "pending", "f", "fail", "esc", "back"))
	return out.String()
}

// --- Report ---

func (m Model) viewReport() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Task Report") + "\n")
	b.WriteString(m.reportViewport.View())
	b.WriteString("\n")
	b.WriteString(footer("↑↓", "scroll", "esc", "back"))
	return b.String()
}

// --- Shared pieces ---

func (m Model) viewPopup() string {
	title := "New task"
	if m.popup == popupFail {
		title = "Mark task failed"
	}
	body := titleStyle.Render(title) + "\n\n" + m.input.View() + "\n\n" +
		footer("enter", "confirm", "esc", "cancel")
	return popupStyle.Render(body)
}

func (m Model) statusLine() string {
	if m.statusMsg == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(m.statusMsg), "failed") {
		return errorStyle.Render("  " + m.statusMsg)
	}
	return statusStyle.Render("  " + m.statusMsg)
}

// footer renders key/description pairs.
func footer(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, footerKeyStyle.Render(pairs[i])+footerDescStyle.Render(" "+pairs[i+1]))
	}
	return strings.Join(parts, "  ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:max(n, 0)])
	}
	return string(r[:n-1]) + "…"
}
