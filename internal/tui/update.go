package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/taskplan/internal/store"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If popup is active, handle popup keys first.
		if m.popup != popupNone {
			return m.handlePopupKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.reportViewport.Width = max(m.width-4, 20)
		m.reportViewport.Height = max(m.height-6, 6)
		return m, nil

	case tasksLoadedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setStatus("Failed to load tasks: " + msg.err.Error())
			return m, nil
		}
		m.tasks = msg.tasks
		m.rebuildColumns()
		// Keep the detail panel current.
		if m.detail != nil {
			for i := range m.tasks {
				if m.tasks[i].ID == m.detail.ID {
					t := m.tasks[i]
					m.detail = &t
					break
				}
			}
		}
		return m, nil

	case taskUpdatedMsg:
		if msg.err != nil {
			m.setStatus("Failed: " + msg.err.Error())
			return m, nil
		}
		m.setStatus(msg.verb + ": " + msg.task.Title)
		if m.detail != nil && m.detail.ID == msg.task.ID {
			m.detail = msg.task
		}
		return m, m.loadTasks()

	case reportLoadedMsg:
		if msg.err != nil {
			m.setStatus("Failed to build report: " + msg.err.Error())
			return m, nil
		}
		m.reportViewport.SetContent(msg.content)
		m.reportViewport.GotoTop()
		m.screen = screenReport
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd()}
		// Clear old status messages.
		if m.statusMsg != "" && time.Since(m.statusTime) > 5*time.Second {
			m.statusMsg = ""
		}
		if !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.loadTasks())
		}
		return m, tea.Batch(cmds...)
	}

	// Forward to viewport on the report screen.
	if m.screen == screenReport {
		var cmd tea.Cmd
		m.reportViewport, cmd = m.reportViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.screen == screenBoard || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m.goBack()

	case "esc":
		return m.goBack()
	}

	switch m.screen {
	case screenBoard:
		return m.handleBoardKey(msg)
	case screenDetail:
		return m.handleDetailKey(msg)
	case screenReport:
		var cmd tea.Cmd
		m.reportViewport, cmd = m.reportViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenDetail, screenReport:
		m.screen = screenBoard
		m.detail = nil
		return m, m.loadTasks()
	default:
		return m, nil
	}
}

// --- Board screen keys ---

func (m Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "h", "left":
		m.cursorCol--
		m.clampCursor()
	case "l", "right":
		m.cursorCol++
		m.clampCursor()
	case "k", "up":
		m.cursorRow--
		m.clampCursor()
	case "j", "down":
		m.cursorRow++
		m.clampCursor()

	case "enter":
		if t := m.selectedTask(); t != nil {
			m.detail = t
			m.screen = screenDetail
		}

	case "n":
		m.popup = popupCreate
		m.input.Placeholder = "Task title..."
		m.input.SetValue("")
		return m, m.input.Focus()

	case "R":
		return m, m.loadReport()

	case "r":
		m.refreshing = true
		return m, m.loadTasks()

	default:
		if t := m.selectedTask(); t != nil {
			return m.handleTaskAction(msg, t)
		}
	}
	return m, nil
}

// --- Detail screen keys ---

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detail == nil {
		return m, nil
	}
	return m.handleTaskAction(msg, m.detail)
}

// handleTaskAction applies the lifecycle keys shared by board and detail.
func (m Model) handleTaskAction(msg tea.KeyMsg, t *store.Task) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s":
		return m, m.setTaskStatus(t.ID, store.StatusInProgress)
	case "c":
		return m, m.setTaskStatus(t.ID, store.StatusCompleted)
	case "b":
		return m, m.setTaskStatus(t.ID, store.StatusBlocked)
	case "p":
		return m, m.setTaskStatus(t.ID, store.StatusPending)
	case "f":
		m.popup = popupFail
		m.input.Placeholder = "What went wrong?"
		m.input.SetValue("")
		return m, m.input.Focus()
	}
	return m, nil
}

// --- Popup keys ---

func (m Model) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.popup = popupNone
		m.input.Blur()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		kind := m.popup
		m.popup = popupNone
		m.input.Blur()
		if value == "" {
			return m, nil
		}
		switch kind {
		case popupCreate:
			return m, m.createTask(value)
		case popupFail:
			target := m.detail
			if m.screen == screenBoard {
				target = m.selectedTask()
			}
			if target != nil {
				return m, m.failTask(target.ID, value)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
