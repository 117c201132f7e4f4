// Package tui is the interactive task board.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/report"
	"github.com/imkarma/taskplan/internal/store"
)

// screen represents which screen the TUI is showing.
type screen int

const (
	screenBoard  screen = iota // Status columns (main)
	screenDetail               // Task detail panel
	screenReport               // Markdown report viewport
)

// popup is a modal input over the current screen.
type popup int

const (
	popupNone   popup = iota
	popupCreate       // New task title
	popupFail         // Error message for a failing task
)

// Board columns, left to right.
var columnStatuses = []store.TaskStatus{
	store.StatusPending,
	store.StatusInProgress,
	store.StatusBlocked,
	store.StatusCompleted,
	store.StatusFailed,
}

const refreshInterval = 2 * time.Second

// Model is the top-level bubbletea model.
type Model struct {
	svc      *planner.Service
	reporter *report.Generator
	ctx      context.Context

	width  int
	height int

	screen screen
	popup  popup

	// Board state.
	tasks     []store.Task
	columns   [][]store.Task
	cursorCol int
	cursorRow int

	// Task shown on the detail screen.
	detail *store.Task

	reportViewport viewport.Model
	input          textinput.Model

	statusMsg  string
	statusTime time.Time
	refreshing bool
	quitting   bool
}

// New creates a TUI model backed by the planner service.
func New(ctx context.Context, svc *planner.Service) Model {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 50

	return Model{
		svc:            svc,
		reporter:       report.New(svc.Repository()),
		ctx:            ctx,
		screen:         screenBoard,
		columns:        make([][]store.Task, len(columnStatuses)),
		reportViewport: viewport.New(80, 20),
		input:          ti,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadTasks(), tickCmd())
}

// --- Messages ---

type tasksLoadedMsg struct {
	tasks []store.Task
	err   error
}

type taskUpdatedMsg struct {
	task *store.Task
	verb string
	err  error
}

type reportLoadedMsg struct {
	content string
	err     error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// --- Commands ---

func (m Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.svc.ListTasks(m.ctx, store.Filter{})
		return tasksLoadedMsg{tasks: tasks, err: err}
	}
}

func (m Model) setTaskStatus(id string, status store.TaskStatus) tea.Cmd {
	return func() tea.Msg {
		var (
			task *store.Task
			err  error
		)
		if status == store.StatusCompleted {
			task, err = m.svc.CompleteTask(m.ctx, id, nil)
		} else {
			task, err = m.svc.UpdateTaskStatus(m.ctx, id, string(status))
		}
		return taskUpdatedMsg{task: task, verb: status.Label(), err: err}
	}
}

func (m Model) failTask(id, message string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.svc.MarkTaskError(m.ctx, id, message)
		return taskUpdatedMsg{task: task, verb: "Marked failed", err: err}
	}
}

func (m Model) createTask(title string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.svc.CreateTask(m.ctx, planner.NewTask{Title: title})
		return taskUpdatedMsg{task: task, verb: "Created", err: err}
	}
}

func (m Model) loadReport() tea.Cmd {
	return func() tea.Msg {
		md, err := m.reporter.Generate(m.ctx, "")
		return reportLoadedMsg{content: md, err: err}
	}
}

// --- Board helpers ---

func (m *Model) rebuildColumns() {
	m.columns = make([][]store.Task, len(columnStatuses))
	for _, t := range m.tasks {
		for i, status := range columnStatuses {
			if t.Status == status {
				m.columns[i] = append(m.columns[i], t)
				break
			}
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	m.cursorCol = min(max(m.cursorCol, 0), len(columnStatuses)-1)
	m.cursorRow = min(m.cursorRow, len(m.columns[m.cursorCol])-1)
	m.cursorRow = max(m.cursorRow, 0)
}

func (m *Model) selectedTask() *store.Task {
	col := m.columns[m.cursorCol]
	if m.cursorRow < len(col) {
		t := col[m.cursorRow]
		return &t
	}
	return nil
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusTime = time.Now()
}
