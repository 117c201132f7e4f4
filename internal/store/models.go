package store

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents where a task (or plan) is in its lifecycle.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusBlocked    TaskStatus = "blocked"
)

// Statuses lists every valid status in declaration order.
var Statuses = []TaskStatus{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusBlocked,
}

// ParseStatus validates an external status string. Matching is
// case-insensitive and treats "-" and " " as "_", so "In Progress" and
// "in-progress" both resolve to StatusInProgress.
func ParseStatus(s string) (TaskStatus, error) {
	norm := normalizeVariant(s)
	for _, st := range Statuses {
		if string(st) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Label returns a title-cased form for display ("in_progress" -> "In Progress").
func (s TaskStatus) Label() string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// TaskPriority is the urgency of a task.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Priorities lists every valid priority from least to most urgent.
var Priorities = []TaskPriority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityCritical,
}

// ParsePriority validates an external priority string. An empty string
// yields the default, PriorityMedium.
func ParsePriority(s string) (TaskPriority, error) {
	norm := normalizeVariant(s)
	if norm == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if string(p) == norm {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

func normalizeVariant(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// Task is a unit of trackable work. Subtasks are owned by their parent and
// may nest to any depth.
type Task struct {
	ID             string
	Title          string
	Description    string
	Status         TaskStatus
	Priority       TaskPriority
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DueDate        *time.Time
	AssignedTo     *string
	Tags           []string
	Subtasks       []Task
	ErrorMessage   *string
	CompletionTime *time.Time
	Dependencies   []string // Task IDs; existence and cycles are not checked.
	EstimatedHours *float64
	ActualHours    *float64
	Metadata       map[string]any
}

// NewTask returns a pending, medium-priority task stamped with now.
func NewTask(id, title, description string, now time.Time) *Task {
	return &Task{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		Priority:    PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy of the task, subtasks included.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := flatten(t).build()
	return &c
}

// TaskPlan is a named collection of tasks, usually produced from one analysis.
type TaskPlan struct {
	ID          string
	Name        string
	Description string
	Tasks       []Task
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Status      TaskStatus
	Owner       *string
}

// Clone returns a deep copy of the plan and its tasks.
func (p *TaskPlan) Clone() *TaskPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Owner = cloneString(p.Owner)
	c.Tasks = nil
	for i := range p.Tasks {
		c.Tasks = append(c.Tasks, *p.Tasks[i].Clone())
	}
	return &c
}

// copyScalars copies every field except Subtasks, duplicating pointers,
// slices and the metadata map.
func (t *Task) copyScalars() Task {
	c := *t
	c.Subtasks = nil
	c.DueDate = cloneTime(t.DueDate)
	c.AssignedTo = cloneString(t.AssignedTo)
	c.ErrorMessage = cloneString(t.ErrorMessage)
	c.CompletionTime = cloneTime(t.CompletionTime)
	c.EstimatedHours = cloneFloat(t.EstimatedHours)
	c.ActualHours = cloneFloat(t.ActualHours)
	c.Tags = cloneStrings(t.Tags)
	c.Dependencies = cloneStrings(t.Dependencies)
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
