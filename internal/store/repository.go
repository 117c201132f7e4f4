package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when a task or plan id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus is returned for a status string outside the known set.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidPriority is returned for a priority string outside the known set.
	ErrInvalidPriority = errors.New("invalid priority")
)

// Filter narrows ListTasks. Zero-valued fields place no constraint.
type Filter struct {
	Status   TaskStatus
	Priority TaskPriority
}

func (f Filter) matches(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	return true
}

// Repository is the storage contract the lifecycle operations depend on.
// Implementations must be safe for concurrent use and must hand out copies,
// never records that a later mutation could change underneath the caller.
type Repository interface {
	// SaveTask upserts the task and stamps t.UpdatedAt. UpdatedAt never
	// moves backwards for a given id.
	SaveTask(ctx context.Context, t *Task) error
	// GetTask returns ErrNotFound for an unknown id.
	GetTask(ctx context.Context, id string) (*Task, error)
	// UpdateTask loads the task, applies fn to it and saves the result as
	// one step: no other write to the store interleaves. An error from fn
	// leaves the stored task untouched and is returned as is. Returns
	// ErrNotFound for an unknown id.
	UpdateTask(ctx context.Context, id string, fn func(*Task) error) (*Task, error)
	// ListTasks returns matching tasks in listing order (see SortTasks).
	ListTasks(ctx context.Context, f Filter) ([]Task, error)
	// DeleteTask reports whether a task was removed.
	DeleteTask(ctx context.Context, id string) (bool, error)
	// SavePlan upserts the plan and stamps p.UpdatedAt.
	SavePlan(ctx context.Context, p *TaskPlan) error
	// GetPlan returns ErrNotFound for an unknown id. Each plan task is
	// replaced by its current stored version; a task deleted since keeps
	// the plan's snapshot.
	GetPlan(ctx context.Context, id string) (*TaskPlan, error)
	// ListPlans returns every plan, newest first.
	ListPlans(ctx context.Context) ([]TaskPlan, error)
	Close() error
}

// sortTimeLayout is fixed-width so lexical order matches chronological order.
const sortTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SortKey is the listing key for a task: the priority's string value
// concatenated with its creation time. Tasks are listed by this key,
// descending. The comparison is lexical, so priorities order
// alphabetically (medium > low > high > critical), not by severity.
func SortKey(t *Task) string {
	return string(t.Priority) + t.CreatedAt.UTC().Format(sortTimeLayout)
}

// SortTasks orders tasks by SortKey descending, breaking ties by id.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ki, kj := SortKey(&tasks[i]), SortKey(&tasks[j])
		if ki != kj {
			return ki > kj
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// stamp returns now, or prev if the clock went backwards.
func stamp(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// refreshPlanTasks swaps each plan task for its current stored version,
// keeping the plan's snapshot for tasks that have since been deleted.
func refreshPlanTasks(p *TaskPlan, lookup func(id string) (*Task, bool)) {
	for i := range p.Tasks {
		if cur, ok := lookup(p.Tasks[i].ID); ok {
			p.Tasks[i] = *cur
		}
	}
}
