// Package planner implements the task lifecycle: creating tasks, moving them
// between statuses, recording failures and completion, and turning analysis
// output into a plan of tasks. All state lives behind a store.Repository.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/imkarma/taskplan/internal/store"
)

// Service runs lifecycle operations against a repository.
type Service struct {
	repo   store.Repository
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a lifecycle service over repo.
func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return "task-" + uuid.New().String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository returns the backing repository.
func (s *Service) Repository() store.Repository { return s.repo }

// NewTask holds the inputs for CreateTask.
type NewTask struct {
	Title          string
	Description    string
	Priority       store.TaskPriority // Empty means medium.
	DueDate        *time.Time
	Tags           []string
	EstimatedHours *float64
}

// CreateTask creates a pending task with a fresh id and persists it.
func (s *Service) CreateTask(ctx context.Context, in NewTask) (*store.Task, error) {
	priority, err := store.ParsePriority(string(in.Priority))
	if err != nil {
		return nil, err
	}
	if in.EstimatedHours != nil && *in.EstimatedHours < 0 {
		return nil, fmt.Errorf("estimated hours must not be negative, got %v", *in.EstimatedHours)
	}

	task := store.NewTask(s.newID(), in.Title, in.Description, s.now())
	task.Priority = priority
	task.DueDate = in.DueDate
	task.Tags = append([]string(nil), in.Tags...)
	task.EstimatedHours = in.EstimatedHours

	if err := s.repo.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("Created task", "task_id", task.ID, "priority", task.Priority)
	return task, nil
}

// GetTask returns the task or store.ErrNotFound.
func (s *Service) GetTask(ctx context.Context, id string) (*store.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// DeleteTask removes a task, reporting whether it existed.
func (s *Service) DeleteTask(ctx context.Context, id string) (bool, error) {
	removed, err := s.repo.DeleteTask(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	if removed {
		s.logger.Info("Deleted task", "task_id", id)
	}
	return removed, nil
}

// UpdateTaskStatus moves a task to the named status. It returns
// store.ErrNotFound for an unknown id and store.ErrInvalidStatus for an
// unrecognized status, leaving the task untouched in both cases. Moving to
// completed stamps CompletionTime; the stamp is never cleared afterwards.
func (s *Service) UpdateTaskStatus(ctx context.Context, id, status string) (*store.Task, error) {
	st, err := store.ParseStatus(status)
	if err != nil {
		if _, lerr := s.lookup(ctx, id); lerr != nil {
			return nil, lerr
		}
		s.logger.Error("Invalid status value", "task_id", id, "status", status)
		return nil, err
	}

	task, err := s.update(ctx, id, "update task status", func(t *store.Task) error {
		now := s.now()
		t.Status = st
		t.UpdatedAt = now
		if st == store.StatusCompleted {
			t.CompletionTime = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Updated task status", "task_id", id, "status", st)
	return task, nil
}

// MarkTaskError fails a task and records the error message. An earlier
// message is overwritten; later status changes do not clear it.
func (s *Service) MarkTaskError(ctx context.Context, id, message string) (*store.Task, error) {
	task, err := s.update(ctx, id, "mark task error", func(t *store.Task) error {
		t.Status = store.StatusFailed
		t.ErrorMessage = &message
		t.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Error("Task failed", "task_id", id, "error_message", message)
	return task, nil
}

// CompleteTask marks a task completed. actualHours is recorded only when
// it is positive; nil or zero keeps whatever value the task already had.
func (s *Service) CompleteTask(ctx context.Context, id string, actualHours *float64) (*store.Task, error) {
	task, err := s.update(ctx, id, "complete task", func(t *store.Task) error {
		now := s.now()
		t.Status = store.StatusCompleted
		t.CompletionTime = &now
		if actualHours != nil && *actualHours > 0 {
			hours := *actualHours
			t.ActualHours = &hours
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Completed task", "task_id", id)
	return task, nil
}

// ListTasks returns tasks matching the filter in listing order.
func (s *Service) ListTasks(ctx context.Context, f store.Filter) ([]store.Task, error) {
	return s.repo.ListTasks(ctx, f)
}

// ListTasksByPattern lists tasks, optionally restricted to a status, and
// keeps those whose title or description matches pattern. Matching is
// case-insensitive shell-glob: '*' and '?' also match '/', braces and
// backslashes are literal, and an unclosed '[' is a literal bracket. An
// empty pattern returns the status-filtered list unchanged.
func (s *Service) ListTasksByPattern(ctx context.Context, pattern, status string) ([]store.Task, error) {
	var f store.Filter
	if status != "" {
		st, err := store.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}

	tasks, err := s.repo.ListTasks(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if pattern == "" {
		return tasks, nil
	}

	glob := globPattern(pattern)
	var matched []store.Task
	for _, t := range tasks {
		if globMatch(glob, t.Title) || globMatch(glob, t.Description) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// update runs fn as a single serialized read-modify-write on the task.
func (s *Service) update(ctx context.Context, id, op string, fn func(*store.Task) error) (*store.Task, error) {
	task, err := s.repo.UpdateTask(ctx, id, fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("task %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return task, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*store.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("task %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}
