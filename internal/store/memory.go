package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps tasks and plans in process memory. State lives for the
// lifetime of the process; nothing is evicted.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	plans map[string]*TaskPlan
	now   func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*Task),
		plans: make(map[string]*TaskPlan),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used to stamp UpdatedAt.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SaveTask upserts a copy of t.
func (s *MemoryStore) SaveTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := t.UpdatedAt
	if old, ok := s.tasks[t.ID]; ok && old.UpdatedAt.After(prev) {
		prev = old.UpdatedAt
	}
	t.UpdatedAt = stamp(s.now(), prev)
	s.tasks[t.ID] = t.Clone()
	return nil
}

// UpdateTask applies fn to a copy of the stored task under the write lock.
func (s *MemoryStore) UpdateTask(_ context.Context, id string, fn func(*Task) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := old.Clone()
	if err := fn(t); err != nil {
		return nil, err
	}
	t.ID = id
	t.UpdatedAt = stamp(s.now(), laterOf(t.UpdatedAt, old.UpdatedAt))
	s.tasks[id] = t.Clone()
	return t, nil
}

// GetTask returns a copy of the stored task.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// ListTasks returns copies of all tasks matching f.
func (s *MemoryStore) ListTasks(_ context.Context, f Filter) ([]Task, error) {
	s.mu.RLock()
	var tasks []Task
	for _, t := range s.tasks {
		if f.matches(t) {
			tasks = append(tasks, *t.Clone())
		}
	}
	s.mu.RUnlock()

	SortTasks(tasks)
	return tasks, nil
}

// DeleteTask removes the task if present.
func (s *MemoryStore) DeleteTask(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

// SavePlan upserts a copy of p.
func (s *MemoryStore) SavePlan(_ context.Context, p *TaskPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := p.UpdatedAt
	if old, ok := s.plans[p.ID]; ok && old.UpdatedAt.After(prev) {
		prev = old.UpdatedAt
	}
	p.UpdatedAt = stamp(s.now(), prev)
	s.plans[p.ID] = p.Clone()
	return nil
}

// GetPlan returns a copy of the plan with its tasks refreshed.
func (s *MemoryStore) GetPlan(_ context.Context, id string) (*TaskPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := p.Clone()
	refreshPlanTasks(c, s.lookupLocked)
	return c, nil
}

// ListPlans returns copies of every plan, newest first.
func (s *MemoryStore) ListPlans(_ context.Context) ([]TaskPlan, error) {
	s.mu.RLock()
	plans := make([]TaskPlan, 0, len(s.plans))
	for _, p := range s.plans {
		c := p.Clone()
		refreshPlanTasks(c, s.lookupLocked)
		plans = append(plans, *c)
	}
	s.mu.RUnlock()

	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].CreatedAt.After(plans[j].CreatedAt)
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// lookupLocked must be called with s.mu held.
func (s *MemoryStore) lookupLocked(id string) (*Task, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}
