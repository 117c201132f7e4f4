package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeClock hands out strictly increasing times one second apart.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type clockedRepo interface {
	Repository
	SetClock(func() time.Time)
}

// backends returns a constructor per Repository implementation so every
// contract test runs against both.
func backends() map[string]func(t *testing.T) clockedRepo {
	return map[string]func(t *testing.T) clockedRepo{
		"memory": func(t *testing.T) clockedRepo {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) clockedRepo {
			t.Helper()
			s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("create store: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo clockedRepo, clock *fakeClock)) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			repo := mk(t)
			clock := newFakeClock()
			repo.SetClock(clock.now)
			fn(t, repo, clock)
		})
	}
}

func task(id, title string, status TaskStatus, priority TaskPriority, created time.Time) *Task {
	return &Task{
		ID:        id,
		Title:     title,
		Status:    status,
		Priority:  priority,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		created := clock.now()
		in := task("task-1", "Write docs", StatusPending, PriorityHigh, created)
		in.Tags = []string{"docs"}
		in.Metadata = map[string]any{"repo_url": "https://example.com/r"}

		if err := repo.SaveTask(ctx, in); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}
		if !in.UpdatedAt.After(created) {
			t.Errorf("expected UpdatedAt to be stamped after %v, got %v", created, in.UpdatedAt)
		}

		got, err := repo.GetTask(ctx, "task-1")
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Title != "Write docs" {
			t.Errorf("expected title 'Write docs', got %q", got.Title)
		}
		if got.Metadata["repo_url"] != "https://example.com/r" {
			t.Errorf("expected repo_url metadata, got %v", got.Metadata)
		}
		if !got.UpdatedAt.Equal(in.UpdatedAt) {
			t.Errorf("expected UpdatedAt %v, got %v", in.UpdatedAt, got.UpdatedAt)
		}
	})
}

func TestRepository_GetTaskIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		repo.SaveTask(ctx, task("a", "A", StatusPending, PriorityLow, clock.now()))

		first, _ := repo.GetTask(ctx, "a")
		second, _ := repo.GetTask(ctx, "a")
		if first.ToRecord()["updatedAt"] != second.ToRecord()["updatedAt"] || first.Title != second.Title {
			t.Errorf("repeated GetTask returned different records: %+v vs %+v", first, second)
		}
	})
}

func TestRepository_GetTask_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, _ *fakeClock) {
		_, err := repo.GetTask(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepository_ReturnsCopies(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		in := task("a", "Original", StatusPending, PriorityLow, clock.now())
		repo.SaveTask(ctx, in)
		in.Title = "Mutated after save"

		got, _ := repo.GetTask(ctx, "a")
		got.Title = "Mutated after get"

		again, _ := repo.GetTask(ctx, "a")
		if again.Title != "Original" {
			t.Errorf("expected stored title 'Original', got %q", again.Title)
		}
	})
}

func TestRepository_UpsertKeepsUpdatedAtMonotonic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		in := task("a", "A", StatusPending, PriorityLow, clock.now())
		repo.SaveTask(ctx, in)
		first := in.UpdatedAt

		// A clock that jumps backwards must not move UpdatedAt back.
		repo.SetClock(func() time.Time { return first.Add(-time.Hour) })
		in.Title = "A2"
		repo.SaveTask(ctx, in)

		got, _ := repo.GetTask(ctx, "a")
		if got.Title != "A2" {
			t.Errorf("expected upsert to overwrite title, got %q", got.Title)
		}
		if got.UpdatedAt.Before(first) {
			t.Errorf("UpdatedAt went backwards: %v < %v", got.UpdatedAt, first)
		}

		all, _ := repo.ListTasks(ctx, Filter{})
		if len(all) != 1 {
			t.Errorf("expected upsert to keep a single record, got %d", len(all))
		}
	})
}

func TestRepository_ListTasks_FilterByStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		for i, st := range Statuses {
			repo.SaveTask(ctx, task("t-"+string(st), "T", st, Priorities[i%len(Priorities)], clock.now()))
		}
		repo.SaveTask(ctx, task("extra", "Extra", StatusPending, PriorityHigh, clock.now()))

		for _, st := range Statuses {
			got, err := repo.ListTasks(ctx, Filter{Status: st})
			if err != nil {
				t.Fatalf("ListTasks %s: %v", st, err)
			}
			want := 1
			if st == StatusPending {
				want = 2
			}
			if len(got) != want {
				t.Errorf("status %s: expected %d tasks, got %d", st, want, len(got))
			}
			for _, tk := range got {
				if tk.Status != st {
					t.Errorf("status %s: got task %s with status %s", st, tk.ID, tk.Status)
				}
			}
		}
	})
}

func TestRepository_ListTasks_FilterByBoth(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		repo.SaveTask(ctx, task("a", "A", StatusPending, PriorityHigh, clock.now()))
		repo.SaveTask(ctx, task("b", "B", StatusPending, PriorityLow, clock.now()))
		repo.SaveTask(ctx, task("c", "C", StatusFailed, PriorityHigh, clock.now()))

		got, _ := repo.ListTasks(ctx, Filter{Status: StatusPending, Priority: PriorityHigh})
		if len(got) != 1 || got[0].ID != "a" {
			t.Fatalf("expected only task a, got %+v", got)
		}
	})
}

func TestRepository_ListTasks_LexicalOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		repo.SaveTask(ctx, task("crit", "C", StatusPending, PriorityCritical, clock.now()))
		repo.SaveTask(ctx, task("high", "H", StatusPending, PriorityHigh, clock.now()))
		repo.SaveTask(ctx, task("low", "L", StatusPending, PriorityLow, clock.now()))
		repo.SaveTask(ctx, task("med-old", "M1", StatusPending, PriorityMedium, clock.now()))
		repo.SaveTask(ctx, task("med-new", "M2", StatusPending, PriorityMedium, clock.now()))

		got, _ := repo.ListTasks(ctx, Filter{})
		want := []string{"med-new", "med-old", "low", "high", "crit"}
		if len(got) != len(want) {
			t.Fatalf("expected %d tasks, got %d", len(want), len(got))
		}
		for i, id := range want {
			if got[i].ID != id {
				t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
			}
		}
	})
}

func TestRepository_DeleteTask(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		repo.SaveTask(ctx, task("a", "A", StatusPending, PriorityLow, clock.now()))

		removed, err := repo.DeleteTask(ctx, "a")
		if err != nil || !removed {
			t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
		}
		removed, _ = repo.DeleteTask(ctx, "a")
		if removed {
			t.Error("expected second delete to report false")
		}
		if _, err := repo.GetTask(ctx, "a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestRepository_PlanTasksReflectLaterMutations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		a := task("a", "A", StatusPending, PriorityLow, clock.now())
		b := task("b", "B", StatusPending, PriorityLow, clock.now())
		repo.SaveTask(ctx, a)
		repo.SaveTask(ctx, b)

		plan := &TaskPlan{
			ID:        "plan-1",
			Name:      "Review: repo",
			Tasks:     []Task{*a, *b},
			Status:    StatusPending,
			CreatedAt: clock.now(),
		}
		if err := repo.SavePlan(ctx, plan); err != nil {
			t.Fatalf("SavePlan: %v", err)
		}

		a.Status = StatusCompleted
		repo.SaveTask(ctx, a)
		repo.DeleteTask(ctx, "b")

		got, err := repo.GetPlan(ctx, "plan-1")
		if err != nil {
			t.Fatalf("GetPlan: %v", err)
		}
		if len(got.Tasks) != 2 {
			t.Fatalf("expected 2 plan tasks, got %d", len(got.Tasks))
		}
		if got.Tasks[0].Status != StatusCompleted {
			t.Errorf("expected refreshed status completed, got %s", got.Tasks[0].Status)
		}
		if got.Tasks[1].ID != "b" {
			t.Errorf("expected deleted task snapshot to remain, got %s", got.Tasks[1].ID)
		}

		if _, err := repo.GetPlan(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown plan, got %v", err)
		}
	})
}

func TestRepository_ListPlans_NewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		repo.SavePlan(ctx, &TaskPlan{ID: "old", Name: "Old", Status: StatusPending, CreatedAt: clock.now()})
		repo.SavePlan(ctx, &TaskPlan{ID: "new", Name: "New", Status: StatusPending, CreatedAt: clock.now()})

		plans, err := repo.ListPlans(ctx)
		if err != nil {
			t.Fatalf("ListPlans: %v", err)
		}
		if len(plans) != 2 || plans[0].ID != "new" {
			t.Fatalf("expected newest plan first, got %+v", plans)
		}
	})
}

func TestRepository_UpdateTask(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo clockedRepo, clock *fakeClock) {
		ctx := context.Background()
		in := task("a", "A", StatusPending, PriorityLow, clock.now())
		if err := repo.SaveTask(ctx, in); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}

		got, err := repo.UpdateTask(ctx, "a", func(t *Task) error {
			t.Status = StatusInProgress
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		if got.Status != StatusInProgress {
			t.Errorf("expected in_progress, got %s", got.Status)
		}
		if !got.UpdatedAt.After(in.UpdatedAt) {
			t.Errorf("expected UpdatedAt to advance past %v, got %v", in.UpdatedAt, got.UpdatedAt)
		}

		boom := errors.New("boom")
		_, err = repo.UpdateTask(ctx, "a", func(t *Task) error {
			t.Status = StatusFailed
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error, got %v", err)
		}
		stored, _ := repo.GetTask(ctx, "a")
		if stored.Status != StatusInProgress {
			t.Errorf("expected failed update to leave status in_progress, got %s", stored.Status)
		}

		if _, err := repo.UpdateTask(ctx, "missing", func(*Task) error { return nil }); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepository_UpdateTask_Serialized(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			repo := mk(t)
			ctx := context.Background()
			if err := repo.SaveTask(ctx, task("n", "N", StatusPending, PriorityLow, time.Now().UTC())); err != nil {
				t.Fatalf("SaveTask: %v", err)
			}

			const writers = 20
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					repo.UpdateTask(ctx, "n", func(t *Task) error {
						t.Tags = append(t.Tags, "x")
						return nil
					})
				}()
			}
			wg.Wait()

			got, err := repo.GetTask(ctx, "n")
			if err != nil {
				t.Fatalf("GetTask: %v", err)
			}
			if len(got.Tags) != writers {
				t.Errorf("expected %d tags after concurrent updates, got %d", writers, len(got.Tags))
			}
		})
	}
}
