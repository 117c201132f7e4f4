package planner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/imkarma/taskplan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	repo := store.NewMemory()
	clock := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	repo.SetClock(tick)
	n := 0
	svc := New(repo,
		WithClock(tick),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return svc, repo
}

func TestCreateTask_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, NewTask{Title: "Write docs"})
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, store.StatusPending, task.Status)
	assert.Equal(t, store.PriorityMedium, task.Priority)
	assert.Nil(t, task.CompletionTime)

	got, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write docs", got.Title)
}

func TestCreateTask_DefaultIDsAreUnique(t *testing.T) {
	svc := New(store.NewMemory(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	a, err := svc.CreateTask(ctx, NewTask{Title: "A"})
	require.NoError(t, err)
	b, err := svc.CreateTask(ctx, NewTask{Title: "B"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Regexp(t, `^task-[0-9a-f-]{36}$`, a.ID)
}

func TestCreateTask_RejectsInvalidPriority(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateTask(context.Background(), NewTask{Title: "X", Priority: "urgent"})
	assert.ErrorIs(t, err, store.ErrInvalidPriority)
}

func TestUpdateTaskStatus_CompletedStampsCompletionTime(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})

	updated, err := svc.UpdateTaskStatus(ctx, task.ID, "completed")
	require.NoError(t, err)
	require.NotNil(t, updated.CompletionTime)
	first := *updated.CompletionTime

	// Moving away from completed keeps the stamp.
	updated, err = svc.UpdateTaskStatus(ctx, task.ID, "in_progress")
	require.NoError(t, err)
	require.NotNil(t, updated.CompletionTime)
	assert.True(t, updated.CompletionTime.Equal(first))
	assert.Equal(t, store.StatusInProgress, updated.Status)
}

func TestUpdateTaskStatus_NonCompletedLeavesCompletionTimeNil(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})

	updated, err := svc.UpdateTaskStatus(ctx, task.ID, "blocked")
	require.NoError(t, err)
	assert.Equal(t, store.StatusBlocked, updated.Status)
	assert.Nil(t, updated.CompletionTime)
}

func TestUpdateTaskStatus_InvalidStatusLeavesTaskUnchanged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})
	before, _ := svc.GetTask(ctx, task.ID)

	_, err := svc.UpdateTaskStatus(ctx, task.ID, "not-a-real-status")
	assert.ErrorIs(t, err, store.ErrInvalidStatus)

	after, _ := svc.GetTask(ctx, task.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestUpdateTaskStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateTaskStatus(context.Background(), "missing", "completed")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkTaskError(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})

	_, err := svc.MarkTaskError(ctx, task.ID, "first")
	require.NoError(t, err)
	failed, err := svc.MarkTaskError(ctx, task.ID, "second")
	require.NoError(t, err)

	assert.Equal(t, store.StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "second", *failed.ErrorMessage)

	// A later status change keeps the message.
	moved, err := svc.UpdateTaskStatus(ctx, task.ID, "pending")
	require.NoError(t, err)
	require.NotNil(t, moved.ErrorMessage)
	assert.Equal(t, "second", *moved.ErrorMessage)

	_, err = svc.MarkTaskError(ctx, "missing", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteTask_ActualHours(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})

	three := 3.0
	done, err := svc.CompleteTask(ctx, task.ID, &three)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletionTime)
	require.NotNil(t, done.ActualHours)
	assert.Equal(t, 3.0, *done.ActualHours)

	zero := 0.0
	done, err = svc.CompleteTask(ctx, task.ID, &zero)
	require.NoError(t, err)
	require.NotNil(t, done.ActualHours)
	assert.Equal(t, 3.0, *done.ActualHours, "zero hours must not overwrite")

	done, err = svc.CompleteTask(ctx, task.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *done.ActualHours)
}

func TestCompleteTask_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CompleteTask(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})

	removed, err := svc.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestListTasksByPattern(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.CreateTask(ctx, NewTask{Title: "Fix api/handler.go", Description: "nil deref"})
	svc.CreateTask(ctx, NewTask{Title: "Write README", Description: "document the HANDLER flags"})
	other, _ := svc.CreateTask(ctx, NewTask{Title: "Bump deps"})
	svc.UpdateTaskStatus(ctx, other.ID, "completed")

	got, err := svc.ListTasksByPattern(ctx, "*handler*", "")
	require.NoError(t, err)
	assert.Len(t, got, 2, "match spans '/' and is case-insensitive")

	got, err = svc.ListTasksByPattern(ctx, "fix ?pi/*", "pending")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fix api/handler.go", got[0].Title)

	got, err = svc.ListTasksByPattern(ctx, "", "completed")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)

	_, err = svc.ListTasksByPattern(ctx, "*", "done")
	assert.ErrorIs(t, err, store.ErrInvalidStatus)
}

func TestListTasksByPattern_ShellGlobSyntax(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, title := range []string{
		"fix [legacy] importer",
		"use {a,b} syntax",
		"use a syntax",
		`escape C:\temp`,
		"task-7 ready",
		"plain",
	} {
		_, err := svc.CreateTask(ctx, NewTask{Title: title})
		require.NoError(t, err)
	}

	cases := []struct {
		pattern string
		want    []string
	}{
		{"fix [legacy*", []string{"fix [legacy] importer"}},
		{"use {a,b}*", []string{"use {a,b} syntax"}},
		{`escape c:\t*`, []string{`escape C:\temp`}},
		{"task-[0-9] *", []string{"task-7 ready"}},
		{"task-[!0-9] *", nil},
		{"[]p]lain", []string{"plain"}},
		{"*]*", []string{"fix [legacy] importer"}},
		{"[", nil},
	}
	for _, c := range cases {
		t.Run(c.pattern, func(t *testing.T) {
			got, err := svc.ListTasksByPattern(ctx, c.pattern, "")
			require.NoError(t, err)
			var titles []string
			for _, tk := range got {
				titles = append(titles, tk.Title)
			}
			assert.ElementsMatch(t, c.want, titles)
		})
	}
}

// gatedClock blocks the caller of the next now() after arm until release
// is closed, signalling entered first.
type gatedClock struct {
	mu      sync.Mutex
	t       time.Time
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (c *gatedClock) now() time.Time {
	c.mu.Lock()
	gate := c.armed
	c.armed = false
	c.mu.Unlock()
	if gate {
		close(c.entered)
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestLifecycle_ConcurrentChangesDoNotLoseUpdates(t *testing.T) {
	clock := &gatedClock{
		t:       time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := New(store.NewMemory(),
		WithClock(clock.now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctx := context.Background()
	task, err := svc.CreateTask(ctx, NewTask{Title: "contended"})
	require.NoError(t, err)

	clock.mu.Lock()
	clock.armed = true
	clock.mu.Unlock()

	failDone := make(chan error, 1)
	go func() {
		_, err := svc.MarkTaskError(ctx, task.ID, "boom")
		failDone <- err
	}()
	<-clock.entered

	completeDone := make(chan error, 1)
	go func() {
		_, err := svc.CompleteTask(ctx, task.ID, nil)
		completeDone <- err
	}()

	select {
	case <-completeDone:
		t.Fatal("CompleteTask ran while MarkTaskError was mid-update")
	case <-time.After(50 * time.Millisecond):
	}

	close(clock.release)
	require.NoError(t, <-failDone)
	require.NoError(t, <-completeDone)

	got, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletionTime)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
}

func TestLifecycle_CompletionTimeSurvivesLaterFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	task, _ := svc.CreateTask(ctx, NewTask{Title: "A"})

	done, err := svc.CompleteTask(ctx, task.ID, nil)
	require.NoError(t, err)
	failed, err := svc.MarkTaskError(ctx, task.ID, "late")
	require.NoError(t, err)

	assert.Equal(t, store.StatusFailed, failed.Status)
	require.NotNil(t, failed.CompletionTime)
	assert.True(t, done.CompletionTime.Equal(*failed.CompletionTime))
}
