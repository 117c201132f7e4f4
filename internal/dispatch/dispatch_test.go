package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/report"
	"github.com/imkarma/taskplan/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	d    *Dispatcher
	svc  *planner.Service
	repo *store.MemoryStore
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	repo := store.NewMemory()
	n := 0
	svc := planner.New(repo,
		planner.WithLogger(quietLogger()),
		planner.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		}),
	)
	d := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	RegisterLifecycle(d, svc, report.New(repo))
	return fixture{d: d, svc: svc, repo: repo}
}

func TestDispatch_CreateScenario(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Dispatch(context.Background(), EventTaskCreate, Payload{"title": "Ship it", "priority": "high"})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	require.NotNil(t, res.Task)

	rec := res.Task.ToRecord()
	assert.Equal(t, "pending", rec["status"])
	assert.Equal(t, "high", rec["priority"])
	assert.Nil(t, rec["dueDate"])
	assert.Nil(t, rec["estimatedHours"])
}

func TestDispatch_CompleteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.d.Dispatch(ctx, EventTaskCreate, Payload{"title": "A"})
	require.NoError(t, err)

	res, err := f.d.Dispatch(ctx, EventTaskComplete, Payload{"task_id": created.Task.ID, "actual_hours": 3.5})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Task)
	assert.Equal(t, store.StatusCompleted, res.Task.Status)
	assert.NotNil(t, res.Task.CompletionTime)
	require.NotNil(t, res.Task.ActualHours)
	assert.Equal(t, 3.5, *res.Task.ActualHours)
}

func TestDispatch_MissingTaskYieldsNullTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct {
		event   string
		payload Payload
		status  string
	}{
		{EventTaskComplete, Payload{"taskId": "missing"}, StatusCompleted},
		{EventTaskError, Payload{"taskId": "missing", "errorMessage": "x"}, StatusFailed},
		{EventTaskStatus, Payload{"taskId": "missing", "status": "completed"}, StatusUpdated},
	} {
		res, err := f.d.Dispatch(ctx, tc.event, tc.payload)
		require.NoError(t, err, tc.event)
		assert.Equal(t, tc.status, res.Status)
		assert.Nil(t, res.Task)

		data, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprintf(`{"status":%q,"task":null}`, tc.status), string(data))
	}
}

func TestDispatch_InvalidStatusIsSoftFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.d.Dispatch(ctx, EventTaskCreate, Payload{"title": "A"})

	res, err := f.d.Dispatch(ctx, EventTaskStatus, Payload{"taskId": created.Task.ID, "status": "not-a-real-status"})
	require.NoError(t, err)
	assert.Nil(t, res.Task)
	assert.Contains(t, res.Error, "not-a-real-status")

	stored, err := f.repo.GetTask(ctx, created.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, stored.Status)
}

func TestDispatch_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.d.Dispatch(ctx, "nonexistent.event", Payload{})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknownEvent, res.Status)
	assert.Equal(t, "Unknown event type: nonexistent.event", res.Error)

	tasks, _ := f.repo.ListTasks(ctx, store.Filter{})
	assert.Empty(t, tasks)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"unknown_event","error":"Unknown event type: nonexistent.event"}`, string(data))
}

func TestDispatch_KnownEventWithoutHandler(t *testing.T) {
	d := New(WithLogger(quietLogger()))

	_, err := d.Dispatch(context.Background(), EventTaskCreate, Payload{"title": "A"})
	assert.ErrorIs(t, err, ErrNoHandler)

	_, err = d.DispatchBatch(context.Background(), "create", []Payload{{"title": "A"}})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatch_ReportForMissingPlan(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Dispatch(context.Background(), EventReportGenerate, Payload{"planId": "missing-id"})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, res.Status)
	assert.Contains(t, res.Report, "- Total Tasks: 0\n")
	assert.Contains(t, res.Report, "- Completed: 0\n")
	assert.Contains(t, res.Report, "- In Progress: 0\n")
	assert.Contains(t, res.Report, "- Pending: 0\n")
	assert.Contains(t, res.Report, "- Failed: 0\n")
}

func TestDispatch_PlanImport(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Dispatch(context.Background(), EventPlanImport, Payload{
		"source": "https://github.com/acme/widgets",
		"analysis": map[string]any{
			"summary": "S",
			"tasks":   []any{map[string]any{"title": "Fix", "effort": "2 hours"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, res.Status)
	require.NotNil(t, res.Plan)
	assert.Len(t, res.Plan.Tasks, 1)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "planned", wire["status"])
	assert.Equal(t, res.Plan.ID, wire["plan"].(map[string]any)["id"])
}

func TestDispatch_HandlerFault(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(context.Background(), EventTaskCreate, Payload{"description": "no title"})
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, EventTaskCreate, herr.EventType)
	assert.Equal(t, -1, herr.Index)
	assert.NotErrorIs(t, err, ErrNoHandler)
}

func TestDispatch_RegisterReplaces(t *testing.T) {
	d := New(WithLogger(quietLogger()))
	d.Register("custom", func(context.Context, Payload) (Result, error) { return Result{Status: "first"}, nil })
	d.Register("custom", func(context.Context, Payload) (Result, error) { return Result{Status: "second"}, nil })

	res, err := d.Dispatch(context.Background(), "custom", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Status)
	assert.Equal(t, []string{"custom"}, d.EventTypes())
}

func TestDispatchBatch_PreservesOrder(t *testing.T) {
	f := newFixture(t)

	results, err := f.d.DispatchBatch(context.Background(), "create", []Payload{
		{"title": "a"}, {"title": "b"}, {"title": "c"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, StatusCreated, results[i].Status)
		assert.Equal(t, want, results[i].Task.Title)
	}
}

func TestDispatchBatch_AbortsOnFaultKeepingEarlierEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.d.DispatchBatch(ctx, "create", []Payload{
		{"title": "a"}, {"priority": "high"}, {"title": "c"},
	})
	assert.Nil(t, results)
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 1, herr.Index)
	assert.Equal(t, "batch.create", herr.EventType)

	tasks, _ := f.repo.ListTasks(ctx, store.Filter{})
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].Title)
}

func TestPayloadNormalize(t *testing.T) {
	p := Payload{"task_id": "t1", "taskId": "keep", "due_date": "2026-01-01", "other": 1}.Normalize()

	assert.Equal(t, "keep", p["taskId"])
	assert.Equal(t, "2026-01-01", p["dueDate"])
	assert.NotContains(t, p, "task_id")
	assert.Equal(t, 1, p["other"])
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"due":   "2026-02-03T04:05:06Z",
		"hours": json.Number("1.5"),
		"tags":  []any{"a", "b"},
		"bad":   []any{"a", 1},
		"num":   4,
	}

	due, err := p.OptTime("due")
	require.NoError(t, err)
	assert.True(t, due.Equal(time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)))

	h, err := p.OptFloat("hours")
	require.NoError(t, err)
	assert.Equal(t, 1.5, *h)

	n, err := p.OptFloat("num")
	require.NoError(t, err)
	assert.Equal(t, 4.0, *n)

	tags, err := p.OptStrings("tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)

	_, err = p.OptStrings("bad")
	assert.Error(t, err)

	_, err = p.OptString("num")
	assert.Error(t, err)

	missing, err := p.OptFloat("missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	f.d.Dispatch(ctx, EventTaskCreate, Payload{"title": "a"})
	f.d.Dispatch(ctx, EventTaskCreate, Payload{})
	f.d.Dispatch(ctx, "nope", Payload{})
	f.d.DispatchBatch(ctx, "create", []Payload{{"title": "b"}, {"title": "c"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(EventTaskCreate, outcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(EventTaskCreate, outcomeFault)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("unknown", outcomeUnknown)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.items.WithLabelValues("batch.create")))
}

func TestMetrics_UnregisteredBatchOperationsShareOneSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := f.d.DispatchBatch(ctx, fmt.Sprintf("bogus-%d", i), []Payload{{}})
		require.ErrorIs(t, err, ErrNoHandler)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.events))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.events.WithLabelValues("unknown", outcomeNoHandler)))
}

func TestHandlerErrorUnwraps(t *testing.T) {
	inner := errors.New("inner")
	err := error(&HandlerError{EventType: "x", Index: 2, Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "item 2")
}
