package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/store"
)

// Reporter renders a report, optionally scoped to one plan.
type Reporter interface {
	Generate(ctx context.Context, planID string) (string, error)
}

// Batch operations registered by RegisterLifecycle.
var BatchOperations = []string{"create", "complete", "error", "status"}

// RegisterLifecycle registers handlers for every known event type and the
// batch operations, all backed by svc and rep.
func RegisterLifecycle(d *Dispatcher, svc *planner.Service, rep Reporter) {
	h := lifecycleHandlers{svc: svc, rep: rep}

	byOp := map[string]Handler{
		"create":   h.create,
		"complete": h.complete,
		"error":    h.fail,
		"status":   h.status,
	}

	d.Register(EventTaskCreate, h.create)
	d.Register(EventTaskComplete, h.complete)
	d.Register(EventTaskError, h.fail)
	d.Register(EventTaskStatus, h.status)
	d.Register(EventReportGenerate, h.report)
	d.Register(EventPlanImport, h.importPlan)
	for _, op := range BatchOperations {
		d.Register(BatchPrefix+op, byOp[op])
	}
}

type lifecycleHandlers struct {
	svc *planner.Service
	rep Reporter
}

func (h lifecycleHandlers) create(ctx context.Context, p Payload) (Result, error) {
	title, err := p.RequireString("title")
	if err != nil {
		return Result{}, err
	}
	description, err := p.OptString("description")
	if err != nil {
		return Result{}, err
	}
	priority, err := p.OptString("priority")
	if err != nil {
		return Result{}, err
	}
	due, err := p.OptTime("dueDate")
	if err != nil {
		return Result{}, err
	}
	tags, err := p.OptStrings("tags")
	if err != nil {
		return Result{}, err
	}
	estimated, err := p.OptFloat("estimatedHours")
	if err != nil {
		return Result{}, err
	}

	task, err := h.svc.CreateTask(ctx, planner.NewTask{
		Title:          title,
		Description:    description,
		Priority:       store.TaskPriority(priority),
		DueDate:        due,
		Tags:           tags,
		EstimatedHours: estimated,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusCreated, Task: task}, nil
}

func (h lifecycleHandlers) complete(ctx context.Context, p Payload) (Result, error) {
	id, err := p.RequireString("taskId")
	if err != nil {
		return Result{}, err
	}
	hours, err := p.OptFloat("actualHours")
	if err != nil {
		return Result{}, err
	}

	task, err := h.svc.CompleteTask(ctx, id, hours)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Status: StatusCompleted}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusCompleted, Task: task}, nil
}

func (h lifecycleHandlers) fail(ctx context.Context, p Payload) (Result, error) {
	id, err := p.RequireString("taskId")
	if err != nil {
		return Result{}, err
	}
	message, err := p.RequireString("errorMessage")
	if err != nil {
		return Result{}, err
	}

	task, err := h.svc.MarkTaskError(ctx, id, message)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Status: StatusFailed}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusFailed, Task: task}, nil
}

func (h lifecycleHandlers) status(ctx context.Context, p Payload) (Result, error) {
	id, err := p.RequireString("taskId")
	if err != nil {
		return Result{}, err
	}
	status, err := p.RequireString("status")
	if err != nil {
		return Result{}, err
	}

	task, err := h.svc.UpdateTaskStatus(ctx, id, status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Result{Status: StatusUpdated}, nil
	case errors.Is(err, store.ErrInvalidStatus):
		return Result{Status: StatusUpdated, Error: fmt.Sprintf("invalid status %q", status)}, nil
	case err != nil:
		return Result{}, err
	}
	return Result{Status: StatusUpdated, Task: task}, nil
}

func (h lifecycleHandlers) report(ctx context.Context, p Payload) (Result, error) {
	planID, err := p.OptString("planId")
	if err != nil {
		return Result{}, err
	}
	text, err := h.rep.Generate(ctx, planID)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusGenerated, Report: text}, nil
}

func (h lifecycleHandlers) importPlan(ctx context.Context, p Payload) (Result, error) {
	source, err := p.RequireString("source")
	if err != nil {
		return Result{}, err
	}
	analysis, err := planner.DecodeAnalysis(p["analysis"])
	if err != nil {
		return Result{}, err
	}
	plan, err := h.svc.PlanFromAnalysis(ctx, analysis, source)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusPlanned, Plan: plan}, nil
}
