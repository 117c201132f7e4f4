// Package report renders a markdown summary of tasks grouped by status.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imkarma/taskplan/internal/store"
)

// Sections is the order in which status sections are rendered.
var Sections = []store.TaskStatus{
	store.StatusInProgress,
	store.StatusPending,
	store.StatusCompleted,
	store.StatusFailed,
	store.StatusBlocked,
}

const timeLayout = "2006-01-02 15:04:05"

// Generator builds reports from a repository.
type Generator struct {
	repo store.Repository
	now  func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time printed in the report header.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator over repo.
func New(repo store.Repository, opts ...Option) *Generator {
	g := &Generator{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Summary holds the per-status counts of a report.
type Summary struct {
	Total  int
	Counts map[store.TaskStatus]int
}

// Generate renders the report. An empty planID covers every task; a planID
// that does not resolve yields a report with no tasks.
func (g *Generator) Generate(ctx context.Context, planID string) (string, error) {
	var (
		plan  *store.TaskPlan
		tasks []store.Task
	)
	if planID != "" {
		p, err := g.repo.GetPlan(ctx, planID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return "", fmt.Errorf("load plan: %w", err)
		default:
			plan = p
			tasks = p.Tasks
		}
	} else {
		all, err := g.repo.ListTasks(ctx, store.Filter{})
		if err != nil {
			return "", fmt.Errorf("list tasks: %w", err)
		}
		tasks = all
	}
	return Render(plan, tasks, g.now()), nil
}

// Summarize counts tasks per status.
func Summarize(tasks []store.Task) Summary {
	s := Summary{Total: len(tasks), Counts: make(map[store.TaskStatus]int)}
	for _, t := range tasks {
		s.Counts[t.Status]++
	}
	return s
}

// Render formats tasks as markdown. plan may be nil.
func Render(plan *store.TaskPlan, tasks []store.Task, generated time.Time) string {
	var b strings.Builder
	b.WriteString("# Task Report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format(timeLayout))

	if plan != nil {
		fmt.Fprintf(&b, "## Plan: %s\n", plan.Name)
		fmt.Fprintf(&b, "%s\n\n", plan.Description)
	}

	byStatus := make(map[store.TaskStatus][]store.Task)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	for _, status := range Sections {
		group := byStatus[status]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s (%d)\n\n", status.Label(), len(group))
		for i := range group {
			writeTask(&b, &group[i])
		}
	}

	sum := Summarize(tasks)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total Tasks: %d\n", sum.Total)
	fmt.Fprintf(&b, "- Completed: %d\n", sum.Counts[store.StatusCompleted])
	fmt.Fprintf(&b, "- In Progress: %d\n", sum.Counts[store.StatusInProgress])
	fmt.Fprintf(&b, "- Pending: %d\n", sum.Counts[store.StatusPending])
	fmt.Fprintf(&b, "- Failed: %d\n", sum.Counts[store.StatusFailed])
	fmt.Fprintf(&b, "- Blocked: %d\n", sum.Counts[store.StatusBlocked])
	return b.String()
}

func writeTask(b *strings.Builder, t *store.Task) {
	fmt.Fprintf(b, "- **%s** [%s]\n", t.Title, t.Priority)
	fmt.Fprintf(b, "  - Status: %s\n", t.Status)
	fmt.Fprintf(b, "  - Description: %s\n", t.Description)
	if t.EstimatedHours != nil && *t.EstimatedHours > 0 {
		fmt.Fprintf(b, "  - Estimated: %sh\n", hours(*t.EstimatedHours))
	}
	if t.ActualHours != nil && *t.ActualHours > 0 {
		fmt.Fprintf(b, "  - Actual: %sh\n", hours(*t.ActualHours))
	}
	if t.DueDate != nil {
		fmt.Fprintf(b, "  - Due: %s\n", t.DueDate.Format(timeLayout))
	}
	if t.ErrorMessage != nil && *t.ErrorMessage != "" {
		fmt.Fprintf(b, "  - Error: %s\n", *t.ErrorMessage)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(b, "  - Tags: %s\n", strings.Join(t.Tags, ", "))
	}
	b.WriteString("\n")
}

func hours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
