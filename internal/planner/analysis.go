package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/imkarma/taskplan/internal/store"
)

// DefaultPlanDescription is used when an analysis carries no summary.
const DefaultPlanDescription = "Auto-generated from code analysis"

// AnalysisTags are attached to every task generated from an analysis.
var AnalysisTags = []string{"auto-generated", "code-review"}

// Analysis is the output of a code review to be turned into a plan.
type Analysis struct {
	Tasks   []AnalysisTask `json:"tasks"`
	Review  string         `json:"review"`
	Summary string         `json:"summary"`
}

// AnalysisTask is one suggested unit of work.
type AnalysisTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Effort      Effort `json:"effort"`
}

// Effort is a free-form estimate whose leading token is a number of hours,
// e.g. "4 hours" or "2.5". JSON numbers are accepted too.
type Effort string

// UnmarshalJSON accepts a string, a number, or null.
func (e *Effort) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = Effort(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("effort must be a string or number: %w", err)
	}
	*e = Effort(n.String())
	return nil
}

// Hours parses the leading token. An empty effort yields nil.
func (e Effort) Hours() (*float64, error) {
	fields := strings.Fields(string(e))
	if len(fields) == 0 {
		return nil, nil
	}
	h, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid effort %q: leading token is not a number", string(e))
	}
	if h < 0 {
		return nil, fmt.Errorf("invalid effort %q: hours must not be negative", string(e))
	}
	return &h, nil
}

// DecodeAnalysis converts a loosely typed payload into an Analysis.
func DecodeAnalysis(v any) (Analysis, error) {
	var a Analysis
	if v == nil {
		return a, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return a, fmt.Errorf("encode analysis: %w", err)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("decode analysis: %w", err)
	}
	return a, nil
}

// PlanID derives a stable plan id from a source identifier.
func PlanID(source string) string {
	return fmt.Sprintf("plan-%d", xxhash.Sum64String(source)%(1<<31))
}

// PlanName is "Review: " followed by the last path segment of source.
func PlanName(source string) string {
	trimmed := strings.TrimRight(source, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return "Review: " + trimmed
}

// PlanFromAnalysis builds and persists one task per analysis entry, then a
// plan grouping them. Task ids are "<planID>-task-<n>" counting from 1, so
// importing the same source again overwrites the earlier plan. Every entry
// is validated before anything is written.
func (s *Service) PlanFromAnalysis(ctx context.Context, a Analysis, source string) (*store.TaskPlan, error) {
	planID := PlanID(source)
	now := s.now()

	tasks := make([]store.Task, 0, len(a.Tasks))
	for i, at := range a.Tasks {
		idx := i + 1

		priority, err := store.ParsePriority(at.Priority)
		if err != nil {
			return nil, fmt.Errorf("analysis task %d: %w", idx, err)
		}
		hours, err := at.Effort.Hours()
		if err != nil {
			return nil, fmt.Errorf("analysis task %d: %w", idx, err)
		}

		title := at.Title
		if title == "" {
			title = fmt.Sprintf("Task %d", idx)
		}

		task := store.NewTask(fmt.Sprintf("%s-task-%d", planID, idx), title, at.Description, now)
		task.Priority = priority
		task.EstimatedHours = hours
		task.Tags = append([]string(nil), AnalysisTags...)
		task.Metadata = map[string]any{
			"repo_url": source,
			"analysis": a.Review,
		}
		if a.Summary != "" {
			task.Metadata["summary"] = a.Summary
		}
		tasks = append(tasks, *task)
	}

	for i := range tasks {
		if err := s.repo.SaveTask(ctx, &tasks[i]); err != nil {
			return nil, fmt.Errorf("save plan task: %w", err)
		}
	}

	description := a.Summary
	if description == "" {
		description = DefaultPlanDescription
	}
	plan := &store.TaskPlan{
		ID:          planID,
		Name:        PlanName(source),
		Description: description,
		Tasks:       tasks,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      store.StatusPending,
	}
	if err := s.repo.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	s.logger.Info("Created plan from analysis", "plan_id", planID, "source", source, "tasks", len(tasks))
	return plan, nil
}

// ListPlans returns all stored plans, newest first.
func (s *Service) ListPlans(ctx context.Context) ([]store.TaskPlan, error) {
	return s.repo.ListPlans(ctx)
}

// GetPlan returns a plan with its tasks refreshed from the store.
func (s *Service) GetPlan(ctx context.Context, id string) (*store.TaskPlan, error) {
	return s.repo.GetPlan(ctx, id)
}
