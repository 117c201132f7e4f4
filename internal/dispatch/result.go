package dispatch

import (
	"encoding/json"

	"github.com/imkarma/taskplan/internal/store"
)

// Result status tags.
const (
	StatusCreated      = "created"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusUpdated      = "updated"
	StatusGenerated    = "generated"
	StatusPlanned      = "planned"
	StatusUnknownEvent = "unknown_event"
)

// Result is what a handler hands back for one event. Task is nil when the
// event referred to a task that does not exist.
type Result struct {
	Status string
	Task   *store.Task
	Plan   *store.TaskPlan
	Report string
	Error  string
}

// MarshalJSON renders the result in its wire shape: report events carry
// "report", plan events carry "plan", unknown events carry "error", and
// every other event carries "task" (null when not found).
func (r Result) MarshalJSON() ([]byte, error) {
	out := map[string]any{"status": r.Status}
	switch r.Status {
	case StatusGenerated:
		out["report"] = r.Report
	case StatusPlanned:
		if r.Plan != nil {
			out["plan"] = r.Plan.ToRecord()
		} else {
			out["plan"] = nil
		}
	case StatusUnknownEvent:
		out["error"] = r.Error
	default:
		if r.Task != nil {
			out["task"] = r.Task.ToRecord()
		} else {
			out["task"] = nil
		}
		if r.Error != "" {
			out["error"] = r.Error
		}
	}
	return json.Marshal(out)
}

// Found reports whether the result refers to an existing entity.
func (r Result) Found() bool {
	return r.Task != nil || r.Plan != nil || r.Status == StatusGenerated
}
