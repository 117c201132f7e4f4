package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the generic structured form of a Task or TaskPlan, used for
// transport payloads and storage snapshots. Keys are camelCase; optional
// fields are present with a nil value when unset.
type Record map[string]any

// TimeLayout is the timestamp format used inside records.
const TimeLayout = time.RFC3339Nano

// ToRecord converts a task and its subtasks into a Record.
//
// TaskFromRecord(t.ToRecord()) equals t for any task in canonical form:
// timestamps in UTC, and Tags, Dependencies and Metadata either nil or
// non-empty. Other tasks come back canonicalized. Times keep their instant
// but move to UTC, and empty collections decode as nil.
func (t *Task) ToRecord() Record {
	tr := flatten(t)
	recs := make([]Record, tr.size())
	for i := range tr.nodes {
		recs[i] = taskScalarsRecord(&tr.nodes[i].task)
	}
	for i := range tr.nodes {
		subs := make([]any, 0, len(tr.nodes[i].children))
		for _, c := range tr.nodes[i].children {
			subs = append(subs, recs[c])
		}
		recs[i]["subtasks"] = subs
	}
	return recs[0]
}

func taskScalarsRecord(t *Task) Record {
	return Record{
		"id":             t.ID,
		"title":          t.Title,
		"description":    t.Description,
		"status":         string(t.Status),
		"priority":       string(t.Priority),
		"createdAt":      formatTime(t.CreatedAt),
		"updatedAt":      formatTime(t.UpdatedAt),
		"dueDate":        formatTimePtr(t.DueDate),
		"assignedTo":     stringPtrValue(t.AssignedTo),
		"tags":           stringsValue(t.Tags),
		"errorMessage":   stringPtrValue(t.ErrorMessage),
		"completionTime": formatTimePtr(t.CompletionTime),
		"dependencies":   stringsValue(t.Dependencies),
		"estimatedHours": floatPtrValue(t.EstimatedHours),
		"actualHours":    floatPtrValue(t.ActualHours),
		"metadata":       metadataValue(t.Metadata),
	}
}

// TaskFromRecord rebuilds a Task from its Record form. Status and priority
// are validated; a missing status defaults to pending and a missing
// priority to medium.
func TaskFromRecord(rec map[string]any) (*Task, error) {
	tr := &tree{}
	queue := []any{rec}
	parents := []int{-1}
	for i := 0; i < len(queue); i++ {
		m, ok := asMap(queue[i])
		if !ok {
			return nil, fmt.Errorf("decode task: subtask %d is %T, not an object", i, queue[i])
		}
		t, subs, err := decodeTaskScalars(m)
		if err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tr.add(t, parents[i])
		for _, s := range subs {
			queue = append(queue, s)
			parents = append(parents, i)
		}
	}
	t := tr.build()
	return &t, nil
}

// MarshalJSON encodes the task in its Record form.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToRecord())
}

// UnmarshalJSON decodes a task from its Record form.
func (t *Task) UnmarshalJSON(data []byte) error {
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	decoded, err := TaskFromRecord(rec)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

// ToRecord converts a plan and its tasks into a Record.
func (p *TaskPlan) ToRecord() Record {
	tasks := make([]any, 0, len(p.Tasks))
	for i := range p.Tasks {
		tasks = append(tasks, p.Tasks[i].ToRecord())
	}
	return Record{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"tasks":       tasks,
		"createdAt":   formatTime(p.CreatedAt),
		"updatedAt":   formatTime(p.UpdatedAt),
		"status":      string(p.Status),
		"owner":       stringPtrValue(p.Owner),
	}
}

// PlanFromRecord rebuilds a TaskPlan from its Record form.
func PlanFromRecord(rec map[string]any) (*TaskPlan, error) {
	p := &TaskPlan{}
	var err error
	if p.ID, err = stringField(rec, "id"); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.Name, err = stringField(rec, "name"); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.Description, err = stringField(rec, "description"); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.Status, err = statusField(rec); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.Owner, err = optStringField(rec, "owner"); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.CreatedAt, err = timeField(rec, "createdAt"); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if p.UpdatedAt, err = timeField(rec, "updatedAt"); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	raw, err := listField(rec, "tasks")
	if err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	for i, r := range raw {
		m, ok := asMap(r)
		if !ok {
			return nil, fmt.Errorf("decode plan: task %d is %T, not an object", i, r)
		}
		t, err := TaskFromRecord(m)
		if err != nil {
			return nil, fmt.Errorf("decode plan: task %d: %w", i, err)
		}
		p.Tasks = append(p.Tasks, *t)
	}
	return p, nil
}

// MarshalJSON encodes the plan in its Record form.
func (p TaskPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ToRecord())
}

// UnmarshalJSON decodes a plan from its Record form.
func (p *TaskPlan) UnmarshalJSON(data []byte) error {
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	decoded, err := PlanFromRecord(rec)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}

func decodeTaskScalars(rec map[string]any) (Task, []any, error) {
	var t Task
	var err error
	if t.ID, err = stringField(rec, "id"); err != nil {
		return t, nil, err
	}
	if t.Title, err = stringField(rec, "title"); err != nil {
		return t, nil, err
	}
	if t.Description, err = stringField(rec, "description"); err != nil {
		return t, nil, err
	}
	if t.Status, err = statusField(rec); err != nil {
		return t, nil, err
	}
	if t.Priority, err = priorityField(rec); err != nil {
		return t, nil, err
	}
	if t.CreatedAt, err = timeField(rec, "createdAt"); err != nil {
		return t, nil, err
	}
	if t.UpdatedAt, err = timeField(rec, "updatedAt"); err != nil {
		return t, nil, err
	}
	if t.DueDate, err = optTimeField(rec, "dueDate"); err != nil {
		return t, nil, err
	}
	if t.AssignedTo, err = optStringField(rec, "assignedTo"); err != nil {
		return t, nil, err
	}
	if t.Tags, err = stringsField(rec, "tags"); err != nil {
		return t, nil, err
	}
	if t.ErrorMessage, err = optStringField(rec, "errorMessage"); err != nil {
		return t, nil, err
	}
	if t.CompletionTime, err = optTimeField(rec, "completionTime"); err != nil {
		return t, nil, err
	}
	if t.Dependencies, err = stringsField(rec, "dependencies"); err != nil {
		return t, nil, err
	}
	if t.EstimatedHours, err = optFloatField(rec, "estimatedHours"); err != nil {
		return t, nil, err
	}
	if t.ActualHours, err = optFloatField(rec, "actualHours"); err != nil {
		return t, nil, err
	}
	if v, ok := rec["metadata"]; ok && v != nil {
		m, ok := asMap(v)
		if !ok {
			return t, nil, fmt.Errorf("field metadata: expected object, got %T", v)
		}
		if len(m) > 0 {
			t.Metadata = make(map[string]any, len(m))
			for k, val := range m {
				t.Metadata[k] = val
			}
		}
	}
	subs, err := listField(rec, "subtasks")
	if err != nil {
		return t, nil, err
	}
	return t, subs, nil
}

// --- field helpers ---

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func stringField(rec map[string]any, key string) (string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s: expected string, got %T", key, v)
	}
	return s, nil
}

func optStringField(rec map[string]any, key string) (*string, error) {
	if v, ok := rec[key]; !ok || v == nil {
		return nil, nil
	}
	s, err := stringField(rec, key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func statusField(rec map[string]any) (TaskStatus, error) {
	s, err := stringField(rec, "status")
	if err != nil {
		return "", err
	}
	if s == "" {
		return StatusPending, nil
	}
	return ParseStatus(s)
}

func priorityField(rec map[string]any) (TaskPriority, error) {
	s, err := stringField(rec, "priority")
	if err != nil {
		return "", err
	}
	return ParsePriority(s)
}

func timeField(rec map[string]any, key string) (time.Time, error) {
	t, err := optTimeField(rec, key)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}

func optTimeField(rec map[string]any, key string) (*time.Time, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch tv := v.(type) {
	case time.Time:
		return &tv, nil
	case string:
		if tv == "" {
			return nil, nil
		}
		t, err := ParseTime(tv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("field %s: expected timestamp string, got %T", key, v)
	}
}

// ParseTime accepts RFC 3339 timestamps (with or without fractional
// seconds) and bare dates.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func optFloatField(rec map[string]any, key string) (*float64, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("field %s: expected number, got %T", key, v)
	}
	if f < 0 {
		return nil, fmt.Errorf("field %s: must not be negative, got %v", key, f)
	}
	return &f, nil
}

func listField(rec map[string]any, key string) ([]any, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []any:
		return l, nil
	case []Record:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %s: expected list, got %T", key, v)
	}
}

func stringsField(rec map[string]any, key string) ([]string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	if l, ok := v.([]string); ok {
		return cloneStrings(l), nil
	}
	raw, err := listField(rec, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %s[%d]: expected string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func stringPtrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatPtrValue(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func stringsValue(s []string) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

func metadataValue(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
