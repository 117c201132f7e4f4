package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/imkarma/taskplan/internal/store"
)

// Payload is the decoded body of an event.
type Payload map[string]any

// payloadAliases maps accepted snake_case keys to their canonical names.
var payloadAliases = map[string]string{
	"task_id":         "taskId",
	"plan_id":         "planId",
	"due_date":        "dueDate",
	"estimated_hours": "estimatedHours",
	"actual_hours":    "actualHours",
	"error_message":   "errorMessage",
}

// Normalize returns a copy of p with snake_case aliases renamed to their
// camelCase keys. A camelCase key already present wins over its alias.
func (p Payload) Normalize() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	for alias, key := range payloadAliases {
		v, ok := out[alias]
		if !ok {
			continue
		}
		delete(out, alias)
		if _, exists := out[key]; !exists {
			out[key] = v
		}
	}
	return out
}

// RequireString returns a non-empty string field.
func (p Payload) RequireString(key string) (string, error) {
	s, err := p.OptString(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("payload missing %q", key)
	}
	return s, nil
}

// OptString returns a string field, or "" when absent or null.
func (p Payload) OptString(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q: expected string, got %T", key, v)
	}
	return s, nil
}

// OptFloat returns a numeric field, or nil when absent or null.
func (p Payload) OptFloat(key string) (*float64, error) {
	v, ok := p[key]
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
			return nil, fmt.Errorf("payload field %q: %w", key, err)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("payload field %q: expected number, got %T", key, v)
	}
	return &f, nil
}

// OptTime returns a timestamp field, or nil when absent or null.
func (p Payload) OptTime(key string) (*time.Time, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case time.Time:
		u := t.UTC()
		return &u, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := store.ParseTime(t)
		if err != nil {
			return nil, fmt.Errorf("payload field %q: %w", key, err)
		}
		return &parsed, nil
	default:
		return nil, fmt.Errorf("payload field %q: expected timestamp, got %T", key, v)
	}
}

// OptStrings returns a list-of-strings field, or nil when absent or null.
func (p Payload) OptStrings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("payload field %q[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload field %q: expected list, got %T", key, v)
	}
}
