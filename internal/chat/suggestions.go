package chat

import (
	"regexp"
	"strings"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/store"
)

// Suggestion is a task proposed in an assistant reply.
type Suggestion struct {
	Title       string
	Description string
	Priority    string // low, medium, high, critical
	Effort      string // e.g. "3 hours"; empty when not given
}

var (
	listItemRe = regexp.MustCompile(`^(?:\d+[\.\)]\s*|[-*]\s+)(.+)`)
	priorityRe = regexp.MustCompile(`(?i)\(priority:\s*(low|medium|high|critical)\)`)
	effortRe   = regexp.MustCompile(`(?i)\(effort:\s*([^)]*)\)`)
)

// ParseSuggestions extracts suggested tasks from a reply.
// Expected format:
//
//	SUGGESTIONS:
//	1. Title - Description (priority: high) (effort: 3 hours)
//	2. Title - Description
//
// Without a SUGGESTIONS: header only list items carrying a priority or
// effort annotation are taken, so ordinary bullet points are ignored.
func ParseSuggestions(reply string) []Suggestion {
	var out []Suggestion
	inSection := false

	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(strings.ToUpper(trimmed), "SUGGESTIONS:") {
			inSection = true
			continue
		}
		if trimmed == "" {
			continue
		}

		match := listItemRe.FindStringSubmatch(trimmed)
		if match == nil {
			// A new heading ends the section.
			if inSection && strings.HasSuffix(trimmed, ":") {
				inSection = false
			}
			continue
		}

		content := match[1]
		annotated := priorityRe.MatchString(content) || effortRe.MatchString(content)
		if !inSection && !annotated {
			continue
		}

		if s, ok := parseSuggestion(content); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseSuggestion(content string) (Suggestion, bool) {
	s := Suggestion{Priority: string(store.PriorityMedium)}

	if m := priorityRe.FindStringSubmatch(content); m != nil {
		s.Priority = strings.ToLower(m[1])
		content = priorityRe.ReplaceAllString(content, "")
	}
	if m := effortRe.FindStringSubmatch(content); m != nil {
		s.Effort = strings.TrimSpace(m[1])
		content = effortRe.ReplaceAllString(content, "")
	}
	content = strings.TrimSpace(content)

	title := content
	if idx := strings.Index(content, " - "); idx > 0 {
		title = strings.TrimSpace(content[:idx])
		s.Description = strings.TrimSpace(content[idx+3:])
	}

	// Markdown decoration.
	title = strings.Trim(title, "[]*`")
	s.Title = strings.TrimSpace(title)

	return s, s.Title != ""
}

// NewTask converts the suggestion to planner input. An effort whose leading
// token is not a number is dropped rather than rejected.
func (s Suggestion) NewTask() planner.NewTask {
	in := planner.NewTask{
		Title:       s.Title,
		Description: s.Description,
		Priority:    store.TaskPriority(s.Priority),
		Tags:        []string{"chat"},
	}
	if h, err := planner.Effort(s.Effort).Hours(); err == nil {
		in.EstimatedHours = h
	}
	return in
}
