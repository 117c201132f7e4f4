package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/imkarma/taskplan/internal/store"
)

// maxSnapshotTasks caps how many open tasks the system prompt lists.
const maxSnapshotTasks = 25

// TaskLister is the slice of the planner the prompt builder reads from.
type TaskLister interface {
	ListTasks(ctx context.Context, f store.Filter) ([]store.Task, error)
}

// PromptBuilder assembles the system prompt from the current task list.
type PromptBuilder struct {
	tasks TaskLister
}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder(tasks TaskLister) *PromptBuilder {
	return &PromptBuilder{tasks: tasks}
}

// SystemPrompt returns the role header, a snapshot of open tasks and the
// reply format instructions.
func (b *PromptBuilder) SystemPrompt(ctx context.Context) (string, error) {
	var parts []string

	parts = append(parts, roleHeader())

	snapshot, err := b.openTasks(ctx)
	if err != nil {
		return "", err
	}
	if snapshot != "" {
		parts = append(parts, snapshot)
	}

	parts = append(parts, instructions())

	return strings.Join(parts, "\n\n"), nil
}

func roleHeader() string {
	return `You are a task planning assistant. Help users manage their tasks.
You can:
- Create tasks with descriptions and priorities
- Update task status (pending, in_progress, completed, failed, blocked)
- Generate task reports
- Organize tasks by priority and due date`
}

func (b *PromptBuilder) openTasks(ctx context.Context) (string, error) {
	all, err := b.tasks.ListTasks(ctx, store.Filter{})
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}

	var sb strings.Builder
	n := 0
	for _, t := range all {
		if t.Status == store.StatusCompleted || t.Status == store.StatusFailed {
			continue
		}
		if n == maxSnapshotTasks {
			sb.WriteString("- ...\n")
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s (status: %s, priority: %s", t.ID, t.Title, t.Status, t.Priority)
		if t.DueDate != nil {
			fmt.Fprintf(&sb, ", due: %s", t.DueDate.Format("2006-01-02"))
		}
		sb.WriteString(")\n")
		n++
	}
	if n == 0 {
		return "", nil
	}
	return "## Open Tasks\n" + strings.TrimRight(sb.String(), "\n"), nil
}

func instructions() string {
	return `## Instructions
Respond in a helpful, structured way. When suggesting tasks, include estimated effort and list them as:

SUGGESTIONS:
1. Title - Description (priority: high) (effort: 3 hours)
2. Title - Description (priority: medium) (effort: 1 hour)

Priority is one of low, medium, high, critical.`
}
