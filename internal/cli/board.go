package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/imkarma/taskplan/internal/store"
	"github.com/spf13/cobra"
)

// ANSI color codes.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorWhite   = "\033[37m"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show tasks as status columns",
	RunE:  runBoard,
}

type boardColumn struct {
	status store.TaskStatus
	label  string
	color  string
}

var boardColumns = []boardColumn{
	{store.StatusPending, "PENDING", colorWhite},
	{store.StatusInProgress, "IN PROGRESS", colorBlue},
	{store.StatusBlocked, "BLOCKED", colorRed},
	{store.StatusCompleted, "COMPLETED", colorGreen},
	{store.StatusFailed, "FAILED", colorMagenta},
}

func runBoard(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.svc.ListTasks(context.Background(), store.Filter{})
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Printf("%sBoard is empty.%s Create a task: %staskplan task create \"title\"%s\n",
			colorDim, colorReset, colorCyan, colorReset)
		return nil
	}

	columns := map[store.TaskStatus][]store.Task{}
	for _, t := range tasks {
		columns[t.Status] = append(columns[t.Status], t)
	}

	colWidth := 26
	headerLine := ""
	sepLine := ""
	for _, c := range boardColumns {
		count := len(columns[c.status])
		header := fmt.Sprintf(" %s%s%s (%d)", c.color+colorBold, c.label, colorReset, count)
		// Pad by visible length; ANSI codes add bytes.
		visibleLen := len(fmt.Sprintf(" %s (%d)", c.label, count))
		headerLine += header + strings.Repeat(" ", max(colWidth-visibleLen, 0))
		sepLine += strings.Repeat("─", colWidth)
	}
	fmt.Println(headerLine)
	fmt.Println(colorDim + sepLine + colorReset)

	maxRows := 0
	for _, c := range boardColumns {
		maxRows = max(maxRows, len(columns[c.status]))
	}

	for i := 0; i < maxRows; i++ {
		line := ""
		for _, c := range boardColumns {
			col := columns[c.status]
			if i >= len(col) {
				line += strings.Repeat(" ", colWidth)
				continue
			}
			t := col[i]
			titleStr := truncate(t.Title, colWidth-4)
			card := fmt.Sprintf(" %s●%s %s", priorityColor(t.Priority), colorReset, titleStr)
			visibleLen := len([]rune(fmt.Sprintf(" ● %s", titleStr)))
			line += card + strings.Repeat(" ", max(colWidth-visibleLen, 0))
		}
		fmt.Println(line)
	}
	fmt.Println()

	failed := columns[store.StatusFailed]
	if len(failed) > 0 {
		fmt.Printf("%s%s✗  Failed tasks%s\n", colorBold, colorRed, colorReset)
		for _, t := range failed {
			reason := ""
			if t.ErrorMessage != nil {
				reason = ": " + *t.ErrorMessage
			}
			fmt.Printf("  %s%s%s %s%s\n", colorYellow, t.ID, colorReset, t.Title, reason)
		}
		fmt.Println()
	}

	completed := len(columns[store.StatusCompleted])
	fmt.Printf("%s%d tasks%s", colorBold, len(tasks), colorReset)
	if completed > 0 {
		fmt.Printf("  %s✓ %d completed%s", colorGreen, completed, colorReset)
	}
	if n := len(columns[store.StatusInProgress]); n > 0 {
		fmt.Printf("  %s● %d in progress%s", colorBlue, n, colorReset)
	}
	if n := len(columns[store.StatusBlocked]); n > 0 {
		fmt.Printf("  %s⚠ %d blocked%s", colorRed, n, colorReset)
	}
	fmt.Println()

	return nil
}

func priorityColor(p store.TaskPriority) string {
	switch p {
	case store.PriorityCritical:
		return colorRed + colorBold
	case store.PriorityHigh:
		return colorRed
	case store.PriorityMedium:
		return colorYellow
	default:
		return colorDim
	}
}

func statusColor(s store.TaskStatus) string {
	for _, c := range boardColumns {
		if c.status == s {
			return c.color
		}
	}
	return colorWhite
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
