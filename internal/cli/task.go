package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/store"
	"github.com/spf13/cobra"
)

var (
	taskPriority    string
	taskDescription string
	taskDue         string
	taskTags        []string
	taskEstimate    float64
	taskHours       float64

	listStatus   string
	listPriority string
	listPattern  string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create or manage tasks",
	Long:  "Create new tasks and move existing ones through their lifecycle.",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, highest priority first",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [id] [status]",
	Short: "Set a task's status (pending, in_progress, completed, failed, blocked)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete [id]",
	Short: "Mark a task as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskComplete,
}

var taskFailCmd = &cobra.Command{
	Use:   "fail [id] [message]",
	Short: "Mark a task as failed with an error message",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTaskFail,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

func init() {
	taskCreateCmd.Flags().StringVarP(&taskPriority, "priority", "p", "medium", "Priority: critical, high, medium, low")
	taskCreateCmd.Flags().StringVarP(&taskDescription, "desc", "d", "", "Task description")
	taskCreateCmd.Flags().StringVar(&taskDue, "due", "", "Due date (YYYY-MM-DD or RFC 3339)")
	taskCreateCmd.Flags().StringSliceVarP(&taskTags, "tag", "t", nil, "Tag (repeatable)")
	taskCreateCmd.Flags().Float64Var(&taskEstimate, "estimate", 0, "Estimated hours")

	taskListCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Only tasks with this status")
	taskListCmd.Flags().StringVarP(&listPriority, "priority", "p", "", "Only tasks with this priority")
	taskListCmd.Flags().StringVar(&listPattern, "match", "", "Glob over title and description, e.g. '*login*'")

	taskCompleteCmd.Flags().Float64Var(&taskHours, "hours", 0, "Actual hours spent")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskFailCmd)
	taskCmd.AddCommand(taskDeleteCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	in := planner.NewTask{
		Title:       strings.Join(args, " "),
		Description: taskDescription,
		Priority:    store.TaskPriority(taskPriority),
		Tags:        taskTags,
	}
	if taskDue != "" {
		due, err := store.ParseTime(taskDue)
		if err != nil {
			return err
		}
		in.DueDate = &due
	}
	if cmd.Flags().Changed("estimate") {
		in.EstimatedHours = &taskEstimate
	}

	task, err := a.svc.CreateTask(context.Background(), in)
	if err != nil {
		return err
	}

	fmt.Printf("Created task %s: %s [%s]\n", task.ID, task.Title, task.Priority)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.svc.ListTasksByPattern(context.Background(), listPattern, listStatus)
	if err != nil {
		return err
	}
	if listPriority != "" {
		p, err := store.ParsePriority(listPriority)
		if err != nil {
			return err
		}
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Priority == p {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	for _, t := range tasks {
		fmt.Printf("%-42s %s%-12s%s %s%-8s%s %s\n",
			t.ID,
			statusColor(t.Status), t.Status, colorReset,
			priorityColor(t.Priority), t.Priority, colorReset,
			t.Title)
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.svc.GetTask(context.Background(), args[0])
	if err != nil {
		return notFound(err, args[0])
	}

	printTask(task)
	return nil
}

func printTask(task *store.Task) {
	const layout = "2006-01-02 15:04"

	fmt.Printf("Task %s\n", task.ID)
	fmt.Printf("  Title:     %s\n", task.Title)
	fmt.Printf("  Status:    %s%s%s\n", statusColor(task.Status), task.Status.Label(), colorReset)
	fmt.Printf("  Priority:  %s\n", task.Priority)
	if task.Description != "" {
		fmt.Printf("  Desc:      %s\n", task.Description)
	}
	if len(task.Tags) > 0 {
		fmt.Printf("  Tags:      %s\n", strings.Join(task.Tags, ", "))
	}
	if task.DueDate != nil {
		fmt.Printf("  Due:       %s\n", task.DueDate.Format("2006-01-02"))
	}
	if task.EstimatedHours != nil {
		fmt.Printf("  Estimated: %gh\n", *task.EstimatedHours)
	}
	if task.ActualHours != nil {
		fmt.Printf("  Actual:    %gh\n", *task.ActualHours)
	}
	if task.ErrorMessage != nil {
		fmt.Printf("  %sError:     %s%s\n", colorRed, *task.ErrorMessage, colorReset)
	}
	if len(task.Dependencies) > 0 {
		fmt.Printf("  Depends:   %s\n", strings.Join(task.Dependencies, ", "))
	}
	fmt.Printf("  Created:   %s\n", task.CreatedAt.Format(layout))
	fmt.Printf("  Updated:   %s\n", task.UpdatedAt.Format(layout))
	if task.CompletionTime != nil {
		fmt.Printf("  Completed: %s\n", task.CompletionTime.Format(layout))
	}

	if len(task.Subtasks) > 0 {
		fmt.Printf("\n  Subtasks (%d total, %d levels):\n", store.CountTasks(task)-1, store.Depth(task))
		for _, st := range task.Subtasks {
			fmt.Printf("    %s%-10s%s %s\n", statusColor(st.Status), st.Status, colorReset, st.Title)
		}
	}
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.svc.UpdateTaskStatus(context.Background(), args[0], args[1])
	if err != nil {
		return notFound(err, args[0])
	}

	fmt.Printf("Task %s is now %s%s%s\n", task.ID, statusColor(task.Status), task.Status.Label(), colorReset)
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var hours *float64
	if cmd.Flags().Changed("hours") {
		hours = &taskHours
	}

	task, err := a.svc.CompleteTask(context.Background(), args[0], hours)
	if err != nil {
		return notFound(err, args[0])
	}

	fmt.Printf("%s✓%s Task %s completed at %s\n", colorGreen, colorReset, task.ID,
		task.CompletionTime.Format(time.RFC3339))
	return nil
}

func runTaskFail(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	msg := strings.Join(args[1:], " ")
	task, err := a.svc.MarkTaskError(context.Background(), args[0], msg)
	if err != nil {
		return notFound(err, args[0])
	}

	fmt.Printf("%s✗%s Task %s failed: %s\n", colorRed, colorReset, task.ID, msg)
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.svc.DeleteTask(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %s not found", args[0])
	}

	fmt.Printf("Deleted task %s\n", args[0])
	return nil
}

// notFound rewrites a store.ErrNotFound into a short message for the user.
func notFound(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %s not found", id)
	}
	return err
}
