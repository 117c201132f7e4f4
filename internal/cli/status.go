package cli

import (
	"context"
	"fmt"

	"github.com/imkarma/taskplan/internal/report"
	"github.com/imkarma/taskplan/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Quick status overview",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	tasks, err := a.svc.ListTasks(ctx, store.Filter{})
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Printf("No tasks. Run: %staskplan task create \"title\"%s\n", colorCyan, colorReset)
		return nil
	}

	sum := report.Summarize(tasks)
	fmt.Printf("%sTasks: %d total%s\n", colorBold, sum.Total, colorReset)
	for _, st := range store.Statuses {
		fmt.Printf("  %-14s %s%d%s\n", string(st)+":", statusColor(st), sum.Counts[st], colorReset)
	}

	plans, err := a.svc.ListPlans(ctx)
	if err != nil {
		return err
	}
	if len(plans) > 0 {
		fmt.Printf("\n%sPlans: %d%s\n", colorBold, len(plans), colorReset)
	}

	var failed []store.Task
	for _, t := range tasks {
		if t.Status == store.StatusFailed {
			failed = append(failed, t)
		}
	}
	if len(failed) > 0 {
		fmt.Printf("\n%s⚠  Failures:%s\n", colorRed+colorBold, colorReset)
		for _, t := range failed {
			msg := t.Title
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			fmt.Printf("  %s%s%s: %s\n", colorYellow, t.ID, colorReset, msg)
		}
	}

	return nil
}
