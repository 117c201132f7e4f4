package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/imkarma/taskplan/internal/ingest"
	"github.com/imkarma/taskplan/internal/store"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Import and inspect plans generated from code analyses",
}

var planImportCmd = &cobra.Command{
	Use:   "import [file-or-dir]",
	Short: "Import an analysis file, or every matching file in a directory",
	Long: `Reads analysis JSON of the form {"source": "...", "analysis": {...}}
and turns it into a plan with one task per suggested item.

Given a directory, every file matching the ingest pattern from config
(default **/*.json) is imported in parallel.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanImport,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE:  runPlanList,
}

var planShowCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Show a plan and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

func init() {
	planCmd.AddCommand(planImportCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planShowCmd)
}

func newImporter(a *app) *ingest.Importer {
	return ingest.New(a.svc,
		ingest.WithPattern(a.cfg.Ingest.Pattern),
		ingest.WithWorkers(a.cfg.Ingest.EffectiveWorkers()),
		ingest.WithLogger(a.logger),
	)
}

func runPlanImport(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	im := newImporter(a)
	ctx := context.Background()

	if !info.IsDir() {
		plan, err := im.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported plan %s: %s (%d tasks)\n", plan.ID, plan.Name, len(plan.Tasks))
		return nil
	}

	results, err := im.ImportAll(ctx, args[0])
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No files matching %s in %s\n", im.Pattern(), args[0])
		return nil
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  %s✗%s %s: %v\n", colorRed, colorReset, r.Path, r.Err)
			continue
		}
		fmt.Printf("  %s✓%s %s → %s (%d tasks)\n", colorGreen, colorReset, r.Path, r.PlanID, r.Tasks)
	}
	fmt.Printf("\nImported %d of %d files\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d files failed to import", failed)
	}
	return nil
}

func runPlanList(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	plans, err := a.svc.ListPlans(context.Background())
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("No plans found.")
		return nil
	}

	for _, p := range plans {
		fmt.Printf("%-16s %-10s %3d tasks  %s\n", p.ID, p.Status, len(p.Tasks), p.Name)
	}
	return nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.svc.GetPlan(context.Background(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("plan %s not found", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s%s%s (%s)\n", colorBold, plan.Name, colorReset, plan.ID)
	if plan.Description != "" {
		fmt.Printf("  %s\n", plan.Description)
	}
	fmt.Printf("  Status:  %s\n", plan.Status.Label())
	fmt.Printf("  Created: %s\n\n", plan.CreatedAt.Format("2006-01-02 15:04"))

	for _, t := range plan.Tasks {
		fmt.Printf("  %s%-12s%s %s%-8s%s %s\n",
			statusColor(t.Status), t.Status, colorReset,
			priorityColor(t.Priority), t.Priority, colorReset,
			t.Title)
	}
	return nil
}
