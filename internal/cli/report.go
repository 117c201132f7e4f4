package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/imkarma/taskplan/internal/report"
	"github.com/spf13/cobra"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report [plan-id]",
	Short: "Generate a markdown task report",
	Long:  "Renders a markdown report for one plan, or for every task when no plan is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to a file instead of stdout")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	planID := ""
	if len(args) > 0 {
		planID = args[0]
	}

	md, err := report.New(a.repo).Generate(context.Background(), planID)
	if err != nil {
		return err
	}

	if reportOut == "" {
		fmt.Print(md)
		return nil
	}
	if err := os.WriteFile(reportOut, []byte(md), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", reportOut)
	return nil
}
