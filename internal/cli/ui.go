package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/tui"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive task board",
	Long:  "Opens a full-screen board with a column per status, a detail panel, and the markdown report.",
	RunE:  runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Log lines would corrupt the alt screen.
	svc := planner.New(a.repo, planner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	model := tui.New(context.Background(), svc)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
