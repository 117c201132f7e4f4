package cli

import (
	"fmt"
	"os"

	"github.com/imkarma/taskplan/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize taskplan in the current directory",
	Long:  "Creates a .taskplan/ directory with default config and database.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check if already initialized.
	if _, err := os.Stat(dataDirName); err == nil {
		return fmt.Errorf("taskplan already initialized in this directory (%s/ exists)", dataDirName)
	}

	if err := os.MkdirAll(dataPath("inbox"), 0755); err != nil {
		return fmt.Errorf("create %s: %w", dataPath("inbox"), err)
	}

	cfg := config.DefaultConfig()
	cfg.Store.Path = dataPath("tasks.db")
	cfg.Ingest.Dir = dataPath("inbox")
	if err := config.Save(dataPath(configFileName), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Create database by opening store (migration runs automatically).
	repo, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	repo.Close()

	fmt.Printf("Initialized taskplan in %s/\n", dataDirName)
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  1. Run: taskplan task create \"your task\"")
	fmt.Println("  2. Drop analysis files into .taskplan/inbox/ or run: taskplan plan import <file>")
	fmt.Println("  3. Run: taskplan serve")

	return nil
}
