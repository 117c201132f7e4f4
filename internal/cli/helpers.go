package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/imkarma/taskplan/internal/config"
	"github.com/imkarma/taskplan/internal/logging"
	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/store"
)

const (
	dataDirName    = ".taskplan"
	configFileName = "config.yaml"
)

// dataPath returns the path to a file inside .taskplan/.
func dataPath(parts ...string) string {
	elems := append([]string{dataDirName}, parts...)
	return filepath.Join(elems...)
}

// app bundles what most commands need.
type app struct {
	cfg    *config.Config
	repo   store.Repository
	svc    *planner.Service
	logger *slog.Logger
}

func (a *app) Close() error {
	return a.repo.Close()
}

// mustApp loads the config and opens the store, returning an error if
// taskplan is not initialized.
func mustApp() (*app, error) {
	cfgPath := dataPath(configFileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("taskplan not initialized. Run: taskplan init")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	repo, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		repo:   repo,
		svc:    planner.New(repo, planner.WithLogger(logger)),
		logger: logger,
	}, nil
}

// openStore opens the configured repository backend.
func openStore(cfg config.Store) (store.Repository, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
