// Package ingest turns analysis files on disk into plans.
//
// An analysis file is JSON of the form {"source": "...", "analysis": {...}}
// where analysis has the shape accepted by planner.DecodeAnalysis. A file
// without a source uses its own absolute path instead.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/store"
	"github.com/imkarma/taskplan/internal/worker"
)

// DefaultPattern matches analysis files anywhere under the ingest directory.
const DefaultPattern = "**/*.json"

// Document is the on-disk shape of an analysis file.
type Document struct {
	Source   string           `json:"source"`
	Analysis planner.Analysis `json:"analysis"`
}

// FileResult is the outcome of importing one file.
type FileResult struct {
	Path   string
	PlanID string
	Tasks  int
	Err    error
}

// Importer imports analysis files through a planner Service.
type Importer struct {
	svc     *planner.Service
	pool    *worker.Pool
	pattern string
	logger  *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds how many files ImportAll processes at once.
func WithWorkers(n int) Option {
	return func(im *Importer) { im.pool = worker.NewPool(n) }
}

// WithPattern sets the doublestar pattern files must match, relative to
// the directory being imported.
func WithPattern(pattern string) Option {
	return func(im *Importer) { im.pattern = pattern }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// New creates an Importer.
func New(svc *planner.Service, opts ...Option) *Importer {
	im := &Importer{
		svc:     svc,
		pool:    worker.NewPool(4),
		pattern: DefaultPattern,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Pattern returns the file pattern in use.
func (im *Importer) Pattern() string { return im.pattern }

// ReadDocument reads and decodes an analysis file.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse analysis %s: %w", path, err)
	}
	if doc.Source == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve path: %w", err)
		}
		doc.Source = abs
	}
	return &doc, nil
}

// ImportFile imports a single analysis file.
func (im *Importer) ImportFile(ctx context.Context, path string) (*store.TaskPlan, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	plan, err := im.svc.PlanFromAnalysis(ctx, doc.Analysis, doc.Source)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	im.logger.Info("Imported analysis", "path", path, "plan_id", plan.ID, "tasks", len(plan.Tasks))
	return plan, nil
}

// Match reports whether rel (a slash-separated path relative to the
// import directory) matches the importer's pattern.
func (im *Importer) Match(rel string) bool {
	ok, err := doublestar.Match(im.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// ImportAll imports every matching file under dir. Files are processed in
// parallel, bounded by the worker count; results are in lexical path order.
// A failing file does not stop the others.
func (im *Importer) ImportAll(ctx context.Context, dir string) ([]FileResult, error) {
	if !doublestar.ValidatePattern(im.pattern) {
		return nil, fmt.Errorf("invalid ingest pattern %q", im.pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(dir), im.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(matches)

	jobs := make([]worker.Job[*store.TaskPlan], len(matches))
	for i, rel := range matches {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		jobs[i] = worker.Job[*store.TaskPlan]{
			Name: path,
			Fn: func(ctx context.Context) (*store.TaskPlan, error) {
				return im.ImportFile(ctx, path)
			},
		}
	}

	results := worker.Run(ctx, im.pool, jobs)

	out := make([]FileResult, len(results))
	for i, r := range results {
		out[i] = FileResult{Path: r.Name, Err: r.Err}
		if r.Value != nil {
			out[i].PlanID = r.Value.ID
			out[i].Tasks = len(r.Value.Tasks)
		}
		if r.Err != nil {
			im.logger.Warn("Analysis import failed", "path", r.Name, "error", r.Err)
		}
	}
	return out, nil
}
