package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists tasks and plans in a SQLite database. Each row keeps
// the full Record as JSON next to the columns used for filtering and order.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // Serializes read-modify-write on updated_at.
	now func() time.Time
}

// NewSQLite opens (or creates) the SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SetClock overrides the time source used to stamp UpdatedAt.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'pending',
		priority    TEXT NOT NULL DEFAULT 'medium',
		sort_key    TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		record      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS plans (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'pending',
		owner       TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		record      TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveTask upserts the task row and stamps t.UpdatedAt.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTask(ctx, s.db, t)
}

// UpdateTask reads, modifies and writes the task inside one transaction.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, fn func(*Task) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.ID = id
	if err := s.saveTask(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return t, nil
}

// saveTask must be called with s.mu held.
func (s *SQLiteStore) saveTask(ctx context.Context, q querier, t *Task) error {
	prev, err := storedUpdatedAt(ctx, q, "tasks", t.ID)
	if err != nil {
		return err
	}
	t.UpdatedAt = stamp(s.now(), laterOf(t.UpdatedAt, prev))

	data, err := json.Marshal(t.ToRecord())
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO tasks (id, title, status, priority, sort_key, created_at, updated_at, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title, status = excluded.status, priority = excluded.priority,
		   sort_key = excluded.sort_key, created_at = excluded.created_at,
		   updated_at = excluded.updated_at, record = excluded.record`,
		t.ID, t.Title, string(t.Status), string(t.Priority), SortKey(t),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), string(data),
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask returns a single task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns tasks matching f, ordered by sort_key descending.
func (s *SQLiteStore) ListTasks(ctx context.Context, f Filter) ([]Task, error) {
	query := `SELECT record FROM tasks WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	query += ` ORDER BY sort_key DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task row.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SavePlan upserts the plan row and stamps p.UpdatedAt.
func (s *SQLiteStore) SavePlan(ctx context.Context, p *TaskPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := storedUpdatedAt(ctx, s.db, "plans", p.ID)
	if err != nil {
		return err
	}
	p.UpdatedAt = stamp(s.now(), laterOf(p.UpdatedAt, prev))

	data, err := json.Marshal(p.ToRecord())
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	owner := ""
	if p.Owner != nil {
		owner = *p.Owner
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (id, name, status, owner, created_at, updated_at, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, status = excluded.status, owner = excluded.owner,
		   created_at = excluded.created_at, updated_at = excluded.updated_at,
		   record = excluded.record`,
		p.ID, p.Name, string(p.Status), owner,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), string(data),
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// GetPlan returns a plan with its tasks refreshed from the tasks table.
func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*TaskPlan, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM plans WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	p, err := decodePlan(data)
	if err != nil {
		return nil, err
	}
	refreshPlanTasks(p, s.lookup(ctx))
	return p, nil
}

// ListPlans returns every plan, newest first.
func (s *SQLiteStore) ListPlans(ctx context.Context) ([]TaskPlan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM plans ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var plans []TaskPlan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		p, err := decodePlan(data)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	lookup := s.lookup(ctx)
	for i := range plans {
		refreshPlanTasks(&plans[i], lookup)
	}
	return plans, nil
}

func (s *SQLiteStore) lookup(ctx context.Context) func(id string) (*Task, bool) {
	return func(id string) (*Task, bool) {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, false
		}
		return t, true
	}
}

// storedUpdatedAt returns the updated_at of an existing row, or the zero
// time when the row does not exist.
func storedUpdatedAt(ctx context.Context, q querier, table, id string) (time.Time, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT updated_at FROM `+table+` WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read %s updated_at: %w", table, err)
	}
	return ParseTime(raw)
}

func decodePlan(data string) (*TaskPlan, error) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode plan record: %w", err)
	}
	return PlanFromRecord(rec)
}

func decodeTask(data string) (*Task, error) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode task record: %w", err)
	}
	return TaskFromRecord(rec)
}

// scanTask scans a single task from a *sql.Row.
func scanTask(row *sql.Row) (*Task, error) {
	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return decodeTask(data)
}

// scanTaskRows scans a single task from *sql.Rows.
func scanTaskRows(rows *sql.Rows) (*Task, error) {
	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return decodeTask(data)
}
