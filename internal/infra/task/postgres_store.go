package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "counsel/internal/domain/task"
	jsonx "counsel/internal/shared/json"
	"counsel/internal/shared/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	tasksTable    = "agent_tasks"
	progressTable = "agent_task_progress"
)

// pool abstracts the subset of pgxpool.Pool used by the store for easier testing.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var snapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// taskColumns is the column order every task SELECT scans.
const taskColumns = `task_id, owner_id, tenant_id, goal, plan, estimated_steps, context,
       status, iterations, max_iterations, result, error, pending_input, rating,
       created_at, started_at, updated_at, completed_at`

// PostgresStore persists tasks and their progress log in Postgres.
type PostgresStore struct {
	pool   pool
	now    func() time.Time
	logger logging.Logger
}

// NewPostgresStore constructs a Postgres-backed task store.
func NewPostgresStore(p pool) (*PostgresStore, error) {
	if p == nil {
		return nil, errors.New("postgres task store requires pool")
	}
	return &PostgresStore{
		pool:   p,
		now:    time.Now,
		logger: logging.NewComponentLogger("TaskPostgresStore"),
	}, nil
}

// EnsureSchema creates the task and progress tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tasksTable + ` (
    task_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL DEFAULT '',
    goal TEXT NOT NULL,
    plan JSONB NOT NULL DEFAULT '[]'::jsonb,
    estimated_steps INTEGER NOT NULL DEFAULT 0,
    context JSONB,
    status TEXT NOT NULL DEFAULT 'pending',
    iterations INTEGER NOT NULL DEFAULT 0,
    max_iterations INTEGER NOT NULL,
    result TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    pending_input JSONB,
    rating SMALLINT CHECK (rating BETWEEN 1 AND 5),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);`,
		`CREATE INDEX IF NOT EXISTS idx_` + tasksTable + `_owner_created ON ` + tasksTable + ` (owner_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_` + tasksTable + `_status ON ` + tasksTable + ` (status);`,
		`CREATE TABLE IF NOT EXISTS ` + progressTable + ` (
    task_id TEXT NOT NULL REFERENCES ` + tasksTable + ` (task_id) ON DELETE CASCADE,
    iteration INTEGER NOT NULL,
    tool_name TEXT NOT NULL,
    args_fingerprint TEXT NOT NULL DEFAULT '',
    outcome_summary TEXT NOT NULL DEFAULT '',
    is_error BOOLEAN NOT NULL DEFAULT false,
    recorded_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (task_id, iteration)
);`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure task schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new task row.
func (s *PostgresStore) Create(ctx context.Context, t *domain.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task id required")
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	planJSON, err := encodeJSON(planOrEmpty(t.Plan))
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	contextJSON, err := encodeNullableJSON(t.Context, len(t.Context) == 0)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO `+tasksTable+` (task_id, owner_id, tenant_id, goal, plan, estimated_steps, context,
                            status, iterations, max_iterations, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, t.ID, t.OwnerID, t.TenantID, t.Goal, planJSON, t.EstimatedSteps, contextJSON,
		string(t.Status), t.Iterations, t.MaxIterations, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Get fetches a task and its ordered progress log from one snapshot.
func (s *PostgresStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	var t *domain.Task
	err := s.readSnapshot(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+` WHERE task_id = $1`, taskID)
		var err error
		if t, err = scanTask(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, taskID)
			}
			return fmt.Errorf("get task: %w", err)
		}
		t.Progress, err = loadProgress(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdatePlan replaces the plan of a pending task.
func (s *PostgresStore) UpdatePlan(ctx context.Context, taskID string, plan []string) error {
	return s.withLockedTask(ctx, taskID, func(tx pgx.Tx, t *domain.Task) error {
		if err := domain.ValidatePlanChange(t); err != nil {
			return err
		}
		planJSON, err := encodeJSON(planOrEmpty(plan))
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE `+tasksTable+` SET plan = $2, updated_at = $3 WHERE task_id = $1`,
			taskID, planJSON, s.now()); err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		return nil
	})
}

// AppendProgress inserts one progress row and advances iterations in the
// same transaction, so readers see both or neither.
func (s *PostgresStore) AppendProgress(ctx context.Context, taskID string, entry domain.ProgressEntry) error {
	return s.withLockedTask(ctx, taskID, func(tx pgx.Tx, t *domain.Task) error {
		now := s.now()
		applied, err := domain.ApplyProgress(t, entry, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO `+progressTable+` (task_id, iteration, tool_name, args_fingerprint, outcome_summary, is_error, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, taskID, applied.Iteration, applied.ToolName, applied.ArgsFingerprint, applied.OutcomeSummary, applied.IsError, applied.Timestamp); err != nil {
			return fmt.Errorf("insert progress: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE `+tasksTable+` SET iterations = $2, updated_at = $3 WHERE task_id = $1`,
			taskID, t.Iterations, now); err != nil {
			return fmt.Errorf("advance iterations: %w", err)
		}
		return nil
	})
}

// SetStatus moves a task through its lifecycle; terminal tasks are left alone.
func (s *PostgresStore) SetStatus(ctx context.Context, taskID string, status domain.Status, opts ...domain.TransitionOption) error {
	params := domain.ApplyTransitionOptions(opts)
	return s.withLockedTask(ctx, taskID, func(tx pgx.Tx, t *domain.Task) error {
		changed, err := domain.ApplyTransition(t, status, params, s.now())
		if err != nil || !changed {
			return err
		}
		pendingJSON, err := encodeNullableJSON(t.PendingInput, t.PendingInput == nil)
		if err != nil {
			return fmt.Errorf("encode pending input: %w", err)
		}
		if _, err := tx.Exec(ctx, `
UPDATE `+tasksTable+`
SET status = $2, result = $3, error = $4, pending_input = $5,
    started_at = $6, completed_at = $7, updated_at = $8
WHERE task_id = $1
`, taskID, string(t.Status), t.Result, t.Error, pendingJSON, t.StartedAt, t.CompletedAt, t.UpdatedAt); err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		return nil
	})
}

// SetRating stores feedback for a finished task.
func (s *PostgresStore) SetRating(ctx context.Context, taskID string, rating int) error {
	return s.withLockedTask(ctx, taskID, func(tx pgx.Tx, t *domain.Task) error {
		if err := domain.ValidateRating(t, rating); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE `+tasksTable+` SET rating = $2, updated_at = $3 WHERE task_id = $1`,
			taskID, rating, s.now()); err != nil {
			return fmt.Errorf("set rating: %w", err)
		}
		return nil
	})
}

// ListForOwner returns the owner's tasks newest first, without progress.
func (s *PostgresStore) ListForOwner(ctx context.Context, ownerID string, limit int) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+`
WHERE owner_id = $1 ORDER BY created_at DESC, task_id DESC LIMIT $2`, ownerID, domain.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ActiveForOwner returns the owner's most recent running task in the tenant,
// with progress read from the same snapshot.
func (s *PostgresStore) ActiveForOwner(ctx context.Context, ownerID, tenantID string) (*domain.Task, error) {
	var t *domain.Task
	err := s.readSnapshot(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+`
WHERE owner_id = $1 AND tenant_id = $2 AND status = $3 ORDER BY created_at DESC, task_id DESC LIMIT 1`,
			ownerID, tenantID, string(domain.StatusRunning))
		var err error
		if t, err = scanTask(row); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: no running task for owner %s", domain.ErrNotFound, ownerID)
			}
			return fmt.Errorf("active task: %w", err)
		}
		t.Progress, err = loadProgress(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MarkStaleRunning fails every pending or running task in one statement.
func (s *PostgresStore) MarkStaleRunning(ctx context.Context, reason string) (int, error) {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
UPDATE `+tasksTable+`
SET status = $1, error = $2, completed_at = $3, updated_at = $3
WHERE status IN ($4, $5)
`, string(domain.StatusError), reason, now, string(domain.StatusPending), string(domain.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("mark stale tasks: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Warn("Marked %d stale tasks as error: %s", n, reason)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes terminal tasks completed before the cutoff. Progress
// rows go with them through the foreign key cascade.
func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	terminal := make([]string, 0, 5)
	for _, status := range domain.AllStatuses {
		if status.IsTerminal() {
			terminal = append(terminal, string(status))
		}
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+tasksTable+` WHERE completed_at < $1 AND status = ANY($2)`, before, terminal)
	if err != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) withLockedTask(ctx context.Context, taskID string, fn func(tx pgx.Tx, t *domain.Task) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+` WHERE task_id = $1 FOR UPDATE`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, taskID)
		}
		return fmt.Errorf("lock task: %w", err)
	}
	if err := fn(tx, t); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// readSnapshot runs fn in a read-only repeatable-read transaction, so a task
// row and its progress log never straddle a concurrent AppendProgress.
func (s *PostgresStore) readSnapshot(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, snapshotTxOptions)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit read tx: %w", err)
	}
	return nil
}

func loadProgress(ctx context.Context, q querier, taskID string) ([]domain.ProgressEntry, error) {
	rows, err := q.Query(ctx, `
SELECT iteration, tool_name, args_fingerprint, outcome_summary, is_error, recorded_at
FROM `+progressTable+` WHERE task_id = $1 ORDER BY iteration ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ProgressEntry, 0)
	for rows.Next() {
		var e domain.ProgressEntry
		if err := rows.Scan(&e.Iteration, &e.ToolName, &e.ArgsFingerprint, &e.OutcomeSummary, &e.IsError, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return entries, nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t            domain.Task
		status       string
		planJSON     []byte
		contextJSON  []byte
		pendingJSON  []byte
		rating       *int
		startedAt    *time.Time
		completedAt  *time.Time
		resultText   string
		errorText    string
		maxIteration int
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.TenantID, &t.Goal, &planJSON, &t.EstimatedSteps, &contextJSON,
		&status, &t.Iterations, &maxIteration, &resultText, &errorText, &pendingJSON, &rating,
		&t.CreatedAt, &startedAt, &t.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Status = domain.Status(strings.TrimSpace(status))
	t.MaxIterations = maxIteration
	t.Result = resultText
	t.Error = errorText
	t.Rating = rating
	t.StartedAt = startedAt
	t.CompletedAt = completedAt

	if len(planJSON) > 0 {
		if err := jsonx.Unmarshal(planJSON, &t.Plan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
	}
	if len(contextJSON) > 0 {
		if err := jsonx.Unmarshal(contextJSON, &t.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	if len(pendingJSON) > 0 {
		var input domain.HumanInputRequest
		if err := jsonx.Unmarshal(pendingJSON, &input); err != nil {
			return nil, fmt.Errorf("decode pending input: %w", err)
		}
		t.PendingInput = &input
	}
	return &t, nil
}

func planOrEmpty(plan []string) []string {
	if plan == nil {
		return []string{}
	}
	return plan
}

func encodeJSON(v any) ([]byte, error) {
	return jsonx.Marshal(v)
}

func encodeNullableJSON(v any, isNull bool) ([]byte, error) {
	if isNull {
		return nil, nil
	}
	return jsonx.Marshal(v)
}

var _ domain.Store = (*PostgresStore)(nil)
