package task

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "counsel/internal/domain/task"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var taskColumnNames = []string{
	"task_id", "owner_id", "tenant_id", "goal", "plan", "estimated_steps", "context",
	"status", "iterations", "max_iterations", "result", "error", "pending_input", "rating",
	"created_at", "started_at", "updated_at", "completed_at",
}

const lockTaskQuery = `SELECT (.+) FROM agent_tasks WHERE task_id = \$1 FOR UPDATE`

var progressColumnNames = []string{"iteration", "tool_name", "args_fingerprint", "outcome_summary", "is_error", "recorded_at"}

func expectSnapshot(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
}

func newMockStore(t *testing.T, now time.Time) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostgresStore(mock)
	require.NoError(t, err)
	store.now = func() time.Time { return now }
	return store, mock
}

func taskRows(tasks ...*domain.Task) *pgxmock.Rows {
	rows := pgxmock.NewRows(taskColumnNames)
	for _, t := range tasks {
		plan := []byte(`[]`)
		if len(t.Plan) > 0 {
			plan = []byte(`["` + t.Plan[0] + `"]`)
		}
		rows.AddRow(
			t.ID, t.OwnerID, t.TenantID, t.Goal, plan, t.EstimatedSteps, []byte(nil),
			string(t.Status), t.Iterations, t.MaxIterations, t.Result, t.Error, []byte(nil), t.Rating,
			t.CreatedAt, t.StartedAt, t.UpdatedAt, t.CompletedAt,
		)
	}
	return rows
}

func TestNewPostgresStoreRequiresPool(t *testing.T) {
	_, err := NewPostgresStore(nil)
	require.Error(t, err)
}

func TestPostgresEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, time.Now())
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agent_tasks").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_agent_tasks_owner_created").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_agent_tasks_status").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agent_task_progress").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateInsertsRow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, now)

	tk := &domain.Task{
		ID:             "task-1",
		OwnerID:        "owner-1",
		TenantID:       "tenant-1",
		Goal:           "Create a matter and log 2 hours against it",
		Plan:           []string{"find/create matter", "log time"},
		EstimatedSteps: 2,
		MaxIterations:  4,
	}
	mock.ExpectExec("INSERT INTO agent_tasks").WithArgs(
		"task-1", "owner-1", "tenant-1", tk.Goal, []byte(`["find/create matter","log time"]`), 2, []byte(nil),
		"pending", 0, 4, now, now,
	).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), tk))
	require.Equal(t, domain.StatusPending, tk.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetLoadsProgress(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, now)
	started := now.Add(-time.Minute)
	stored := &domain.Task{
		ID: "task-1", OwnerID: "owner-1", Goal: "goal", Plan: []string{"step"},
		Status: domain.StatusRunning, Iterations: 1, MaxIterations: 2,
		CreatedAt: started, StartedAt: &started, UpdatedAt: now,
	}

	expectSnapshot(mock)
	mock.ExpectQuery(`SELECT (.+) FROM agent_tasks WHERE task_id = \$1`).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectQuery(`SELECT iteration, tool_name`).WithArgs("task-1").WillReturnRows(
		pgxmock.NewRows(progressColumnNames).AddRow(1, "find_matter", "abc123", `{"matters":[]}`, false, now),
	)
	mock.ExpectCommit()

	got, err := store.Get(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, []string{"step"}, got.Plan)
	require.Equal(t, domain.StatusRunning, got.Status)
	require.Len(t, got.Progress, 1)
	require.Equal(t, "find_matter", got.Progress[0].ToolName)
	require.Equal(t, got.Iterations, len(got.Progress))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissingTask(t *testing.T) {
	store, mock := newMockStore(t, time.Now())
	expectSnapshot(mock)
	mock.ExpectQuery(`SELECT (.+) FROM agent_tasks WHERE task_id = \$1`).WithArgs("missing").WillReturnRows(pgxmock.NewRows(taskColumnNames))
	mock.ExpectRollback()

	_, err := store.Get(context.Background(), "missing")
	require.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendProgressIsTransactional(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, now)
	stored := &domain.Task{ID: "task-1", OwnerID: "owner-1", Status: domain.StatusRunning, Iterations: 2, MaxIterations: 4, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(lockTaskQuery).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectExec("INSERT INTO agent_task_progress").
		WithArgs("task-1", 3, "log_time", "fp", "logged", false, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE agent_tasks SET iterations").
		WithArgs("task-1", 3, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.AppendProgress(context.Background(), "task-1", domain.ProgressEntry{
		Iteration: 3, ToolName: "log_time", ArgsFingerprint: "fp", OutcomeSummary: "logged",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendProgressRejectsOutOfOrder(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t, now)
	stored := &domain.Task{ID: "task-1", Status: domain.StatusRunning, Iterations: 2, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(lockTaskQuery).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectRollback()

	err := store.AppendProgress(context.Background(), "task-1", domain.ProgressEntry{Iteration: 5, ToolName: "log_time"})
	require.ErrorIs(t, err, domain.ErrOutOfOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetStatusCompletes(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, now)
	started := now.Add(-time.Minute)
	stored := &domain.Task{ID: "task-1", Status: domain.StatusRunning, CreatedAt: started, StartedAt: &started, UpdatedAt: started}

	mock.ExpectBegin()
	mock.ExpectQuery(lockTaskQuery).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectExec("UPDATE agent_tasks").
		WithArgs("task-1", "completed", "Matter created and 2h logged", "", []byte(nil), &started, &now, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.SetStatus(context.Background(), "task-1", domain.StatusCompleted, domain.WithResult("Matter created and 2h logged"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetStatusIgnoresTerminalTask(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t, now)
	stored := &domain.Task{ID: "task-1", Status: domain.StatusStuck, CreatedAt: now, UpdatedAt: now, CompletedAt: &now}

	mock.ExpectBegin()
	mock.ExpectQuery(lockTaskQuery).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectCommit()

	require.NoError(t, store.SetStatus(context.Background(), "task-1", domain.StatusCompleted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetRatingRequiresTerminal(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t, now)
	stored := &domain.Task{ID: "task-1", Status: domain.StatusRunning, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(lockTaskQuery).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectRollback()

	err := store.SetRating(context.Background(), "task-1", 5)
	require.ErrorIs(t, err, domain.ErrTaskNotTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetRatingOnCompletedTask(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t, now)
	stored := &domain.Task{ID: "task-1", Status: domain.StatusCompleted, CreatedAt: now, UpdatedAt: now, CompletedAt: &now}

	mock.ExpectBegin()
	mock.ExpectQuery(lockTaskQuery).WithArgs("task-1").WillReturnRows(taskRows(stored))
	mock.ExpectExec("UPDATE agent_tasks SET rating").WithArgs("task-1", 5, now).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetRating(context.Background(), "task-1", 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListForOwner(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t, now)
	newer := &domain.Task{ID: "task-2", OwnerID: "owner-1", Status: domain.StatusRunning, CreatedAt: now, UpdatedAt: now}
	older := &domain.Task{ID: "task-1", OwnerID: "owner-1", Status: domain.StatusCompleted, CreatedAt: now.Add(-time.Hour), UpdatedAt: now, CompletedAt: &now}

	mock.ExpectQuery(`SELECT (.+) FROM agent_tasks\s+WHERE owner_id = \$1 ORDER BY created_at DESC`).
		WithArgs("owner-1", 10).
		WillReturnRows(taskRows(newer, older))

	tasks, err := store.ListForOwner(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "task-2", tasks[0].ID)
	require.Nil(t, tasks[0].Progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

const activeTaskQuery = `SELECT (.+) FROM agent_tasks\s+WHERE owner_id = \$1 AND tenant_id = \$2 AND status = \$3`

func TestPostgresActiveForOwnerNone(t *testing.T) {
	store, mock := newMockStore(t, time.Now())
	expectSnapshot(mock)
	mock.ExpectQuery(activeTaskQuery).
		WithArgs("owner-1", "tenant-1", "running").
		WillReturnRows(pgxmock.NewRows(taskColumnNames))
	mock.ExpectRollback()

	_, err := store.ActiveForOwner(context.Background(), "owner-1", "tenant-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresActiveForOwnerReadsOneSnapshot(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, now)
	started := now.Add(-2 * time.Minute)
	stored := &domain.Task{
		ID: "task-2", OwnerID: "owner-1", TenantID: "tenant-1", Goal: "goal", Plan: []string{"step"},
		Status: domain.StatusRunning, Iterations: 2, MaxIterations: 4,
		CreatedAt: started, StartedAt: &started, UpdatedAt: now,
	}

	expectSnapshot(mock)
	mock.ExpectQuery(activeTaskQuery).WithArgs("owner-1", "tenant-1", "running").WillReturnRows(taskRows(stored))
	mock.ExpectQuery(`SELECT iteration, tool_name`).WithArgs("task-2").WillReturnRows(
		pgxmock.NewRows(progressColumnNames).
			AddRow(1, "find_matter", "abc123", `{"matters":[]}`, false, now.Add(-time.Minute)).
			AddRow(2, "log_time", "def456", `{"hours":2}`, false, now),
	)
	mock.ExpectCommit()

	got, err := store.ActiveForOwner(context.Background(), "owner-1", "tenant-1")
	require.NoError(t, err)
	require.Equal(t, "task-2", got.ID)
	require.Len(t, got.Progress, got.Iterations)
	require.Equal(t, "log_time", got.Progress[1].ToolName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetFailsWhenSnapshotCannotStart(t *testing.T) {
	store, mock := newMockStore(t, time.Now())
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}).WillReturnError(errors.New("too many connections"))

	_, err := store.Get(context.Background(), "task-1")
	require.ErrorContains(t, err, "begin read tx")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkStaleRunning(t *testing.T) {
	now := time.Now()
	store, mock := newMockStore(t, now)
	mock.ExpectExec("UPDATE agent_tasks").
		WithArgs("error", "interrupted by service restart", now, "pending", "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.MarkStaleRunning(context.Background(), "interrupted by service restart")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteExpired(t *testing.T) {
	cutoff := time.Now().Add(-24 * time.Hour)
	store, mock := newMockStore(t, time.Now())
	mock.ExpectExec("DELETE FROM agent_tasks").
		WithArgs(cutoff, []string{"completed", "error", "timeout", "max_iterations", "stuck"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := store.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
