package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"counsel/internal/domain/agent/ports"
	"counsel/internal/domain/agent/react"
	domain "counsel/internal/domain/task"
	infratask "counsel/internal/infra/task"
	"counsel/internal/shared/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, taskID string, opts ...react.RunOption) (*react.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, taskID string, opts ...react.RunOption) (*react.Outcome, error) {
	return f(ctx, taskID, opts...)
}

// completingRunner drives a task straight to completed.
func completingRunner(store domain.Store) runnerFunc {
	return func(ctx context.Context, taskID string, _ ...react.RunOption) (*react.Outcome, error) {
		t, err := store.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if t.Status == domain.StatusPending {
			if err := store.SetStatus(ctx, taskID, domain.StatusRunning); err != nil {
				return nil, err
			}
		}
		if err := store.SetStatus(ctx, taskID, domain.StatusCompleted, domain.WithResult("done")); err != nil {
			return nil, err
		}
		return &react.Outcome{TaskID: taskID, Status: domain.StatusCompleted}, nil
	}
}

type staticCatalog []ports.ToolDefinition

func (c staticCatalog) Definitions() []ports.ToolDefinition { return c }

var owner = ports.Identity{OwnerID: "owner-1", TenantID: "tenant-1"}

func newTestService(t *testing.T, runner Runner) (*Service, *infratask.MemoryStore) {
	t.Helper()
	store := infratask.NewMemoryStore()
	if runner == nil {
		runner = completingRunner(store)
	}
	launcher := NewLauncher(runner, store, 4, logging.Nop())
	svc, err := NewService(store, launcher, staticCatalog{{Name: "log_time"}}, WithLogger(logging.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, store
}

func waitForStatus(t *testing.T, store domain.Store, taskID string, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), taskID)
		return err == nil && got.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func waitForIdle(t *testing.T, launcher *Launcher) {
	t.Helper()
	require.Eventually(t, func() bool { return launcher.Running() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestCreateTaskDerivesBudgetAndRunsInBackground(t *testing.T) {
	svc, store := newTestService(t, nil)

	tests := []struct {
		name      string
		req       CreateTaskRequest
		wantSteps int
		wantMax   int
	}{
		{"plan length", CreateTaskRequest{Goal: "Bill Acme", Plan: []string{"find", "log", "report"}}, 3, 6},
		{"explicit wins", CreateTaskRequest{Goal: "Bill Acme", Plan: []string{"a"}, EstimatedSteps: 4}, 4, 8},
		{"capped", CreateTaskRequest{Goal: "Bill Acme", EstimatedSteps: 40}, 40, 50},
		{"default", CreateTaskRequest{Goal: "Bill Acme"}, 5, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := svc.CreateTask(context.Background(), owner, tt.req)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, created.Status)
			assert.Equal(t, tt.wantSteps, created.EstimatedSteps)
			assert.Equal(t, tt.wantMax, created.MaxIterations)
			waitForStatus(t, store, created.ID, domain.StatusCompleted)
		})
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	tests := []struct {
		name     string
		identity ports.Identity
		req      CreateTaskRequest
	}{
		{"missing owner", ports.Identity{}, CreateTaskRequest{Goal: "x"}},
		{"blank goal", owner, CreateTaskRequest{Goal: "   "}},
		{"negative steps", owner, CreateTaskRequest{Goal: "x", EstimatedSteps: -1}},
		{"empty plan step", owner, CreateTaskRequest{Goal: "x", Plan: []string{"a", " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTask(context.Background(), tt.identity, tt.req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestReadsAreScopedToOwnerAndTenant(t *testing.T) {
	svc, store := newTestService(t, nil)
	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.NoError(t, err)
	waitForStatus(t, store, created.ID, domain.StatusCompleted)

	_, err = svc.GetTask(context.Background(), ports.Identity{OwnerID: "someone-else", TenantID: "tenant-1"}, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetTask(context.Background(), ports.Identity{OwnerID: "owner-1", TenantID: "tenant-2"}, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	detail, err := svc.GetTask(context.Background(), owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, detail.ProgressPercent)
	assert.Equal(t, "done", detail.Result)

	list, err := svc.ListTasks(context.Background(), owner, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = svc.ListTasks(context.Background(), ports.Identity{OwnerID: "owner-1", TenantID: "tenant-2"}, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, svc.RateTask(context.Background(), ports.Identity{OwnerID: "x"}, created.ID, 5), domain.ErrNotFound)
}

func TestActiveTaskReportsCurrentStep(t *testing.T) {
	release := make(chan struct{})
	var svc *Service
	var store *infratask.MemoryStore
	runner := runnerFunc(func(ctx context.Context, taskID string, _ ...react.RunOption) (*react.Outcome, error) {
		require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusRunning))
		require.NoError(t, store.AppendProgress(ctx, taskID, domain.ProgressEntry{ToolName: "log_time", OutcomeSummary: "ok"}))
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &react.Outcome{TaskID: taskID, Status: domain.StatusRunning}, nil
	})
	svc, store = newTestService(t, runner)

	none, err := svc.ActiveTask(context.Background(), owner)
	require.NoError(t, err)
	assert.Nil(t, none)

	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme", Plan: []string{"a", "b"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		active, err := svc.ActiveTask(context.Background(), owner)
		return err == nil && active != nil && active.Iterations == 1
	}, 2*time.Second, 5*time.Millisecond)

	active, err := svc.ActiveTask(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
	assert.Equal(t, "Log time", active.CurrentStep)
	assert.Equal(t, 50, active.ProgressPercent)
	close(release)
}

func TestActiveTaskIgnoresOwnerTasksInOtherTenants(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, tk := range []*domain.Task{
		{ID: "task-home", OwnerID: owner.OwnerID, TenantID: owner.TenantID, Goal: "Bill Acme", MaxIterations: 10},
		{ID: "task-away", OwnerID: owner.OwnerID, TenantID: "tenant-2", Goal: "Bill Globex", MaxIterations: 10},
	} {
		tk.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, tk))
		require.NoError(t, store.SetStatus(ctx, tk.ID, domain.StatusRunning))
	}

	active, err := svc.ActiveTask(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "task-home", active.ID)

	active, err = svc.ActiveTask(ctx, ports.Identity{OwnerID: owner.OwnerID, TenantID: "tenant-3"})
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRateTask(t *testing.T) {
	svc, store := newTestService(t, runnerFunc(func(context.Context, string, ...react.RunOption) (*react.Outcome, error) {
		return &react.Outcome{}, nil
	}))
	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RateTask(context.Background(), owner, created.ID, 4), domain.ErrTaskNotTerminal)

	require.NoError(t, store.SetStatus(context.Background(), created.ID, domain.StatusRunning))
	require.NoError(t, store.SetStatus(context.Background(), created.ID, domain.StatusCompleted))
	assert.ErrorIs(t, svc.RateTask(context.Background(), owner, created.ID, 0), domain.ErrInvalidRating)
	assert.ErrorIs(t, svc.RateTask(context.Background(), owner, created.ID, 6), domain.ErrInvalidRating)
	require.NoError(t, svc.RateTask(context.Background(), owner, created.ID, 5))

	detail, err := svc.GetTask(context.Background(), owner, created.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Rating)
	assert.Equal(t, 5, *detail.Rating)
}

func TestResumeTask(t *testing.T) {
	var runs atomic.Int32
	var resumedWithAnswer atomic.Bool
	var store *infratask.MemoryStore
	runner := runnerFunc(func(ctx context.Context, taskID string, opts ...react.RunOption) (*react.Outcome, error) {
		if runs.Add(1) == 1 {
			require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusRunning))
			require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusAwaitingHumanInput,
				domain.WithPendingInput(domain.HumanInputRequest{Question: "Which client?"})))
			return &react.Outcome{TaskID: taskID, Status: domain.StatusAwaitingHumanInput}, nil
		}
		resumedWithAnswer.Store(len(opts) == 1)
		require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusCompleted))
		return &react.Outcome{TaskID: taskID, Status: domain.StatusCompleted}, nil
	})
	var svc *Service
	svc, store = newTestService(t, runner)

	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.NoError(t, err)
	waitForStatus(t, store, created.ID, domain.StatusAwaitingHumanInput)
	waitForIdle(t, svc.launcher)

	_, err = svc.ResumeTask(context.Background(), owner, created.ID, "  ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.ResumeTask(context.Background(), ports.Identity{OwnerID: "other"}, created.ID, "Acme")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.ResumeTask(context.Background(), owner, created.ID, "Acme")
	require.NoError(t, err)
	waitForStatus(t, store, created.ID, domain.StatusCompleted)
	assert.True(t, resumedWithAnswer.Load())

	got, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PendingInput)

	_, err = svc.ResumeTask(context.Background(), owner, created.ID, "again")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestResumeWhilePreviousLoopIsFinishing(t *testing.T) {
	var runs atomic.Int32
	finish := make(chan struct{})
	var store *infratask.MemoryStore
	runner := runnerFunc(func(ctx context.Context, taskID string, opts ...react.RunOption) (*react.Outcome, error) {
		if runs.Add(1) == 1 {
			require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusRunning))
			require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusAwaitingHumanInput,
				domain.WithPendingInput(domain.HumanInputRequest{Question: "Which client?", Options: []string{"Acme", "Globex"}})))
			<-finish
			return &react.Outcome{TaskID: taskID, Status: domain.StatusAwaitingHumanInput}, nil
		}
		require.NoError(t, store.SetStatus(ctx, taskID, domain.StatusCompleted, domain.WithResult("billed")))
		return &react.Outcome{TaskID: taskID, Status: domain.StatusCompleted}, nil
	})
	var svc *Service
	svc, store = newTestService(t, runner)

	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.NoError(t, err)
	waitForStatus(t, store, created.ID, domain.StatusAwaitingHumanInput)
	require.Equal(t, 1, svc.launcher.Running())

	_, err = svc.ResumeTask(context.Background(), owner, created.ID, "Acme")
	require.ErrorIs(t, err, ErrConflict)

	got, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingHumanInput, got.Status)
	require.NotNil(t, got.PendingInput)
	assert.Equal(t, "Which client?", got.PendingInput.Question)
	assert.Equal(t, []string{"Acme", "Globex"}, got.PendingInput.Options)
	assert.Equal(t, int32(1), runs.Load())

	close(finish)
	waitForIdle(t, svc.launcher)

	detail, err := svc.ResumeTask(context.Background(), owner, created.ID, "Acme")
	require.NoError(t, err)
	assert.NotEqual(t, domain.StatusAwaitingHumanInput, detail.Status)
	waitForStatus(t, store, created.ID, domain.StatusCompleted)
	assert.Equal(t, int32(2), runs.Load())
}

func TestCreateTaskAfterShutdownIsRefused(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.ErrorIs(t, err, ErrShuttingDown)
	assert.Nil(t, created)

	tasks, err := store.ListForOwner(context.Background(), owner.OwnerID, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.StatusError, tasks[0].Status)
	assert.Equal(t, NotStartedReason, tasks[0].Error)
}

func TestLauncherMarksPanickingLoopAsError(t *testing.T) {
	svc, store := newTestService(t, runnerFunc(func(context.Context, string, ...react.RunOption) (*react.Outcome, error) {
		panic("kaboom")
	}))
	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.NoError(t, err)
	waitForStatus(t, store, created.ID, domain.StatusError)

	got, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "kaboom")
}

func TestLauncherMarksStoreFailureAsError(t *testing.T) {
	svc, store := newTestService(t, runnerFunc(func(context.Context, string, ...react.RunOption) (*react.Outcome, error) {
		return nil, errors.New("database unavailable")
	}))
	created, err := svc.CreateTask(context.Background(), owner, CreateTaskRequest{Goal: "Bill Acme"})
	require.NoError(t, err)
	waitForStatus(t, store, created.ID, domain.StatusError)
}

func TestLauncherBoundsConcurrency(t *testing.T) {
	store := infratask.NewMemoryStore()
	release := make(chan struct{})
	var mu sync.Mutex
	var inFlight, peak int
	runner := runnerFunc(func(ctx context.Context, taskID string, _ ...react.RunOption) (*react.Outcome, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return &react.Outcome{TaskID: taskID}, nil
	})
	launcher := NewLauncher(runner, store, 2, logging.Nop())
	for _, taskID := range []string{"a", "b", "c", "d"} {
		require.NoError(t, launcher.Launch(context.Background(), taskID))
	}
	assert.ErrorIs(t, launcher.Launch(context.Background(), "a"), ErrTaskBusy)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inFlight == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, launcher.Running())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, launcher.Shutdown(ctx))
	assert.Equal(t, 2, peak)
	assert.ErrorIs(t, launcher.Launch(context.Background(), "e"), ErrShuttingDown)
}

func TestShutdownCancelsLoops(t *testing.T) {
	store := infratask.NewMemoryStore()
	launcher := NewLauncher(runnerFunc(func(ctx context.Context, taskID string, _ ...react.RunOption) (*react.Outcome, error) {
		<-ctx.Done()
		return &react.Outcome{TaskID: taskID}, nil
	}), store, 1, logging.Nop())
	require.NoError(t, launcher.Launch(context.Background(), "t1"))
	require.Eventually(t, func() bool { return launcher.Running() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, launcher.Shutdown(ctx))
	assert.Equal(t, 0, launcher.Running())
}

func TestRecoverStaleAndTools(t *testing.T) {
	svc, store := newTestService(t, nil)
	require.NoError(t, store.Create(context.Background(), &domain.Task{ID: "left-over", OwnerID: "owner-1", Goal: "g", Status: domain.StatusPending}))
	require.NoError(t, store.SetStatus(context.Background(), "left-over", domain.StatusRunning))

	count, err := svc.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	got, err := store.Get(context.Background(), "left-over")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, StaleTaskReason, got.Error)

	assert.Equal(t, []ports.ToolDefinition{{Name: "log_time"}}, svc.Tools())
}
