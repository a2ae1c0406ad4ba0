package scheduler

import (
	"context"
	"testing"
	"time"

	domain "counsel/internal/domain/task"
	infratask "counsel/internal/infra/task"
)

func seedFinished(t *testing.T, store *infratask.MemoryStore, id string) {
	t.Helper()
	ctx := context.Background()
	if err := store.Create(ctx, &domain.Task{ID: id, OwnerID: "o", Goal: "g", Status: domain.StatusPending, MaxIterations: 2}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetStatus(ctx, id, domain.StatusRunning); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}
	if err := store.SetStatus(ctx, id, domain.StatusCompleted, domain.WithResult("done")); err != nil {
		t.Fatalf("SetStatus completed: %v", err)
	}
}

func TestScheduler_Disabled(t *testing.T) {
	sched := New(Config{Enabled: false}, nil, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sched.JobCount() != 0 {
		t.Fatalf("expected no jobs, got %d", sched.JobCount())
	}
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	sched := New(Config{Enabled: true, Schedule: "not a cron", MaxAge: time.Hour}, infratask.NewMemoryStore(), nil)
	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected invalid cron expression error")
	}
}

func TestScheduler_RegistersRetentionAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sched := New(Config{Enabled: true, Schedule: "0 3 * * *", MaxAge: time.Hour}, infratask.NewMemoryStore(), nil)
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sched.JobCount() != 1 {
		t.Fatalf("expected 1 job, got %d", sched.JobCount())
	}
	cancel()
	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
	sched.Stop()
}

func TestScheduler_RunRetentionDeletesOldFinishedTasks(t *testing.T) {
	store := infratask.NewMemoryStore()
	seedFinished(t, store, "old")

	sched := New(Config{Enabled: true, Schedule: "@daily", MaxAge: time.Hour}, store, nil)
	sched.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	deleted, err := sched.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("RunRetention: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}
	if _, err := store.Get(context.Background(), "old"); err == nil {
		t.Fatal("expected task to be gone")
	}

	sched.now = time.Now
	seedFinished(t, store, "fresh")
	deleted, err = sched.RunRetention(context.Background())
	if err != nil || deleted != 0 {
		t.Fatalf("fresh task must survive: deleted=%d err=%v", deleted, err)
	}
}
