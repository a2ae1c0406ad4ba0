// Package task provides adapters for the agent task store port.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "counsel/internal/domain/task"
)

// MemoryStore keeps tasks in process memory. It is the development and test
// adapter; every read returns a deep copy.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	now   func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the clock used for timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tasks: make(map[string]*domain.Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureSchema is a no-op for the in-memory store.
func (s *MemoryStore) EnsureSchema(context.Context) error { return nil }

// Create persists a new task.
func (s *MemoryStore) Create(_ context.Context, t *domain.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	stored := t.Clone()
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	if stored.Status == "" {
		stored.Status = domain.StatusPending
	}
	s.tasks[t.ID] = stored
	return nil
}

// Get retrieves a task by ID.
func (s *MemoryStore) Get(_ context.Context, taskID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, taskID)
	}
	return t.Clone(), nil
}

// UpdatePlan replaces the plan of a pending task.
func (s *MemoryStore) UpdatePlan(_ context.Context, taskID string, plan []string) error {
	return s.mutate(taskID, func(t *domain.Task) error {
		if err := domain.ValidatePlanChange(t); err != nil {
			return err
		}
		t.Plan = append([]string(nil), plan...)
		t.UpdatedAt = s.now()
		return nil
	})
}

// AppendProgress appends an entry and advances iterations under one lock.
func (s *MemoryStore) AppendProgress(_ context.Context, taskID string, entry domain.ProgressEntry) error {
	return s.mutate(taskID, func(t *domain.Task) error {
		_, err := domain.ApplyProgress(t, entry, s.now())
		return err
	})
}

// SetStatus moves a task through its lifecycle.
func (s *MemoryStore) SetStatus(_ context.Context, taskID string, status domain.Status, opts ...domain.TransitionOption) error {
	params := domain.ApplyTransitionOptions(opts)
	return s.mutate(taskID, func(t *domain.Task) error {
		_, err := domain.ApplyTransition(t, status, params, s.now())
		return err
	})
}

// SetRating stores feedback for a finished task.
func (s *MemoryStore) SetRating(_ context.Context, taskID string, rating int) error {
	return s.mutate(taskID, func(t *domain.Task) error {
		if err := domain.ValidateRating(t, rating); err != nil {
			return err
		}
		r := rating
		t.Rating = &r
		t.UpdatedAt = s.now()
		return nil
	})
}

// ListForOwner returns the owner's tasks newest first, without progress.
func (s *MemoryStore) ListForOwner(_ context.Context, ownerID string, limit int) ([]*domain.Task, error) {
	limit = domain.NormalizeLimit(limit)
	s.mu.RLock()
	matches := make([]*domain.Task, 0)
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			matches = append(matches, t)
		}
	}
	sortNewestFirst(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]*domain.Task, 0, len(matches))
	for _, t := range matches {
		cp := t.Clone()
		cp.Progress = nil
		out = append(out, cp)
	}
	s.mu.RUnlock()
	return out, nil
}

// ActiveForOwner returns the owner's most recent running task in the tenant.
func (s *MemoryStore) ActiveForOwner(_ context.Context, ownerID, tenantID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var running []*domain.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && t.TenantID == tenantID && t.Status == domain.StatusRunning {
			running = append(running, t)
		}
	}
	if len(running) == 0 {
		return nil, fmt.Errorf("%w: no running task for owner %s", domain.ErrNotFound, ownerID)
	}
	sortNewestFirst(running)
	return running[0].Clone(), nil
}

// MarkStaleRunning fails pending and running tasks left by a previous process.
func (s *MemoryStore) MarkStaleRunning(_ context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	params := domain.ApplyTransitionOptions([]domain.TransitionOption{domain.WithError(reason)})
	now := s.now()
	count := 0
	for _, t := range s.tasks {
		if t.Status != domain.StatusPending && t.Status != domain.StatusRunning {
			continue
		}
		if changed, err := domain.ApplyTransition(t, domain.StatusError, params, now); err == nil && changed {
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes terminal tasks completed before the cutoff.
func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, t := range s.tasks {
		if t.Status.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(before) {
			delete(s.tasks, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) mutate(taskID string, fn func(t *domain.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, taskID)
	}
	// Work on a copy so a rejected change leaves the stored task untouched.
	working := t.Clone()
	if err := fn(working); err != nil {
		return err
	}
	s.tasks[taskID] = working
	return nil
}

func sortNewestFirst(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

var _ domain.Store = (*MemoryStore)(nil)
