// Package coordinator owns the task-facing operations: creating tasks,
// launching their loops in the background, resuming suspended tasks and
// serving the owner-scoped read model.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"counsel/internal/domain/agent/ports"
	"counsel/internal/domain/agent/react"
	domain "counsel/internal/domain/task"
	"counsel/internal/shared/logging"
	id "counsel/internal/shared/utils/id"
)

const (
	// StaleTaskReason is recorded on tasks a previous process left running.
	StaleTaskReason = "interrupted by service restart"
	// NotStartedReason is recorded on tasks created while the service was
	// shutting down.
	NotStartedReason = "not started: service shutting down"
)

// CreateTaskRequest is the input of CreateTask.
type CreateTaskRequest struct {
	Goal           string
	Plan           []string
	EstimatedSteps int
	Context        map[string]any
}

// ToolCatalog lists the tool schemas offered to the reasoning service.
type ToolCatalog interface {
	Definitions() []ports.ToolDefinition
}

// Service implements the task operations on top of a Store and a Launcher.
type Service struct {
	store    domain.Store
	launcher *Launcher
	catalog  ToolCatalog
	limits   Limits
	now      func() time.Time
	logger   logging.Logger
	observer CreationObserver
}

// NewService wires a Service.
func NewService(store domain.Store, launcher *Launcher, catalog ToolCatalog, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("coordinator: task store is required")
	}
	if launcher == nil {
		return nil, errors.New("coordinator: launcher is required")
	}
	s := &Service{
		store:    store,
		launcher: launcher,
		catalog:  catalog,
		limits:   DefaultLimits(),
		now:      time.Now,
		logger:   logging.NewComponentLogger("Coordinator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CreateTask validates req, persists a pending task and starts its loop in
// the background. The loop outlives ctx.
func (s *Service) CreateTask(ctx context.Context, identity ports.Identity, req CreateTaskRequest) (*domain.Task, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is required", ErrValidation)
	}
	if utf8.RuneCountInString(goal) > s.limits.MaxGoalLength {
		return nil, fmt.Errorf("%w: goal exceeds %d characters", ErrValidation, s.limits.MaxGoalLength)
	}
	if req.EstimatedSteps < 0 {
		return nil, fmt.Errorf("%w: estimated_steps must not be negative", ErrValidation)
	}
	plan, err := s.normalizePlan(req.Plan)
	if err != nil {
		return nil, err
	}

	steps := domain.ResolveEstimatedSteps(req.EstimatedSteps, plan, s.limits.DefaultEstimatedSteps)
	now := s.now()
	t := &domain.Task{
		ID:             id.NewTaskID(),
		OwnerID:        identity.OwnerID,
		TenantID:       identity.TenantID,
		Goal:           goal,
		Plan:           plan,
		EstimatedSteps: steps,
		Context:        req.Context,
		Status:         domain.StatusPending,
		MaxIterations:  domain.MaxIterationsFor(steps, s.limits.MaxIterationsCap),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if s.observer != nil {
		s.observer.ObserveTaskCreated(ctx)
	}
	logger := logging.FromContext(ctx, s.logger)
	logger.Info("Task %s created for owner %s: steps=%d max_iterations=%d", t.ID, t.OwnerID, t.EstimatedSteps, t.MaxIterations)
	if err := s.launcher.Launch(ctx, t.ID); err != nil {
		logger.Warn("Task %s not started: %v", t.ID, err)
		if serr := s.store.SetStatus(ctx, t.ID, domain.StatusError, domain.WithError(NotStartedReason)); serr != nil {
			logger.Error("Failed to mark unstarted task %s as error: %v", t.ID, serr)
		}
		return nil, fmt.Errorf("start task %s: %w", t.ID, err)
	}
	return t.Clone(), nil
}

func (s *Service) normalizePlan(plan []string) ([]string, error) {
	if len(plan) > s.limits.MaxPlanSteps {
		return nil, fmt.Errorf("%w: plan exceeds %d steps", ErrValidation, s.limits.MaxPlanSteps)
	}
	out := make([]string, 0, len(plan))
	for i, step := range plan {
		step = strings.TrimSpace(step)
		if step == "" {
			return nil, fmt.Errorf("%w: plan step %d is empty", ErrValidation, i+1)
		}
		out = append(out, step)
	}
	return out, nil
}

// GetTask returns the detail projection of a task the caller owns.
func (s *Service) GetTask(ctx context.Context, identity ports.Identity, taskID string) (domain.Detail, error) {
	t, err := s.load(ctx, identity, taskID)
	if err != nil {
		return domain.Detail{}, err
	}
	return domain.Describe(t, s.now()), nil
}

// ListTasks returns the caller's most recent tasks.
func (s *Service) ListTasks(ctx context.Context, identity ports.Identity, limit int) ([]domain.Summary, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListForOwner(ctx, identity.OwnerID, domain.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	now := s.now()
	out := make([]domain.Summary, 0, len(tasks))
	for _, t := range tasks {
		if t.TenantID != identity.TenantID {
			continue
		}
		out = append(out, domain.Summarize(t, now))
	}
	return out, nil
}

// ActiveTask returns the caller's most recent running task, or nil.
func (s *Service) ActiveTask(ctx context.Context, identity ports.Identity) (*domain.Detail, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	t, err := s.store.ActiveForOwner(ctx, identity.OwnerID, identity.TenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active task: %w", err)
	}
	detail := domain.Describe(t, s.now())
	return &detail, nil
}

// RateTask stores a 1..5 rating on a finished task.
func (s *Service) RateTask(ctx context.Context, identity ports.Identity, taskID string, rating int) error {
	t, err := s.load(ctx, identity, taskID)
	if err != nil {
		return err
	}
	if err := domain.ValidateRating(t, rating); err != nil {
		return err
	}
	return s.store.SetRating(ctx, taskID, rating)
}

// ResumeTask answers the pending question of a suspended task and restarts
// its loop in the background.
func (s *Service) ResumeTask(ctx context.Context, identity ports.Identity, taskID, answer string) (domain.Detail, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.Detail{}, fmt.Errorf("%w: answer is required", ErrValidation)
	}
	t, err := s.load(ctx, identity, taskID)
	if err != nil {
		return domain.Detail{}, err
	}
	if t.Status != domain.StatusAwaitingHumanInput {
		return domain.Detail{}, fmt.Errorf("%w: task is %s, not awaiting input", ErrConflict, t.Status)
	}
	question := ""
	if t.PendingInput != nil {
		question = t.PendingInput.Question
	}
	if err := s.store.SetStatus(ctx, taskID, domain.StatusRunning); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return domain.Detail{}, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return domain.Detail{}, fmt.Errorf("resume task: %w", err)
	}

	logger := logging.FromContext(ctx, s.logger)
	if err := s.launcher.Launch(ctx, taskID, react.WithHumanAnswer(question, answer)); err != nil {
		s.restoreSuspended(ctx, logger, t)
		if errors.Is(err, ErrTaskBusy) {
			return domain.Detail{}, fmt.Errorf("%w: previous loop of task %s is still finishing, retry shortly", ErrConflict, taskID)
		}
		return domain.Detail{}, fmt.Errorf("resume task %s: %w", taskID, err)
	}
	logger.Info("Task %s resumed by owner %s", taskID, identity.OwnerID)

	t, err = s.store.Get(ctx, taskID)
	if err != nil {
		return domain.Detail{}, err
	}
	return domain.Describe(t, s.now()), nil
}

// restoreSuspended puts a task whose resume could not start back into
// awaiting_human_input with its original question.
func (s *Service) restoreSuspended(ctx context.Context, logger logging.Logger, t *domain.Task) {
	var opts []domain.TransitionOption
	if t.PendingInput != nil {
		opts = append(opts, domain.WithPendingInput(*t.PendingInput))
	}
	if err := s.store.SetStatus(ctx, t.ID, domain.StatusAwaitingHumanInput, opts...); err != nil {
		logger.Error("Failed to restore suspended task %s: %v", t.ID, err)
	}
}

// Tools returns the catalog of tools offered to the reasoning service.
func (s *Service) Tools() []ports.ToolDefinition {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.Definitions()
}

// RecoverStale fails tasks a previous process left pending or running.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	count, err := s.store.MarkStaleRunning(ctx, StaleTaskReason)
	if err != nil {
		return 0, fmt.Errorf("recover stale tasks: %w", err)
	}
	if count > 0 {
		s.logger.Warn("Marked %d stale task(s) as error", count)
	}
	return count, nil
}

// Shutdown stops accepting loops and waits for running ones.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.launcher.Shutdown(ctx)
}

// load fetches a task and hides tasks of other owners and tenants.
func (s *Service) load(ctx context.Context, identity ports.Identity, taskID string) (*domain.Task, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, domain.ErrNotFound
	}
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != identity.OwnerID || t.TenantID != identity.TenantID {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func requireIdentity(identity ports.Identity) error {
	if strings.TrimSpace(identity.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	return nil
}
