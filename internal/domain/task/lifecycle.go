package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTaskTerminal is returned when mutating progress of a finished task.
	ErrTaskTerminal = errors.New("task already finished")
	// ErrTaskNotTerminal is returned when rating a task that has not finished.
	ErrTaskNotTerminal = errors.New("task has not finished")
	// ErrNotRunning is returned when appending progress to a task that is not running.
	ErrNotRunning = errors.New("task is not running")
	// ErrOutOfOrder is returned when a progress entry skips or repeats an iteration.
	ErrOutOfOrder = errors.New("progress entry out of order")
	// ErrPlanLocked is returned when changing the plan of a started task.
	ErrPlanLocked = errors.New("plan can only change before the task starts")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

const (
	MinRating = 1
	MaxRating = 5
)

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusError},
	StatusRunning: {
		StatusAwaitingHumanInput,
		StatusCompleted,
		StatusError,
		StatusTimeout,
		StatusMaxIterations,
		StatusStuck,
	},
	StatusAwaitingHumanInput: {StatusRunning, StatusError, StatusTimeout},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionParams holds optional fields for a SetStatus call.
type TransitionParams struct {
	Result       *string
	ErrorText    *string
	PendingInput *HumanInputRequest
}

// TransitionOption customises a SetStatus call.
type TransitionOption func(*TransitionParams)

// WithResult records the human-readable outcome alongside the status.
func WithResult(result string) TransitionOption {
	return func(p *TransitionParams) { p.Result = &result }
}

// WithError records failure detail alongside the status.
func WithError(errText string) TransitionOption {
	return func(p *TransitionParams) { p.ErrorText = &errText }
}

// WithPendingInput records the question a suspended task waits on.
func WithPendingInput(req HumanInputRequest) TransitionOption {
	return func(p *TransitionParams) { p.PendingInput = &req }
}

// ApplyTransitionOptions collects all options into a TransitionParams.
func ApplyTransitionOptions(opts []TransitionOption) TransitionParams {
	var p TransitionParams
	for _, fn := range opts {
		if fn != nil {
			fn(&p)
		}
	}
	return p
}

// ApplyTransition mutates t to the target status. It returns false without
// error when t is already terminal: finished tasks never change status.
// Adapters call it while holding whatever lock serializes writes to t.
func ApplyTransition(t *Task, to Status, params TransitionParams, now time.Time) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}
	if !CanTransition(t.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	from := t.Status
	t.Status = to
	t.UpdatedAt = now

	if to == StatusRunning && t.StartedAt == nil {
		started := now
		t.StartedAt = &started
	}
	if from == StatusAwaitingHumanInput {
		t.PendingInput = nil
	}
	if to == StatusAwaitingHumanInput && params.PendingInput != nil {
		input := *params.PendingInput
		t.PendingInput = &input
	}
	if to.IsTerminal() {
		completed := now
		t.CompletedAt = &completed
		if params.Result != nil {
			t.Result = *params.Result
		}
		if to == StatusError && params.ErrorText != nil {
			t.Error = *params.ErrorText
		}
	}
	return true, nil
}

// ApplyProgress appends entry to t and advances the iteration counter. An
// entry with a zero Iteration is numbered automatically.
func ApplyProgress(t *Task, entry ProgressEntry, now time.Time) (ProgressEntry, error) {
	if t.Status.IsTerminal() {
		return entry, ErrTaskTerminal
	}
	if t.Status != StatusRunning {
		return entry, fmt.Errorf("%w: status %s", ErrNotRunning, t.Status)
	}
	next := t.Iterations + 1
	if entry.Iteration == 0 {
		entry.Iteration = next
	}
	if entry.Iteration != next {
		return entry, fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, entry.Iteration, next)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	t.Progress = append(t.Progress, entry)
	t.Iterations = entry.Iteration
	t.UpdatedAt = now
	return entry, nil
}

// ValidateRating checks the rating range and that t has finished.
func ValidateRating(t *Task, rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	if !t.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s", ErrTaskNotTerminal, t.Status)
	}
	return nil
}

// ValidatePlanChange checks that t has not started yet.
func ValidatePlanChange(t *Task) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: status %s", ErrPlanLocked, t.Status)
	}
	return nil
}
