package task

import (
	"context"
	"time"
)

// Store is the durable task persistence port.
//
// Writes for one task come from its owning loop only; implementations must
// still make each write atomic so concurrent readers never observe a partial
// progress entry.
type Store interface {
	// EnsureSchema creates or migrates the schema.
	EnsureSchema(ctx context.Context) error

	// Create persists a new task.
	Create(ctx context.Context, task *Task) error

	// Get retrieves a task with its full progress log.
	Get(ctx context.Context, taskID string) (*Task, error)

	// UpdatePlan replaces the plan of a task that has not started.
	UpdatePlan(ctx context.Context, taskID string, plan []string) error

	// AppendProgress appends one entry and advances iterations in a single step.
	AppendProgress(ctx context.Context, taskID string, entry ProgressEntry) error

	// SetStatus moves the task through its lifecycle. It is a no-op once the
	// task is terminal.
	SetStatus(ctx context.Context, taskID string, status Status, opts ...TransitionOption) error

	// SetRating stores post-hoc feedback on a finished task.
	SetRating(ctx context.Context, taskID string, rating int) error

	// ListForOwner returns the owner's tasks, newest first, without progress.
	ListForOwner(ctx context.Context, ownerID string, limit int) ([]*Task, error)

	// ActiveForOwner returns the owner's most recent running task within
	// the tenant.
	ActiveForOwner(ctx context.Context, ownerID, tenantID string) (*Task, error)

	// MarkStaleRunning fails every pending or running task left behind by a
	// previous process and reports how many were changed.
	MarkStaleRunning(ctx context.Context, reason string) (int, error)

	// DeleteExpired removes terminal tasks completed before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// DefaultListLimit bounds list queries that do not specify a limit.
const DefaultListLimit = 20

// MaxListLimit caps list queries.
const MaxListLimit = 100

// NormalizeLimit clamps a caller supplied list limit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
