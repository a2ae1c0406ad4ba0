// Package task defines the agent task domain model, its lifecycle rules, the
// store port, and the read projections served to polling clients.
//
// A task is owned by exactly one running agent loop at a time. The store is
// the single source of truth; no process-local copy is authoritative.
package task

import (
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusAwaitingHumanInput Status = "awaiting_human_input"
	StatusCompleted          Status = "completed"
	StatusError              Status = "error"
	StatusTimeout            Status = "timeout"
	StatusMaxIterations      Status = "max_iterations"
	StatusStuck              Status = "stuck"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusAwaitingHumanInput,
	StatusCompleted,
	StatusError,
	StatusTimeout,
	StatusMaxIterations,
	StatusStuck,
}

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusTimeout, StatusMaxIterations, StatusStuck:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ProgressEntry is the durable record of one dispatched tool call.
type ProgressEntry struct {
	Iteration       int       `json:"iteration"`
	ToolName        string    `json:"tool_name"`
	ArgsFingerprint string    `json:"args_fingerprint"`
	Timestamp       time.Time `json:"timestamp"`
	OutcomeSummary  string    `json:"outcome_summary"`
	IsError         bool      `json:"is_error,omitempty"`
}

// HumanInputRequest is the question a suspended task is waiting on.
type HumanInputRequest struct {
	Question string   `json:"question"`
	Context  string   `json:"context,omitempty"`
	Options  []string `json:"options,omitempty"`
	Urgency  string   `json:"urgency,omitempty"`
}

// Task is a unit of unattended agent work.
type Task struct {
	ID       string `json:"task_id"`
	OwnerID  string `json:"owner_id"`
	TenantID string `json:"tenant_id"`

	Goal           string         `json:"goal"`
	Plan           []string       `json:"plan"`
	EstimatedSteps int            `json:"estimated_steps"`
	Context        map[string]any `json:"context,omitempty"`

	Status        Status          `json:"status"`
	Iterations    int             `json:"iterations"`
	MaxIterations int             `json:"max_iterations"`
	Progress      []ProgressEntry `json:"progress"`

	Result       string             `json:"result,omitempty"`
	Error        string             `json:"error,omitempty"`
	PendingInput *HumanInputRequest `json:"pending_input,omitempty"`
	Rating       *int               `json:"rating,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.Plan != nil {
		out.Plan = append([]string(nil), t.Plan...)
	}
	if t.Progress != nil {
		out.Progress = append([]ProgressEntry(nil), t.Progress...)
	}
	if t.Context != nil {
		out.Context = cloneMap(t.Context)
	}
	if t.PendingInput != nil {
		input := *t.PendingInput
		input.Options = append([]string(nil), t.PendingInput.Options...)
		out.PendingInput = &input
	}
	out.Rating = cloneIntPtr(t.Rating)
	out.StartedAt = cloneTimePtr(t.StartedAt)
	out.CompletedAt = cloneTimePtr(t.CompletedAt)
	return &out
}

// LastProgress returns the most recent progress entry, if any.
func (t *Task) LastProgress() (ProgressEntry, bool) {
	if t == nil || len(t.Progress) == 0 {
		return ProgressEntry{}, false
	}
	return t.Progress[len(t.Progress)-1], true
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = cloneMap(typed)
		case []any:
			out[k] = append([]any(nil), typed...)
		default:
			out[k] = v
		}
	}
	return out
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	ts := *v
	return &ts
}
