// Package practice provides the demo practice-management tools the agent can
// call: looking up and opening matters and recording time against them.
package practice

import (
	"context"
	"errors"
	"time"

	"counsel/internal/domain/agent/ports"
)

// ErrMatterNotFound is returned when a matter id does not resolve for the caller.
var ErrMatterNotFound = errors.New("matter not found")

// Matter is a client engagement that time is billed against.
type Matter struct {
	ID          string    `json:"matter_id"`
	TenantID    string    `json:"-"`
	Title       string    `json:"title"`
	ClientName  string    `json:"client_name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// MatterInput is the payload of CreateMatter.
type MatterInput struct {
	Title       string
	ClientName  string
	Description string
}

// TimeEntry is hours recorded against a matter.
type TimeEntry struct {
	ID          string    `json:"entry_id"`
	MatterID    string    `json:"matter_id"`
	Hours       float64   `json:"hours"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Billable    bool      `json:"billable"`
	RecordedBy  string    `json:"recorded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// TimeEntryInput is the payload of LogTime.
type TimeEntryInput struct {
	MatterID    string
	Hours       float64
	Description string
	Date        string
	Billable    bool
}

// Backend is the practice data the tools operate on. Every call is scoped to
// the caller's tenant.
type Backend interface {
	FindMatters(ctx context.Context, identity ports.Identity, query string, limit int) ([]Matter, error)
	CreateMatter(ctx context.Context, identity ports.Identity, input MatterInput) (Matter, error)
	LogTime(ctx context.Context, identity ports.Identity, input TimeEntryInput) (TimeEntry, error)
	ListTimeEntries(ctx context.Context, identity ports.Identity, matterID string, limit int) ([]TimeEntry, error)
}
