package task

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// maxRunningPercent keeps unfinished tasks from ever reporting 100%.
const maxRunningPercent = 95

// PercentFor derives a progress percentage from status and step counts.
func PercentFor(status Status, completedSteps, planSteps int) int {
	switch {
	case status == StatusCompleted:
		return 100
	case status == StatusPending:
		return 0
	case planSteps <= 0 || completedSteps <= 0:
		return 0
	}
	percent := int(math.Round(100 * float64(completedSteps) / float64(planSteps)))
	if percent > maxRunningPercent {
		return maxRunningPercent
	}
	return percent
}

// PlanSteps returns the step count progress is measured against.
func (t *Task) PlanSteps() int {
	if len(t.Plan) > 0 {
		return len(t.Plan)
	}
	return t.EstimatedSteps
}

// ProgressPercent reports how far along the task is.
func (t *Task) ProgressPercent() int {
	return PercentFor(t.Status, t.Iterations, t.PlanSteps())
}

// Duration is the elapsed run time: start to completion for finished tasks,
// start to now otherwise. Tasks that never started report zero.
func (t *Task) Duration(now time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := now
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	if end.Before(*t.StartedAt) {
		return 0
	}
	return end.Sub(*t.StartedAt)
}

// CurrentStep is a human-readable label for the most recent tool activity.
func (t *Task) CurrentStep() string {
	last, ok := t.LastProgress()
	if !ok {
		return "Starting"
	}
	return HumanizeToolName(last.ToolName)
}

// HumanizeToolName turns "log_time" into "Log time".
func HumanizeToolName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	if len(words) == 0 {
		return "Working"
	}
	phrase := strings.ToLower(strings.Join(words, " "))
	runes := []rune(phrase)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Summary is the list projection of a task.
type Summary struct {
	ID              string     `json:"task_id"`
	Goal            string     `json:"goal"`
	Status          Status     `json:"status"`
	Iterations      int        `json:"iterations"`
	MaxIterations   int        `json:"max_iterations"`
	ProgressPercent int        `json:"progress_percent"`
	DurationSeconds float64    `json:"duration_seconds"`
	Rating          *int       `json:"rating,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Detail is the single-task projection, including the progress log.
type Detail struct {
	Summary
	Plan           []string           `json:"plan"`
	EstimatedSteps int                `json:"estimated_steps"`
	Progress       []ProgressEntry    `json:"progress"`
	Result         string             `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
	PendingInput   *HumanInputRequest `json:"pending_input,omitempty"`
	CurrentStep    string             `json:"current_step"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Summarize builds the list projection.
func Summarize(t *Task, now time.Time) Summary {
	return Summary{
		ID:              t.ID,
		Goal:            t.Goal,
		Status:          t.Status,
		Iterations:      t.Iterations,
		MaxIterations:   t.MaxIterations,
		ProgressPercent: t.ProgressPercent(),
		DurationSeconds: math.Round(t.Duration(now).Seconds()*10) / 10,
		Rating:          cloneIntPtr(t.Rating),
		CreatedAt:       t.CreatedAt,
		CompletedAt:     cloneTimePtr(t.CompletedAt),
	}
}

// Describe builds the detail projection.
func Describe(t *Task, now time.Time) Detail {
	progress := t.Progress
	if progress == nil {
		progress = []ProgressEntry{}
	}
	plan := t.Plan
	if plan == nil {
		plan = []string{}
	}
	return Detail{
		Summary:        Summarize(t, now),
		Plan:           plan,
		EstimatedSteps: t.EstimatedSteps,
		Progress:       progress,
		Result:         t.Result,
		Error:          t.Error,
		PendingInput:   t.PendingInput,
		CurrentStep:    t.CurrentStep(),
		StartedAt:      t.StartedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
