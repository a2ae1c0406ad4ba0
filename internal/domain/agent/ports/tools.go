package ports

import (
	"context"

	jsonx "counsel/internal/shared/json"
)

// maxDescribeRunes bounds the outcome text stored in progress records.
const maxDescribeRunes = 200

// Reserved tool names that change loop control instead of doing domain work.
const (
	ToolTaskComplete      = "task_complete"
	ToolRequestHumanInput = "request_human_input"
)

// IsSentinel reports whether name is one of the reserved control tools.
func IsSentinel(name string) bool {
	return name == ToolTaskComplete || name == ToolRequestHumanInput
}

// ToolCall represents a request to execute a tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool for the LLM
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema defines tool parameters (JSON Schema format)
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Enum        []any     `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Identity scopes a tool call to the task's owner and tenant.
type Identity struct {
	OwnerID  string `json:"owner_id"`
	TenantID string `json:"tenant_id"`
}

// Handler performs one domain operation. Returned values are serialized
// into the transcript; errors are reported to the model, never propagated.
type Handler func(ctx context.Context, args map[string]any, identity Identity) (any, error)

// Tool couples a definition with the handler that serves it.
type Tool struct {
	Definition ToolDefinition
	Handler    Handler
}

// ToolOutcome is the result of one dispatch. It is one of DomainResult,
// TaskComplete or NeedsHumanInput.
type ToolOutcome interface {
	isToolOutcome()
	// Describe is a short one-line description for progress records.
	Describe() string
	// Failed reports whether the call produced an error payload.
	Failed() bool
}

// DomainResult is ordinary tool output, or an error message for the model.
type DomainResult struct {
	Payload any    `json:"result,omitempty"`
	Err     string `json:"error,omitempty"`
}

// TaskComplete is the decoded task_complete sentinel.
type TaskComplete struct {
	Summary         string   `json:"summary"`
	ActionsTaken    []string `json:"actions_taken"`
	Results         []string `json:"results,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// NeedsHumanInput is the decoded request_human_input sentinel.
type NeedsHumanInput struct {
	Question string   `json:"question"`
	Context  string   `json:"context"`
	Options  []string `json:"options,omitempty"`
	Urgency  string   `json:"urgency,omitempty"`
}

func (DomainResult) isToolOutcome()    {}
func (TaskComplete) isToolOutcome()    {}
func (NeedsHumanInput) isToolOutcome() {}

func (r DomainResult) Failed() bool  { return r.Err != "" }
func (TaskComplete) Failed() bool    { return false }
func (NeedsHumanInput) Failed() bool { return false }

func (r DomainResult) Describe() string {
	if r.Err != "" {
		return truncate("error: " + r.Err)
	}
	if r.Payload == nil {
		return "ok"
	}
	if text, ok := r.Payload.(string); ok {
		return truncate(text)
	}
	return truncate(jsonx.MarshalString(r.Payload, "ok"))
}

func (c TaskComplete) Describe() string { return truncate("task complete: " + c.Summary) }

func (n NeedsHumanInput) Describe() string { return truncate("awaiting input: " + n.Question) }

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDescribeRunes {
		return s
	}
	return string(runes[:maxDescribeRunes-3]) + "..."
}

// ToolDispatcher executes tool calls for the agent loop.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call ToolCall, identity Identity) ToolOutcome
	Definitions() []ToolDefinition
}
