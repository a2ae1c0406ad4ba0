package react

import (
	"fmt"
	"sort"
	"strings"

	"counsel/internal/domain/agent/ports"
	domain "counsel/internal/domain/task"
	jsonx "counsel/internal/shared/json"
)

const operatingInstructions = `You are an autonomous practice assistant working through a task without a human watching.
Work one step at a time and use the provided tools for every action; do not describe work you have not done.
When the goal is fully achieved, call task_complete with a summary and the actions you took.
If you cannot continue safely without a decision from the user, call request_human_input and stop.
Never repeat an identical tool call that already returned the same result.`

const startPrompt = "Begin with step 1 of the plan. Use a tool to make progress."

const correctivePrompt = "You did not call a tool. Continue working by calling the appropriate tool for the next step. " +
	"If every step is done, call task_complete instead of replying in text."

func buildSystemPrompt(t *domain.Task) string {
	var b strings.Builder
	b.WriteString(operatingInstructions)
	b.WriteString("\n\n## Goal\n")
	b.WriteString(strings.TrimSpace(t.Goal))
	if len(t.Plan) > 0 {
		b.WriteString("\n\n## Plan\n")
		for i, step := range t.Plan {
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(step))
		}
	}
	if len(t.Context) > 0 {
		b.WriteString("\n## Context\n")
		keys := make([]string, 0, len(t.Context))
		for k := range t.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, renderValue(t.Context[k]))
		}
	}
	fmt.Fprintf(&b, "\nYou may dispatch at most %d tool calls for this task.", t.MaxIterations)
	return strings.TrimRight(b.String(), "\n")
}

// buildResumePrompt recaps recorded progress and injects the human's answer.
func buildResumePrompt(t *domain.Task, question, answer string) string {
	var b strings.Builder
	if len(t.Progress) > 0 {
		b.WriteString("Progress so far:\n")
		for _, entry := range t.Progress {
			fmt.Fprintf(&b, "%d. %s -> %s\n", entry.Iteration, entry.ToolName, entry.OutcomeSummary)
		}
		b.WriteString("\n")
	}
	if question != "" {
		fmt.Fprintf(&b, "You asked: %s\n", question)
	}
	fmt.Fprintf(&b, "The user answered: %s\n\nContinue with the next step.", strings.TrimSpace(answer))
	return b.String()
}

// renderOutcome is the tool message content the model sees for a dispatch.
func renderOutcome(outcome ports.ToolOutcome) string {
	switch o := outcome.(type) {
	case ports.DomainResult:
		if o.Err != "" {
			return jsonx.MarshalString(map[string]string{"error": o.Err}, `{"error":"tool failed"}`)
		}
		return jsonx.MarshalString(map[string]any{"result": o.Payload}, `{"result":null}`)
	case ports.TaskComplete:
		return jsonx.MarshalString(map[string]any{"status": "completed", "summary": o.Summary}, `{"status":"completed"}`)
	case ports.NeedsHumanInput:
		return jsonx.MarshalString(map[string]any{"status": "awaiting_human_input", "question": o.Question}, `{"status":"awaiting_human_input"}`)
	default:
		return "{}"
	}
}

// completionResult formats the task_complete payload for the task record.
func completionResult(c ports.TaskComplete) string {
	var b strings.Builder
	b.WriteString(c.Summary)
	writeList(&b, "Actions taken", c.ActionsTaken)
	writeList(&b, "Results", c.Results)
	writeList(&b, "Recommendations", c.Recommendations)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n\n%s:", title)
	for _, item := range items {
		fmt.Fprintf(b, "\n- %s", item)
	}
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return jsonx.MarshalString(v, fmt.Sprint(v))
}
