package toolregistry

import (
	"fmt"
	"strings"

	"counsel/internal/domain/agent/ports"
)

var urgencyLevels = []any{"low", "normal", "high"}

func sentinelDefinitions() []ports.ToolDefinition {
	return []ports.ToolDefinition{
		{
			Name:        ports.ToolTaskComplete,
			Description: "Call when the goal is fully achieved. Ends the task and reports what was done.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"summary":         {Type: "string", Description: "One paragraph summary of the outcome."},
					"actions_taken":   {Type: "array", Description: "Actions performed, in order.", Items: &ports.Property{Type: "string"}},
					"results":         {Type: "array", Description: "Concrete results, such as created records.", Items: &ports.Property{Type: "string"}},
					"recommendations": {Type: "array", Description: "Suggested follow-ups for the user.", Items: &ports.Property{Type: "string"}},
				},
				Required: []string{"summary", "actions_taken"},
			},
		},
		{
			Name:        ports.ToolRequestHumanInput,
			Description: "Pause the task and ask the user a question when you cannot proceed safely without an answer.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"question": {Type: "string", Description: "The question to ask."},
					"context":  {Type: "string", Description: "Why the answer is needed."},
					"options":  {Type: "array", Description: "Suggested answers.", Items: &ports.Property{Type: "string"}},
					"urgency":  {Type: "string", Description: "How soon an answer is needed.", Enum: urgencyLevels},
				},
				Required: []string{"question", "context"},
			},
		},
	}
}

func sentinelDefinition(name string) ports.ToolDefinition {
	for _, def := range sentinelDefinitions() {
		if def.Name == name {
			return def
		}
	}
	return ports.ToolDefinition{}
}

func decodeSentinel(call ports.ToolCall) ports.ToolOutcome {
	def := sentinelDefinition(call.Name)
	if err := validateArguments(def.Parameters, call.Arguments); err != nil {
		return ports.DomainResult{Err: "invalid arguments: " + err.Error()}
	}

	switch call.Name {
	case ports.ToolTaskComplete:
		summary := strings.TrimSpace(stringArg(call.Arguments, "summary"))
		if summary == "" {
			return ports.DomainResult{Err: "invalid arguments: summary must not be empty"}
		}
		return ports.TaskComplete{
			Summary:         summary,
			ActionsTaken:    stringsArg(call.Arguments, "actions_taken"),
			Results:         stringsArg(call.Arguments, "results"),
			Recommendations: stringsArg(call.Arguments, "recommendations"),
		}
	case ports.ToolRequestHumanInput:
		question := strings.TrimSpace(stringArg(call.Arguments, "question"))
		if question == "" {
			return ports.DomainResult{Err: "invalid arguments: question must not be empty"}
		}
		urgency := stringArg(call.Arguments, "urgency")
		if urgency == "" {
			urgency = "normal"
		}
		return ports.NeedsHumanInput{
			Question: question,
			Context:  stringArg(call.Arguments, "context"),
			Options:  stringsArg(call.Arguments, "options"),
			Urgency:  urgency,
		}
	default:
		return ports.DomainResult{Err: ErrUnknownTool}
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func stringsArg(args map[string]any, key string) []string {
	switch typed := args[key].(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
