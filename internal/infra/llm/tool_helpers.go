package llm

import (
	"regexp"
	"strings"

	"counsel/internal/domain/agent/ports"
	jsonx "counsel/internal/shared/json"

	"github.com/kaptinlin/jsonrepair"
)

var validToolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func isValidToolName(name string) bool {
	return validToolNamePattern.MatchString(strings.TrimSpace(name))
}

func normalizeToolSchema(schema ports.ParameterSchema) ports.ParameterSchema {
	normalized := schema
	if strings.TrimSpace(normalized.Type) == "" {
		normalized.Type = "object"
	}
	if normalized.Properties == nil {
		normalized.Properties = map[string]ports.Property{}
	}
	return normalized
}

func buildToolCallHistory(calls []ports.ToolCall) []map[string]any {
	result := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		if !isValidToolName(call.Name) {
			continue
		}
		args := "{}"
		if len(call.Arguments) > 0 {
			if data, err := jsonx.Marshal(call.Arguments); err == nil {
				args = string(data)
			}
		}
		result = append(result, map[string]any{
			"id":   call.ID,
			"type": "function",
			"function": map[string]any{
				"name":      call.Name,
				"arguments": args,
			},
		})
	}
	return result
}

func convertTools(tools []ports.ToolDefinition) []map[string]any {
	result := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		if !isValidToolName(tool.Name) {
			continue
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  normalizeToolSchema(tool.Parameters),
			},
		})
	}
	return result
}

func convertMessages(msgs []ports.Message) []map[string]any {
	result := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		entry := map[string]any{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			entry["tool_calls"] = buildToolCallHistory(msg.ToolCalls)
		}
		if msg.ToolCallID != "" {
			entry["tool_call_id"] = msg.ToolCallID
		}
		result = append(result, entry)
	}
	return result
}

// parseToolArguments decodes the model's argument string. Malformed JSON is
// repaired once; arguments that still cannot be decoded come back empty so
// the dispatcher reports the missing fields to the model.
func parseToolArguments(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := jsonx.Unmarshal([]byte(raw), &args); err == nil && args != nil {
		return args, true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return map[string]any{}, false
	}
	args = nil
	if err := jsonx.Unmarshal([]byte(repaired), &args); err != nil || args == nil {
		return map[string]any{}, false
	}
	return args, true
}
