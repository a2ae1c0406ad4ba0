package toolregistry

import (
	"fmt"
	"strings"

	"counsel/internal/domain/agent/ports"
)

func validateDefinition(def ports.ToolDefinition) error {
	if def.Parameters.Type != "" && def.Parameters.Type != "object" {
		return fmt.Errorf("parameters must be an object schema, got %q", def.Parameters.Type)
	}
	for _, req := range def.Parameters.Required {
		if _, ok := def.Parameters.Properties[req]; !ok {
			return fmt.Errorf("required argument %q is not a declared property", req)
		}
	}
	return nil
}

// validateArguments checks required fields and basic type matching. Lenient:
// accepts any numeric type for integer (JSON numbers), allows extra fields
// not in schema.
func validateArguments(schema ports.ParameterSchema, args map[string]any) error {
	for _, req := range schema.Required {
		val, ok := args[req]
		if !ok || val == nil {
			return fmt.Errorf("missing required argument %q", req)
		}
	}

	for key, val := range args {
		prop, ok := schema.Properties[key]
		if !ok || val == nil {
			continue
		}
		if err := checkType(key, prop.Type, val); err != nil {
			return err
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, val) {
			return fmt.Errorf("argument %q: value %v is not one of %v", key, val, prop.Enum)
		}
	}
	return nil
}

func checkType(key, expectedType string, val any) error {
	if expectedType == "" {
		return nil
	}

	switch strings.ToLower(expectedType) {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("argument %q: expected string, got %T", key, val)
		}
	case "number", "integer":
		switch val.(type) {
		case float64, float32, int, int64, int32:
		default:
			return fmt.Errorf("argument %q: expected number, got %T", key, val)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("argument %q: expected boolean, got %T", key, val)
		}
	case "array":
		switch val.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("argument %q: expected array, got %T", key, val)
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("argument %q: expected object, got %T", key, val)
		}
	}
	return nil
}

func enumContains(enum []any, val any) bool {
	for _, candidate := range enum {
		if fmt.Sprint(candidate) == fmt.Sprint(val) {
			return true
		}
	}
	return false
}
