package toolregistry

import (
	"testing"

	"counsel/internal/domain/agent/ports"
)

func testSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"name":     {Type: "string"},
			"hours":    {Type: "number"},
			"billable": {Type: "boolean"},
			"tags":     {Type: "array"},
			"meta":     {Type: "object"},
		},
		Required: []string{"name"},
	}
}

func TestValidateArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"name": "x", "hours": 2.0, "billable": true, "tags": []any{"a"}, "meta": map[string]any{}}, false},
		{"int accepted as number", map[string]any{"name": "x", "hours": 2}, false},
		{"extra fields allowed", map[string]any{"name": "x", "other": 1}, false},
		{"nil optional skipped", map[string]any{"name": "x", "hours": nil}, false},
		{"missing required", map[string]any{"hours": 1.0}, true},
		{"nil required", map[string]any{"name": nil}, true},
		{"wrong string", map[string]any{"name": 1.0}, true},
		{"wrong number", map[string]any{"name": "x", "hours": "two"}, true},
		{"wrong boolean", map[string]any{"name": "x", "billable": "yes"}, true},
		{"wrong array", map[string]any{"name": "x", "tags": "a"}, true},
		{"wrong object", map[string]any{"name": "x", "meta": []any{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArguments(testSchema(), tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateArguments() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDefinitionRejectsNonObjectSchema(t *testing.T) {
	err := validateDefinition(ports.ToolDefinition{Name: "x", Parameters: ports.ParameterSchema{Type: "string"}})
	if err == nil {
		t.Fatal("expected error for non-object schema")
	}
}
