package llm

import (
	"context"
	"fmt"
	"sync/atomic"

	"counsel/internal/domain/agent/ports"
)

// mockClient is the offline provider used when no API key is configured. It
// reports the task as complete on the first turn so the pipeline can be
// exercised end to end without a reasoning service.
type mockClient struct {
	calls atomic.Int64
}

// NewMockClient returns the offline provider.
func NewMockClient() ports.LLMClient {
	return &mockClient{}
}

func (c *mockClient) Model() string { return "mock" }

func (c *mockClient) Complete(ctx context.Context, _ ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := c.calls.Add(1)
	return &ports.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls: []ports.ToolCall{{
			ID:   fmt.Sprintf("mock-%d", n),
			Name: ports.ToolTaskComplete,
			Arguments: map[string]any{
				"summary":         "No reasoning service is configured; the task was acknowledged without doing any work.",
				"actions_taken":   []any{},
				"recommendations": []any{"Set llm.api_key to run tasks against a real model."},
			},
		}},
	}, nil
}
