package mocks

import (
	"context"
	"sync"

	"counsel/internal/domain/agent/ports"
)

type MockLLMClient struct {
	CompleteFunc func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error)
	ModelFunc    func() string

	mu       sync.Mutex
	requests []ports.CompletionRequest
}

func (m *MockLLMClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &ports.CompletionResponse{
		Content:    "Mock response",
		StopReason: "stop",
		Usage:      ports.TokenUsage{TotalTokens: 100},
	}, nil
}

func (m *MockLLMClient) Model() string {
	if m.ModelFunc != nil {
		return m.ModelFunc()
	}
	return "mock-model"
}

// Requests returns every request seen so far.
func (m *MockLLMClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.CompletionRequest(nil), m.requests...)
}

// ScriptedLLM replays responses in order and repeats the last one once the
// script runs out.
type ScriptedLLM struct {
	MockLLMClient
	Responses []*ports.CompletionResponse
	calls     int
}

func NewScriptedLLM(responses ...*ports.CompletionResponse) *ScriptedLLM {
	s := &ScriptedLLM{Responses: responses}
	s.CompleteFunc = func(context.Context, ports.CompletionRequest) (*ports.CompletionResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.Responses) == 0 {
			return &ports.CompletionResponse{Content: "Mock response", StopReason: "stop"}, nil
		}
		idx := s.calls
		if idx >= len(s.Responses) {
			idx = len(s.Responses) - 1
		}
		s.calls++
		return s.Responses[idx], nil
	}
	return s
}

// Calls reports how many completions were served.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ToolCallResponse builds a response that asks for a single tool call.
func ToolCallResponse(id, name string, args map[string]any) *ports.CompletionResponse {
	return &ports.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls:  []ports.ToolCall{{ID: id, Name: name, Arguments: args}},
	}
}

// TextResponse builds a plain assistant reply.
func TextResponse(content string) *ports.CompletionResponse {
	return &ports.CompletionResponse{Content: content, StopReason: "stop"}
}
