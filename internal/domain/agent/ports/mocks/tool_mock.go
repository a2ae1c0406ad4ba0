package mocks

import (
	"context"
	"sync"

	"counsel/internal/domain/agent/ports"
)

// MockDispatcher records dispatched calls and answers through DispatchFunc.
type MockDispatcher struct {
	DispatchFunc    func(ctx context.Context, call ports.ToolCall, identity ports.Identity) ports.ToolOutcome
	DefinitionsFunc func() []ports.ToolDefinition

	mu    sync.Mutex
	calls []ports.ToolCall
}

func (m *MockDispatcher) Dispatch(ctx context.Context, call ports.ToolCall, identity ports.Identity) ports.ToolOutcome {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, call, identity)
	}
	return ports.DomainResult{Payload: "Mock tool result"}
}

func (m *MockDispatcher) Definitions() []ports.ToolDefinition {
	if m.DefinitionsFunc != nil {
		return m.DefinitionsFunc()
	}
	return []ports.ToolDefinition{{Name: "mock_tool"}}
}

// Calls returns every dispatched call in order.
func (m *MockDispatcher) Calls() []ports.ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ToolCall(nil), m.calls...)
}
