package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"counsel/internal/domain/agent/ports"
	sharederrors "counsel/internal/shared/errors"
	"counsel/internal/shared/logging"
)

// ErrUnknownTool is the model-facing text for unresolved tool names.
const ErrUnknownTool = "unknown tool"

type handlerResult struct {
	value any
	err   error
}

// Dispatch runs one tool call. It never panics and never returns a Go error:
// every failure becomes a DomainResult carrying an error message, so the
// reasoning service can see it and adapt.
func (r *Registry) Dispatch(ctx context.Context, call ports.ToolCall, identity ports.Identity) (outcome ports.ToolOutcome) {
	started := time.Now()
	logger := logging.FromContext(ctx, r.logger)
	defer func() {
		if r.observer != nil {
			r.observer.ObserveToolCall(ctx, call.Name, time.Since(started), outcome.Failed())
		}
	}()

	if ports.IsSentinel(call.Name) {
		return decodeSentinel(call)
	}

	tool, ok := r.lookup(call.Name)
	if !ok {
		logger.Warn("Unknown tool requested: %q", call.Name)
		return ports.DomainResult{Err: ErrUnknownTool}
	}
	if err := validateArguments(tool.Definition.Parameters, call.Arguments); err != nil {
		return ports.DomainResult{Err: "invalid arguments: " + err.Error()}
	}

	result := r.invoke(ctx, tool, call, identity)
	if result.err != nil {
		logger.Debug("Tool %s failed: %v", call.Name, result.err)
		return ports.DomainResult{Err: sharederrors.FormatForLLM(result.err)}
	}
	return ports.DomainResult{Payload: result.value}
}

// invoke runs the handler under its own deadline. A handler that ignores
// cancellation is abandoned once the deadline passes.
func (r *Registry) invoke(ctx context.Context, tool ports.Tool, call ports.ToolCall, identity ports.Identity) handlerResult {
	callCtx, cancel := context.WithTimeout(ctx, r.toolTimeout)
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Tool %s panicked: %v, stack: %s", call.Name, rec, debug.Stack())
				done <- handlerResult{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		value, err := tool.Handler(callCtx, cloneArgs(call.Arguments), identity)
		done <- handlerResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil {
			return handlerResult{err: timeoutError(r.toolTimeout)}
		}
		return res
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return handlerResult{err: fmt.Errorf("tool cancelled: %w", ctx.Err())}
		}
		return handlerResult{err: timeoutError(r.toolTimeout)}
	}
}

func timeoutError(d time.Duration) error {
	return sharederrors.NewPermanentError(context.DeadlineExceeded, fmt.Sprintf("tool timed out after %s", d))
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
