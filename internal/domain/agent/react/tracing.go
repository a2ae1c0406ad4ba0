package react

import (
	"context"

	id "counsel/internal/shared/utils/id"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScopeReact = "counsel.react"

	traceSpanRun            = "counsel.agent.run"
	traceSpanReactIteration = "counsel.react.iteration"
	traceSpanLLMGenerate    = "counsel.llm.generate"
	traceSpanToolExecute    = "counsel.tool.execute"

	traceAttrTaskID    = "counsel.task_id"
	traceAttrLogID     = "counsel.log_id"
	traceAttrTurn      = "counsel.turn"
	traceAttrIteration = "counsel.iteration"
	traceAttrStatus    = "counsel.status"
	traceAttrToolName  = "counsel.tool_name"
	traceAttrModel     = "counsel.llm.model"
)

func startReactSpan(ctx context.Context, spanName, taskID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	if taskID != "" {
		spanAttrs = append(spanAttrs, attribute.String(traceAttrTaskID, taskID))
	}
	if logID := id.LogIDFromContext(ctx); logID != "" {
		spanAttrs = append(spanAttrs, attribute.String(traceAttrLogID, logID))
	}
	spanAttrs = append(spanAttrs, attrs...)
	return otel.Tracer(traceScopeReact).Start(ctx, spanName, trace.WithAttributes(spanAttrs...))
}

func markSpanResult(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(traceAttrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(traceAttrStatus, "success"))
}
