package id

import "context"

type contextKey string

const (
	logKey   contextKey = "counsel_log_id"
	taskKey  contextKey = "counsel_task_id"
	ownerKey contextKey = "counsel_owner_id"
)

// WithLogID stores the provided log identifier on the context.
func WithLogID(ctx context.Context, logID string) context.Context {
	if logID == "" {
		return ctx
	}
	return context.WithValue(ctx, logKey, logID)
}

// LogIDFromContext extracts the log identifier from context.
func LogIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if logID, ok := ctx.Value(logKey).(string); ok {
		return logID
	}
	return ""
}

// WithTaskID stores the agent task identifier on the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, taskID)
}

// TaskIDFromContext extracts the agent task identifier from context.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if taskID, ok := ctx.Value(taskKey).(string); ok {
		return taskID
	}
	return ""
}

// WithOwnerID stores the requesting owner on the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	if ownerID == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerKey, ownerID)
}

// OwnerIDFromContext extracts the requesting owner from context.
func OwnerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ownerID, ok := ctx.Value(ownerKey).(string); ok {
		return ownerID
	}
	return ""
}

// EnsureLogID guarantees a log identifier is present on the context.
// It returns the updated context and the resulting identifier.
func EnsureLogID(ctx context.Context, generator func() string) (context.Context, string) {
	if existing := LogIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	next := ""
	if generator != nil {
		next = generator()
	}
	if next == "" {
		return ctx, ""
	}
	return WithLogID(ctx, next), next
}
