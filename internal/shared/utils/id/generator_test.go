package id

import (
	"context"
	"strings"
	"testing"
)

func TestNewRequestIDWithLogID(t *testing.T) {
	requestID := NewRequestIDWithLogID("log-123")
	if !strings.HasPrefix(requestID, "log-123:llm-") {
		t.Fatalf("expected request id to embed log id, got %q", requestID)
	}

	fallback := NewRequestIDWithLogID(" ")
	if !strings.HasPrefix(fallback, "llm-") {
		t.Fatalf("expected request id to fall back to llm prefix, got %q", fallback)
	}
}

func TestNewTaskIDStrategies(t *testing.T) {
	t.Cleanup(func() { SetStrategy(StrategyKSUID) })

	ksuidID := NewTaskID()
	if !strings.HasPrefix(ksuidID, "task-") || len(ksuidID) != len("task-")+27 {
		t.Fatalf("unexpected ksuid task id %q", ksuidID)
	}

	SetStrategy(ParseStrategy("uuidv7"))
	uuidID := NewTaskID()
	if !strings.HasPrefix(uuidID, "task-") || len(uuidID) != len("task-")+36 {
		t.Fatalf("unexpected uuidv7 task id %q", uuidID)
	}
	if NewTaskID() == uuidID {
		t.Fatal("expected unique ids")
	}
}

func TestEnsureLogIDKeepsExisting(t *testing.T) {
	ctx := WithLogID(context.Background(), "log-1")
	ctx, got := EnsureLogID(ctx, NewLogID)
	if got != "log-1" || LogIDFromContext(ctx) != "log-1" {
		t.Fatalf("expected existing log id, got %q", got)
	}

	ctx, got = EnsureLogID(context.Background(), func() string { return "log-2" })
	if got != "log-2" || LogIDFromContext(ctx) != "log-2" {
		t.Fatalf("expected generated log id, got %q", got)
	}
}

func TestContextAccessorsIgnoreEmpty(t *testing.T) {
	ctx := WithTaskID(context.Background(), "")
	if TaskIDFromContext(ctx) != "" {
		t.Fatal("expected empty task id")
	}
	ctx = WithOwnerID(WithTaskID(ctx, "task-1"), "owner-1")
	if TaskIDFromContext(ctx) != "task-1" || OwnerIDFromContext(ctx) != "owner-1" {
		t.Fatal("expected ids to round trip")
	}
}
