package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	id "counsel/internal/shared/utils/id"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, "debug") }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, "info") }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, "warn") }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, "error") }

func TestOrNopHandlesTypedNil(t *testing.T) {
	var typed *recordingLogger
	require.True(t, IsNil(typed))
	require.NotPanics(t, func() { OrNop(typed).Info("hello") })
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	logger := Multi(a, nil, Multi(b))
	logger.Warn("x")
	require.Equal(t, []string{"warn"}, a.lines)
	require.Equal(t, []string{"warn"}, b.lines)

	require.Equal(t, a, Multi(nil, a))
}

func TestNopAndUntaggableLoggersIgnoreLogID(t *testing.T) {
	ctx := id.WithLogID(context.Background(), "log-abc")
	require.Equal(t, Nop(), FromContext(ctx, nil))

	rec := &recordingLogger{}
	require.Same(t, rec, FromContext(ctx, rec))
	require.Same(t, rec, FromContext(context.Background(), rec))

	require.Equal(t, Nop(), Multi())
	require.Equal(t, Nop(), Multi(nil, (*recordingLogger)(nil)))
}

func TestMultiFansOutEveryLevelInOrder(t *testing.T) {
	var order []string
	first := &orderedLogger{name: "first", order: &order}
	second := &orderedLogger{name: "second", order: &order}
	logger := Multi(first, second)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
	require.Equal(t, []string{
		"first:d", "second:d", "first:i", "second:i",
		"first:w", "second:w", "first:e", "second:e",
	}, order)
}

type orderedLogger struct {
	name  string
	order *[]string
}

func (o *orderedLogger) record(format string) { *o.order = append(*o.order, o.name+":"+format) }

func (o *orderedLogger) Debug(format string, _ ...any) { o.record(format) }
func (o *orderedLogger) Info(format string, _ ...any)  { o.record(format) }
func (o *orderedLogger) Warn(format string, _ ...any)  { o.record(format) }
func (o *orderedLogger) Error(format string, _ ...any) { o.record(format) }

func TestComponentLoggerFormatsLineWithLogID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelDebug)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, LevelInfo) })

	ctx := id.WithLogID(context.Background(), "log-abc")
	logger := FromContext(ctx, NewComponentLogger("Engine"))
	logger.Info("task %s started", "task-1")

	out := buf.String()
	require.Contains(t, out, "[INFO] [Engine] [log_id=log-abc]")
	require.Contains(t, out, "task task-1 started")
	require.True(t, strings.HasSuffix(out, "\n"))
}

func TestComponentLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelWarn)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}, LevelInfo) })

	logger := NewComponentLogger("Store")
	logger.Info("dropped")
	logger.Error("kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "[ERROR] [Store]")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel(" error "))
	require.Equal(t, LevelInfo, ParseLevel("loud"))
}
