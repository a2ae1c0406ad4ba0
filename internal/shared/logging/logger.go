package logging

import (
	"context"
	"reflect"

	id "counsel/internal/shared/utils/id"
)

// Logger is the printf-style sink every counsel component writes to. Lines
// are scoped to a component by NewComponentLogger and to a request or task
// by FromContext.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

// Nop returns a Logger that drops every line. Tests and optional
// collaborators use it.
func Nop() Logger { return discard{} }

// IsNil is true for a nil Logger and for a typed nil such as a
// (*componentLogger)(nil) stored in the interface.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	switch v := reflect.ValueOf(logger); v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return v.IsNil()
	}
	return false
}

// OrNop lets constructors accept an optional Logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return discard{}
	}
	return logger
}

// NewComponentLogger returns the process logger with every line prefixed by
// component, e.g. "[TaskLauncher]".
func NewComponentLogger(component string) Logger {
	return newComponentLogger(component)
}

type logIDTagger interface {
	WithLogID(logID string) Logger
}

// FromContext tags logger with the log id that request middleware and the
// launcher put on ctx, so the lines of one task loop can be grepped together.
// Loggers that cannot carry a log id are returned unchanged.
func FromContext(ctx context.Context, logger Logger) Logger {
	logger = OrNop(logger)
	if ctx == nil {
		return logger
	}
	tagger, ok := logger.(logIDTagger)
	if !ok {
		return logger
	}
	if logID := id.LogIDFromContext(ctx); logID != "" {
		return tagger.WithLogID(logID)
	}
	return logger
}

// Multi writes each line to every non-nil logger, in argument order. Nested
// fan-outs are flattened; with one logger left it is returned as is.
func Multi(loggers ...Logger) Logger {
	var sinks []Logger
	for _, logger := range loggers {
		switch l := logger.(type) {
		case nil:
		case *fanout:
			if l != nil {
				sinks = append(sinks, l.sinks...)
			}
		default:
			if !IsNil(l) {
				sinks = append(sinks, l)
			}
		}
	}
	switch len(sinks) {
	case 0:
		return discard{}
	case 1:
		return sinks[0]
	}
	return &fanout{sinks: sinks}
}

type fanout struct {
	sinks []Logger
}

func (f *fanout) Debug(format string, args ...any) {
	for _, l := range f.sinks {
		l.Debug(format, args...)
	}
}

func (f *fanout) Info(format string, args ...any) {
	for _, l := range f.sinks {
		l.Info(format, args...)
	}
}

func (f *fanout) Warn(format string, args ...any) {
	for _, l := range f.sinks {
		l.Warn(format, args...)
	}
}

func (f *fanout) Error(format string, args ...any) {
	for _, l := range f.sinks {
		l.Error(format, args...)
	}
}
