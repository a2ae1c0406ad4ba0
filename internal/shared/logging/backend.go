package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const logFileName = "counsel.log"

// ParseLevel maps a config string onto a Level. Unknown values fall back to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Options configures the process-wide log sink.
type Options struct {
	Level  Level
	Dir    string
	Stdout bool
}

type sink struct {
	mu     sync.Mutex
	level  Level
	writer io.Writer
	file   *os.File
}

var (
	sinkMu  sync.RWMutex
	current = &sink{level: LevelInfo, writer: os.Stdout}
)

// Configure replaces the process-wide sink. When Dir is set, lines are also
// appended to <Dir>/counsel.log.
func Configure(opts Options) error {
	writers := make([]io.Writer, 0, 2)
	if opts.Stdout {
		writers = append(writers, os.Stdout)
	}
	var file *os.File
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir %s: %w", dir, err)
		}
		f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	next := &sink{level: opts.Level, file: file, writer: io.Discard}
	if len(writers) > 0 {
		next.writer = io.MultiWriter(writers...)
	}

	sinkMu.Lock()
	prev := current
	current = next
	sinkMu.Unlock()

	if prev != nil && prev.file != nil {
		_ = prev.file.Close()
	}
	return nil
}

// SetOutput redirects the sink to w. Intended for tests.
func SetOutput(w io.Writer, level Level) {
	sinkMu.Lock()
	current = &sink{level: level, writer: w}
	sinkMu.Unlock()
}

func activeSink() *sink {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return current
}

// componentLogger writes lines in the form
// 2006-01-02 15:04:05 [LEVEL] [Component] [log_id=..] file.go:12 - message
type componentLogger struct {
	component string
	logID     string
}

func newComponentLogger(component string) *componentLogger {
	return &componentLogger{component: component}
}

// WithLogID returns a copy of the logger that tags lines with logID.
func (l *componentLogger) WithLogID(logID string) Logger {
	if strings.TrimSpace(logID) == "" {
		return l
	}
	return &componentLogger{component: l.component, logID: logID}
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *componentLogger) log(level Level, format string, args ...any) {
	s := activeSink()
	if s == nil || level < s.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "counsel"
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s]", level, component)
	if l.logID != "" {
		fmt.Fprintf(&b, " [log_id=%s]", l.logID)
	}
	fmt.Fprintf(&b, " %s:%d - ", file, line)
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')

	s.mu.Lock()
	_, _ = io.WriteString(s.writer, b.String())
	s.mu.Unlock()
}
