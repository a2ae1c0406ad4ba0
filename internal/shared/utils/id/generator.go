package id

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces prefixed identifiers for tasks, tool calls and logs.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// ParseStrategy maps a config value onto a Strategy, defaulting to KSUID.
func ParseStrategy(raw string) Strategy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "uuidv7", "uuid":
		return StrategyUUIDv7
	default:
		return StrategyKSUID
	}
}

// NewTaskID generates a new agent task identifier.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("task")
}

// NewLogID generates an identifier used to correlate log lines of one request.
func NewLogID() string {
	return defaultGenerator.newIdentifier("log")
}

// NewCallID generates an identifier for a tool call that arrived without one.
func NewCallID() string {
	return defaultGenerator.newIdentifier("call")
}

// NewRequestIDWithLogID builds an outbound reasoning request id, embedding the
// log id when present so upstream logs can be joined with ours.
func NewRequestIDWithLogID(logID string) string {
	body := "llm-" + NewKSUID()
	if trimmed := strings.TrimSpace(logID); trimmed != "" {
		return trimmed + ":" + body
	}
	return body
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	switch strategy {
	case StrategyUUIDv7:
		uuidv7, err := uuid.NewV7()
		if err == nil {
			body = uuidv7.String()
			break
		}
		body = ksuid.New().String()
	default:
		body = ksuid.New().String()
	}

	return fmt.Sprintf("%s-%s", prefix, body)
}

// NewKSUID exposes raw KSUID generation for callers that need unprefixed identifiers.
func NewKSUID() string {
	return ksuid.New().String()
}
