// Package toolregistry holds the startup-built table of agent tools and
// dispatches tool calls from the agent loop to their handlers.
package toolregistry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"counsel/internal/domain/agent/ports"
	"counsel/internal/shared/logging"
)

// DefaultToolTimeout bounds a single handler call when no timeout is configured.
const DefaultToolTimeout = 60 * time.Second

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// CallObserver receives one record per dispatched tool call.
type CallObserver interface {
	ObserveToolCall(ctx context.Context, tool string, duration time.Duration, failed bool)
}

// Registry is an explicit name -> tool table. It is populated at startup
// and read concurrently by every running agent loop.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]ports.Tool
	cachedDefs []ports.ToolDefinition
	defsDirty  bool

	toolTimeout time.Duration
	logger      logging.Logger
	observer    CallObserver
}

// Option customizes a Registry.
type Option func(*Registry)

// WithToolTimeout overrides the per-call handler deadline.
func WithToolTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.toolTimeout = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(logger) }
}

// WithObserver records dispatch metrics.
func WithObserver(observer CallObserver) Option {
	return func(r *Registry) { r.observer = observer }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:       make(map[string]ports.Tool),
		defsDirty:   true,
		toolTimeout: DefaultToolTimeout,
		logger:      logging.NewComponentLogger("ToolRegistry"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register adds a tool. Invalid names, duplicates, reserved sentinel names
// and schemas that require undeclared properties are rejected.
func (r *Registry) Register(tool ports.Tool) error {
	name := tool.Definition.Name
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("invalid tool name %q", name)
	}
	if ports.IsSentinel(name) {
		return fmt.Errorf("tool name %q is reserved", name)
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", name)
	}
	if err := validateDefinition(tool.Definition); err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.defsDirty = true
	return nil
}

// RegisterAll registers tools in order and stops at the first failure.
func (r *Registry) RegisterAll(tools ...ports.Tool) error {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether name resolves to a domain tool or a sentinel.
func (r *Registry) Has(name string) bool {
	if ports.IsSentinel(name) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definitions returns every tool schema, including the sentinel tools, sorted
// by name. The slice is cached until the next registration.
func (r *Registry) Definitions() []ports.ToolDefinition {
	r.mu.RLock()
	if !r.defsDirty {
		defs := r.cachedDefs
		r.mu.RUnlock()
		return append([]ports.ToolDefinition(nil), defs...)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defsDirty {
		defs := make([]ports.ToolDefinition, 0, len(r.tools)+2)
		for _, tool := range r.tools {
			defs = append(defs, tool.Definition)
		}
		defs = append(defs, sentinelDefinitions()...)
		sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
		r.cachedDefs = defs
		r.defsDirty = false
	}
	return append([]ports.ToolDefinition(nil), r.cachedDefs...)
}

func (r *Registry) lookup(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

var _ ports.ToolDispatcher = (*Registry)(nil)
