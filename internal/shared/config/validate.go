package config

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderRequiresAPIKey reports whether the provider requires API key authentication.
func ProviderRequiresAPIKey(provider string) bool {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "mock", "ollama":
		return false
	default:
		return true
	}
}

// Validate rejects configurations the service cannot run with.
func Validate(cfg Config) error {
	var errs []error
	agent := cfg.Agent
	if agent.MaxIterationsCap <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations_cap must be positive, got %d", agent.MaxIterationsCap))
	}
	if agent.DefaultEstimatedSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.default_estimated_steps must be positive, got %d", agent.DefaultEstimatedSteps))
	}
	if agent.RuntimeBudget <= 0 {
		errs = append(errs, fmt.Errorf("agent.runtime_budget must be positive, got %s", agent.RuntimeBudget))
	}
	if agent.TurnDelay < 0 {
		errs = append(errs, fmt.Errorf("agent.turn_delay must not be negative, got %s", agent.TurnDelay))
	}
	if agent.StuckThreshold < 2 {
		errs = append(errs, fmt.Errorf("agent.stuck_threshold must be at least 2, got %d", agent.StuckThreshold))
	}
	if agent.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("agent.tool_timeout must be positive, got %s", agent.ToolTimeout))
	}
	if agent.MaxConcurrentTasks <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_concurrent_tasks must be positive, got %d", agent.MaxConcurrentTasks))
	}
	if cfg.Retention.Enabled && cfg.Retention.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("retention.max_age must be positive when retention is enabled"))
	}
	switch cfg.Observability.Tracing.Exporter {
	case "", "otlp", "zipkin":
	default:
		errs = append(errs, fmt.Errorf("observability.tracing.exporter %q is not supported", cfg.Observability.Tracing.Exporter))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}
