package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultServerAddr              = ":8080"
	DefaultMaxIterationsCap        = 50
	DefaultEstimatedSteps          = 5
	DefaultRuntimeBudget           = 30 * time.Minute
	DefaultTurnDelay               = 2 * time.Second
	DefaultMinCompletionIterations = 5
	DefaultStuckThreshold          = 3
	DefaultToolTimeout             = 60 * time.Second
	DefaultMaxConcurrentTasks      = 16
	DefaultLLMTimeout              = 120 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rpm", 30)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", DefaultLLMTimeout)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("agent.max_iterations_cap", DefaultMaxIterationsCap)
	v.SetDefault("agent.default_estimated_steps", DefaultEstimatedSteps)
	v.SetDefault("agent.runtime_budget", DefaultRuntimeBudget)
	v.SetDefault("agent.turn_delay", DefaultTurnDelay)
	v.SetDefault("agent.min_completion_iterations", DefaultMinCompletionIterations)
	v.SetDefault("agent.stuck_threshold", DefaultStuckThreshold)
	v.SetDefault("agent.tool_timeout", DefaultToolTimeout)
	v.SetDefault("agent.max_concurrent_tasks", DefaultMaxConcurrentTasks)
	v.SetDefault("agent.shutdown_grace", 30*time.Second)
	v.SetDefault("agent.id_strategy", "ksuid")

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.schedule", "17 3 * * *")
	v.SetDefault("retention.max_age", 90*24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "")
	v.SetDefault("logging.stdout", true)

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("observability.tracing.zipkin_endpoint", "http://localhost:9411/api/v2/spans")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.tracing.service_name", "counsel")
}
