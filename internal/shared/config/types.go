package config

import "time"

// Config is the effective runtime configuration of the orchestrator service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Agent         AgentConfig         `mapstructure:"agent" yaml:"agent"`
	Retention     RetentionConfig     `mapstructure:"retention" yaml:"retention"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimitRPM    int           `mapstructure:"rate_limit_rpm" yaml:"rate_limit_rpm"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the task store. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// LLMConfig configures the reasoning service client.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute caps reasoning calls across all tasks; 0 disables it.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig holds the loop budgets and policies.
type AgentConfig struct {
	MaxIterationsCap        int           `mapstructure:"max_iterations_cap" yaml:"max_iterations_cap"`
	DefaultEstimatedSteps   int           `mapstructure:"default_estimated_steps" yaml:"default_estimated_steps"`
	RuntimeBudget           time.Duration `mapstructure:"runtime_budget" yaml:"runtime_budget"`
	TurnDelay               time.Duration `mapstructure:"turn_delay" yaml:"turn_delay"`
	MinCompletionIterations int           `mapstructure:"min_completion_iterations" yaml:"min_completion_iterations"`
	StuckThreshold          int           `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
	ToolTimeout             time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	MaxConcurrentTasks      int           `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	ShutdownGrace           time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	IDStrategy              string        `mapstructure:"id_strategy" yaml:"id_strategy"`
}

// RetentionConfig controls the janitor that deletes old terminal tasks.
type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Schedule string        `mapstructure:"schedule" yaml:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// LoggingConfig configures the process log sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Stdout bool   `mapstructure:"stdout" yaml:"stdout"`
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	Tracing        TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig selects a span exporter.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter       string  `mapstructure:"exporter" yaml:"exporter"` // otlp or zipkin
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `mapstructure:"zipkin_endpoint" yaml:"zipkin_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
}
