// Package di assembles the orchestrator's collaborators from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"counsel/internal/app/agent/coordinator"
	"counsel/internal/app/toolregistry"
	"counsel/internal/domain/agent/ports"
	"counsel/internal/domain/agent/react"
	domain "counsel/internal/domain/task"
	"counsel/internal/infra/llm"
	"counsel/internal/infra/observability"
	"counsel/internal/infra/tools/builtin/practice"
	"counsel/internal/scheduler"
	"counsel/internal/shared/config"
	"counsel/internal/shared/logging"
	"counsel/internal/shared/utils/id"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Container holds every long-lived component of the service process.
type Container struct {
	Config        config.Config
	Store         domain.Store
	Pool          *pgxpool.Pool
	Tools         *toolregistry.Registry
	LLM           ports.LLMClient
	Engine        *react.Engine
	Launcher      *coordinator.Launcher
	Tasks         *coordinator.Service
	Scheduler     *scheduler.Scheduler
	Observability *observability.Observability

	logger logging.Logger
}

// Option customizes BuildContainer.
type Option func(*buildOptions)

type buildOptions struct {
	llm     ports.LLMClient
	store   domain.Store
	backend practice.Backend
	clock   react.Clock
	version string
}

// WithLLMClient replaces the configured reasoning client.
func WithLLMClient(client ports.LLMClient) Option {
	return func(o *buildOptions) { o.llm = client }
}

// WithStore replaces the configured task store.
func WithStore(store domain.Store) Option {
	return func(o *buildOptions) { o.store = store }
}

// WithPracticeBackend replaces the in-memory practice management backend.
func WithPracticeBackend(backend practice.Backend) Option {
	return func(o *buildOptions) { o.backend = backend }
}

// WithEngineClock replaces the loop clock.
func WithEngineClock(clock react.Clock) Option {
	return func(o *buildOptions) { o.clock = clock }
}

// WithVersion sets the service version reported to the tracer.
func WithVersion(version string) Option {
	return func(o *buildOptions) { o.version = version }
}

// BuildContainer wires the service. Callers must call Shutdown on success.
func BuildContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	options := buildOptions{version: "dev"}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	logger := logging.NewComponentLogger("DI")

	id.SetStrategy(id.ParseStrategy(cfg.Agent.IDStrategy))

	obs := observability.New(cfg.Observability, options.version, logging.NewComponentLogger("Observability"))
	c := &Container{Config: cfg, Observability: obs, logger: logger}

	c.Store = options.store
	if c.Store == nil {
		store, pool, err := OpenTaskStore(ctx, cfg.Database, logger)
		if err != nil {
			_ = obs.Shutdown(context.Background())
			return nil, err
		}
		c.Store, c.Pool = store, pool
	}

	backend := options.backend
	if backend == nil {
		backend = practice.NewMemoryBackend()
	}
	c.Tools = toolregistry.NewRegistry(
		toolregistry.WithToolTimeout(cfg.Agent.ToolTimeout),
		toolregistry.WithObserver(obs.Metrics),
		toolregistry.WithLogger(logging.NewComponentLogger("ToolRegistry")),
	)
	if err := c.Tools.RegisterAll(practice.Tools(backend)...); err != nil {
		c.closeResources()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	c.LLM = options.llm
	if c.LLM == nil {
		client, err := llm.NewClient(cfg.LLM, logging.NewComponentLogger("LLM"))
		if err != nil {
			c.closeResources()
			return nil, fmt.Errorf("build reasoning client: %w", err)
		}
		c.LLM = client
	}

	var err error
	c.Engine, err = react.NewEngine(react.EngineConfig{
		LLM:        c.LLM,
		Tools:      c.Tools,
		Store:      c.Store,
		Completion: react.NewPhraseCompletion(cfg.Agent.MinCompletionIterations),
		Limits: react.Limits{
			RuntimeBudget:  cfg.Agent.RuntimeBudget,
			TurnDelay:      cfg.Agent.TurnDelay,
			StuckThreshold: cfg.Agent.StuckThreshold,
		},
		Clock:       options.clock,
		Observer:    obs.Metrics,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		c.closeResources()
		return nil, err
	}

	c.Launcher = coordinator.NewLauncher(c.Engine, c.Store, cfg.Agent.MaxConcurrentTasks, logging.NewComponentLogger("TaskLauncher"))
	limits := coordinator.DefaultLimits()
	limits.MaxIterationsCap = cfg.Agent.MaxIterationsCap
	limits.DefaultEstimatedSteps = cfg.Agent.DefaultEstimatedSteps
	c.Tasks, err = coordinator.NewService(c.Store, c.Launcher, c.Tools,
		coordinator.WithLimits(limits),
		coordinator.WithCreationObserver(obs.Metrics),
		coordinator.WithLogger(logging.NewComponentLogger("TaskService")),
	)
	if err != nil {
		c.closeResources()
		return nil, err
	}

	c.Scheduler = scheduler.New(scheduler.Config{
		Enabled:  cfg.Retention.Enabled,
		Schedule: cfg.Retention.Schedule,
		MaxAge:   cfg.Retention.MaxAge,
	}, c.Store, logging.NewComponentLogger("Scheduler"))

	logger.Info("Container built: store=%s model=%s tools=%d", c.storeKind(), c.LLM.Model(), len(c.Tools.Definitions()))
	return c, nil
}

// Start recovers tasks orphaned by a previous process and starts the
// housekeeping scheduler.
func (c *Container) Start(ctx context.Context) error {
	recovered, err := c.Tasks.RecoverStale(ctx)
	if err != nil {
		return fmt.Errorf("recover stale tasks: %w", err)
	}
	if recovered > 0 {
		c.logger.Warn("Marked %d stale task(s) as error", recovered)
	}
	if err := c.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Shutdown cancels running loops, waits up to the configured grace period,
// and releases every resource.
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")
	var errs []error

	grace := c.Config.Agent.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	drainCtx, cancel := context.WithTimeout(ctx, grace)
	if err := c.Tasks.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("drain tasks: %w", err))
	}
	cancel()

	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if err := c.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return errors.Join(errs...)
}

func (c *Container) closeResources() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	_ = c.Observability.Shutdown(context.Background())
}

func (c *Container) storeKind() string {
	if c.Pool != nil {
		return "postgres"
	}
	return "memory"
}
