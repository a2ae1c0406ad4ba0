// Package react runs the agent loop for one task: it alternates reasoning
// calls and tool dispatches until the task completes, suspends for human
// input, or exhausts a budget.
package react

import (
	"context"
	"errors"
	"time"

	"counsel/internal/domain/agent/ports"
	domain "counsel/internal/domain/task"
	"counsel/internal/shared/logging"
)

const (
	// DefaultRuntimeBudget is the wall-clock ceiling of one loop execution.
	DefaultRuntimeBudget = 30 * time.Minute
	// DefaultTurnDelay paces consecutive reasoning calls.
	DefaultTurnDelay = 2 * time.Second
	// finalWriteTimeout bounds terminal writes made after cancellation.
	finalWriteTimeout = 5 * time.Second
)

// Limits are the budgets applied to every run.
type Limits struct {
	RuntimeBudget  time.Duration
	TurnDelay      time.Duration
	StuckThreshold int
}

// Observer receives loop metrics. All methods must be safe for concurrent use.
type Observer interface {
	ObserveLLMCall(ctx context.Context, model string, duration time.Duration, failed bool)
	ObserveTaskFinished(ctx context.Context, status string, iterations int, duration time.Duration)
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	LLM         ports.LLMClient
	Tools       ports.ToolDispatcher
	Store       domain.Store
	Completion  CompletionDetector
	Limits      Limits
	Clock       Clock
	Logger      logging.Logger
	Observer    Observer
	Temperature float64
	MaxTokens   int
}

// Engine runs agent loops. It is stateless between runs and safe for
// concurrent use; each Run owns exactly one task.
type Engine struct {
	llm         ports.LLMClient
	tools       ports.ToolDispatcher
	store       domain.Store
	completion  CompletionDetector
	limits      Limits
	clock       Clock
	logger      logging.Logger
	observer    Observer
	temperature float64
	maxTokens   int
}

// Outcome describes how a run ended.
type Outcome struct {
	TaskID     string
	Status     domain.Status
	Result     string
	Error      string
	Iterations int
	Turns      int
}

// RunOption customizes a single run.
type RunOption func(*runOptions)

type runOptions struct {
	question string
	answer   string
	resumed  bool
}

// WithHumanAnswer resumes a suspended task with the user's answer to question.
func WithHumanAnswer(question, answer string) RunOption {
	return func(o *runOptions) {
		o.question = question
		o.answer = answer
		o.resumed = true
	}
}

// NewEngine validates cfg and fills defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.LLM == nil {
		return nil, errors.New("react: reasoning client is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("react: tool dispatcher is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("react: task store is required")
	}

	limits := cfg.Limits
	if limits.RuntimeBudget <= 0 {
		limits.RuntimeBudget = DefaultRuntimeBudget
	}
	if limits.TurnDelay < 0 {
		limits.TurnDelay = 0
	}
	if limits.StuckThreshold <= 0 {
		limits.StuckThreshold = DefaultStuckThreshold
	}
	completion := cfg.Completion
	if completion == nil {
		completion = NewPhraseCompletion(DefaultMinCompletionIterations)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := cfg.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ReactEngine")
	}

	return &Engine{
		llm:         cfg.LLM,
		tools:       cfg.Tools,
		store:       cfg.Store,
		completion:  completion,
		limits:      limits,
		clock:       clock,
		logger:      logger,
		observer:    cfg.Observer,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Run executes the loop for taskID until it reaches a terminal or suspended
// state. Loop-level failures are persisted on the task and reported in the
// Outcome; the returned error is non-nil only when the store itself fails.
func (e *Engine) Run(ctx context.Context, taskID string, opts ...RunOption) (*Outcome, error) {
	var options runOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	t, err := e.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() || t.Status == domain.StatusAwaitingHumanInput {
		return outcomeFromTask(t, 0), nil
	}
	if t.Status == domain.StatusPending {
		if err := e.store.SetStatus(ctx, taskID, domain.StatusRunning); err != nil {
			return nil, err
		}
		if t, err = e.store.Get(ctx, taskID); err != nil {
			return nil, err
		}
	}

	rt := newRuntime(e, t, options)
	return rt.run(ctx)
}

func outcomeFromTask(t *domain.Task, turns int) *Outcome {
	return &Outcome{
		TaskID:     t.ID,
		Status:     t.Status,
		Result:     t.Result,
		Error:      t.Error,
		Iterations: t.Iterations,
		Turns:      turns,
	}
}
