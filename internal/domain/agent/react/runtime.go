package react

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"counsel/internal/domain/agent/ports"
	domain "counsel/internal/domain/task"
	"counsel/internal/shared/logging"
	id "counsel/internal/shared/utils/id"

	"go.opentelemetry.io/otel/attribute"
)

// reactRuntime owns the state of one loop execution. The transcript lives
// only here; everything durable goes through the store.
type reactRuntime struct {
	engine   *Engine
	task     *domain.Task
	options  runOptions
	identity ports.Identity
	logger   logging.Logger

	transcript    []ports.Message
	stuck         *stuckDetector
	startTime     time.Time
	iterations    int
	maxIterations int
	turns         int
	lastAssistant string
	lastEntry     *domain.ProgressEntry
}

func newRuntime(engine *Engine, t *domain.Task, options runOptions) *reactRuntime {
	maxIterations := t.MaxIterations
	if maxIterations <= 0 {
		maxIterations = domain.MaxIterationsFor(t.EstimatedSteps, 0)
	}
	return &reactRuntime{
		engine:        engine,
		task:          t,
		options:       options,
		identity:      ports.Identity{OwnerID: t.OwnerID, TenantID: t.TenantID},
		logger:        engine.logger,
		stuck:         newStuckDetector(engine.limits.StuckThreshold),
		startTime:     engine.clock.Now(),
		iterations:    t.Iterations,
		maxIterations: maxIterations,
	}
}

// turnResult is non-nil once the loop must stop.
type turnResult struct {
	outcome *Outcome
	err     error
}

func stop(outcome *Outcome, err error) *turnResult {
	return &turnResult{outcome: outcome, err: err}
}

func (r *reactRuntime) run(ctx context.Context) (outcome *Outcome, err error) {
	ctx = id.WithTaskID(ctx, r.task.ID)
	r.logger = logging.FromContext(ctx, r.engine.logger)
	ctx, span := startReactSpan(ctx, traceSpanRun, r.task.ID, attribute.Int("counsel.max_iterations", r.maxIterations))
	defer func() {
		if outcome != nil {
			span.SetAttributes(
				attribute.String(traceAttrStatus+"_final", string(outcome.Status)),
				attribute.Int(traceAttrIteration, outcome.Iterations),
			)
		}
		markSpanResult(span, err)
		span.End()
	}()

	r.seed()
	r.logger.Info("Task %s running: max_iterations=%d iterations=%d resumed=%t", r.task.ID, r.maxIterations, r.iterations, r.options.resumed)

	for {
		if r.turns > 0 {
			if sleepErr := r.engine.clock.Sleep(ctx, r.engine.limits.TurnDelay); sleepErr != nil {
				return r.interrupted(ctx, sleepErr)
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.interrupted(ctx, ctxErr)
		}

		r.turns++
		if res := r.turn(ctx); res != nil {
			return res.outcome, res.err
		}
		if status, result, exceeded := r.checkBounds(); exceeded {
			return r.finish(ctx, status, result, "")
		}
	}
}

func (r *reactRuntime) seed() {
	r.transcript = append(r.transcript, ports.Message{Role: ports.RoleSystem, Content: buildSystemPrompt(r.task)})
	if r.options.resumed {
		r.transcript = append(r.transcript, ports.Message{
			Role:    ports.RoleUser,
			Content: buildResumePrompt(r.task, r.options.question, r.options.answer),
		})
		return
	}
	r.transcript = append(r.transcript, ports.Message{Role: ports.RoleUser, Content: startPrompt})
}

// turn performs one reasoning call and dispatches the tools it asks for.
func (r *reactRuntime) turn(ctx context.Context) *turnResult {
	ctx, span := startReactSpan(ctx, traceSpanReactIteration, r.task.ID, attribute.Int(traceAttrTurn, r.turns))
	defer span.End()

	resp, err := r.complete(ctx)
	if err != nil {
		markSpanResult(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stop(r.interrupted(ctx, ctxErr))
		}
		r.logger.Error("Task %s reasoning call failed: %v", r.task.ID, err)
		return stop(r.finish(ctx, domain.StatusError, "", "reasoning service failed: "+err.Error()))
	}

	content := strings.TrimSpace(resp.Content)
	if content != "" {
		r.lastAssistant = content
	}

	if !resp.HasToolCalls() {
		r.transcript = append(r.transcript, ports.Message{Role: ports.RoleAssistant, Content: resp.Content})
		if r.engine.completion.IsComplete(content, r.iterations) {
			markSpanResult(span, nil)
			return stop(r.finish(ctx, domain.StatusCompleted, content, ""))
		}
		r.logger.Debug("Task %s reply without tool calls at iteration %d, asking for tool use", r.task.ID, r.iterations)
		r.transcript = append(r.transcript, ports.Message{Role: ports.RoleUser, Content: correctivePrompt})
		markSpanResult(span, nil)
		return nil
	}

	calls := normalizeCalls(resp.ToolCalls)
	r.transcript = append(r.transcript, ports.Message{Role: ports.RoleAssistant, Content: resp.Content, ToolCalls: calls})
	for _, call := range calls {
		if r.iterations >= r.maxIterations {
			break
		}
		if res := r.dispatch(ctx, call); res != nil {
			markSpanResult(span, res.err)
			return res
		}
	}
	markSpanResult(span, nil)
	return nil
}

func (r *reactRuntime) complete(ctx context.Context) (*ports.CompletionResponse, error) {
	model := r.engine.llm.Model()
	ctx, span := startReactSpan(ctx, traceSpanLLMGenerate, r.task.ID, attribute.String(traceAttrModel, model))
	defer span.End()

	req := ports.CompletionRequest{
		Messages:    append([]ports.Message(nil), r.transcript...),
		Tools:       r.engine.tools.Definitions(),
		Temperature: r.engine.temperature,
		MaxTokens:   r.engine.maxTokens,
		Metadata:    map[string]any{"task_id": r.task.ID, "turn": r.turns},
	}
	started := time.Now()
	resp, err := r.engine.llm.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty completion response")
	}
	if r.engine.observer != nil {
		r.engine.observer.ObserveLLMCall(ctx, model, time.Since(started), err != nil)
	}
	markSpanResult(span, err)
	return resp, err
}

// dispatch runs one tool call, records it, and applies sentinel outcomes.
func (r *reactRuntime) dispatch(ctx context.Context, call ports.ToolCall) *turnResult {
	fingerprint := Fingerprint(call.Arguments)
	iteration := r.iterations + 1

	toolCtx, span := startReactSpan(ctx, traceSpanToolExecute, r.task.ID,
		attribute.String(traceAttrToolName, call.Name),
		attribute.Int(traceAttrIteration, iteration),
	)
	outcome := r.engine.tools.Dispatch(toolCtx, call, r.identity)
	if outcome == nil {
		outcome = ports.DomainResult{Err: "tool returned no outcome"}
	}
	if outcome.Failed() {
		markSpanResult(span, errors.New(outcome.Describe()))
	} else {
		markSpanResult(span, nil)
	}
	span.End()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return stop(r.interrupted(ctx, ctxErr))
	}

	entry := domain.ProgressEntry{
		Iteration:       iteration,
		ToolName:        call.Name,
		ArgsFingerprint: fingerprint,
		Timestamp:       r.engine.clock.Now(),
		OutcomeSummary:  outcome.Describe(),
		IsError:         outcome.Failed(),
	}
	if err := r.engine.store.AppendProgress(ctx, r.task.ID, entry); err != nil {
		if errors.Is(err, domain.ErrTaskTerminal) {
			r.logger.Warn("Task %s finished elsewhere, stopping loop", r.task.ID)
			return stop(r.reload(ctx))
		}
		return stop(r.finish(ctx, domain.StatusError, "", "failed to record progress: "+err.Error()))
	}
	r.iterations = iteration
	r.lastEntry = &entry
	r.transcript = append(r.transcript, ports.Message{
		Role:       ports.RoleTool,
		Content:    renderOutcome(outcome),
		ToolCallID: call.ID,
	})
	r.logger.Debug("Task %s iteration %d: %s -> %s", r.task.ID, iteration, call.Name, entry.OutcomeSummary)

	switch o := outcome.(type) {
	case ports.TaskComplete:
		return stop(r.finish(ctx, domain.StatusCompleted, completionResult(o), ""))
	case ports.NeedsHumanInput:
		return stop(r.suspend(ctx, o))
	case ports.DomainResult:
		if r.stuck.Observe(call.Name, fingerprint) {
			r.logger.Warn("Task %s stuck: %s repeated %d times with identical arguments", r.task.ID, call.Name, r.stuck.Streak())
			result := fmt.Sprintf("Stopped after %d identical calls to %s without progress.", r.stuck.Streak(), call.Name)
			if r.lastAssistant != "" {
				result = r.lastAssistant + "\n\n" + result
			}
			return stop(r.finish(ctx, domain.StatusStuck, result, ""))
		}
	}
	return nil
}

func (r *reactRuntime) checkBounds() (domain.Status, string, bool) {
	if r.iterations >= r.maxIterations {
		return domain.StatusMaxIterations, r.budgetResult(fmt.Sprintf("Reached the limit of %d tool calls", r.maxIterations)), true
	}
	if elapsed := r.engine.clock.Now().Sub(r.startTime); elapsed > r.engine.limits.RuntimeBudget {
		return domain.StatusTimeout, r.budgetResult(fmt.Sprintf("Ran longer than %s", r.engine.limits.RuntimeBudget)), true
	}
	if r.turns >= 2*r.maxIterations {
		return domain.StatusMaxIterations, r.budgetResult(fmt.Sprintf("Reached the limit of %d reasoning turns", r.turns)), true
	}
	return "", "", false
}

// budgetResult prefers the model's last words; otherwise it summarizes the
// last recorded action.
func (r *reactRuntime) budgetResult(reason string) string {
	if r.lastAssistant != "" {
		return r.lastAssistant
	}
	if r.lastEntry != nil {
		return fmt.Sprintf("%s. Last action: %s (%s).", reason, domain.HumanizeToolName(r.lastEntry.ToolName), r.lastEntry.OutcomeSummary)
	}
	return reason + "."
}

func (r *reactRuntime) suspend(ctx context.Context, input ports.NeedsHumanInput) (*Outcome, error) {
	req := domain.HumanInputRequest{
		Question: input.Question,
		Context:  input.Context,
		Options:  append([]string(nil), input.Options...),
		Urgency:  input.Urgency,
	}
	if err := r.engine.store.SetStatus(ctx, r.task.ID, domain.StatusAwaitingHumanInput, domain.WithPendingInput(req)); err != nil {
		return r.finish(ctx, domain.StatusError, "", "failed to suspend for human input: "+err.Error())
	}
	r.logger.Info("Task %s awaiting human input after %d iterations: %s", r.task.ID, r.iterations, input.Question)
	r.observeFinished(ctx, domain.StatusAwaitingHumanInput)
	return &Outcome{
		TaskID:     r.task.ID,
		Status:     domain.StatusAwaitingHumanInput,
		Iterations: r.iterations,
		Turns:      r.turns,
	}, nil
}

func (r *reactRuntime) interrupted(ctx context.Context, cause error) (*Outcome, error) {
	r.logger.Warn("Task %s interrupted: %v", r.task.ID, cause)
	return r.finish(ctx, domain.StatusError, r.lastAssistant, "interrupted: "+cause.Error())
}

// finish persists the terminal status. Writes survive cancellation of ctx so
// an interrupted loop still leaves a terminal record.
func (r *reactRuntime) finish(ctx context.Context, status domain.Status, result, errText string) (*Outcome, error) {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
		defer cancel()
	}

	var opts []domain.TransitionOption
	if result != "" {
		opts = append(opts, domain.WithResult(result))
	}
	if errText != "" {
		opts = append(opts, domain.WithError(errText))
	}
	if err := r.engine.store.SetStatus(writeCtx, r.task.ID, status, opts...); err != nil {
		r.logger.Error("Task %s failed to persist status %s: %v", r.task.ID, status, err)
		return nil, fmt.Errorf("persist status %s for task %s: %w", status, r.task.ID, err)
	}
	r.logger.Info("Task %s finished: status=%s iterations=%d turns=%d", r.task.ID, status, r.iterations, r.turns)
	r.observeFinished(ctx, status)

	if stored, err := r.engine.store.Get(writeCtx, r.task.ID); err == nil {
		return outcomeFromTask(stored, r.turns), nil
	}
	return &Outcome{
		TaskID:     r.task.ID,
		Status:     status,
		Result:     result,
		Error:      errText,
		Iterations: r.iterations,
		Turns:      r.turns,
	}, nil
}

func (r *reactRuntime) reload(ctx context.Context) (*Outcome, error) {
	stored, err := r.engine.store.Get(ctx, r.task.ID)
	if err != nil {
		return nil, err
	}
	return outcomeFromTask(stored, r.turns), nil
}

func (r *reactRuntime) observeFinished(ctx context.Context, status domain.Status) {
	if r.engine.observer == nil {
		return
	}
	r.engine.observer.ObserveTaskFinished(ctx, string(status), r.iterations, r.engine.clock.Now().Sub(r.startTime))
}

func normalizeCalls(calls []ports.ToolCall) []ports.ToolCall {
	out := make([]ports.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			call.ID = id.NewCallID()
		}
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		out = append(out, call)
	}
	return out
}
