package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"counsel/internal/domain/agent/react"
	domain "counsel/internal/domain/task"
	"counsel/internal/shared/async"
	"counsel/internal/shared/logging"
	id "counsel/internal/shared/utils/id"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentTasks bounds loops running at once.
const DefaultMaxConcurrentTasks = 16

var (
	// ErrShuttingDown is returned by Launch once Shutdown has begun, and by
	// Shutdown when loops outlive its deadline.
	ErrShuttingDown = errors.New("launcher shutting down")
	// ErrTaskBusy is returned by Launch while a loop for the task is still
	// in flight.
	ErrTaskBusy = errors.New("task loop still running")
)

// Runner executes one agent loop.
type Runner interface {
	Run(ctx context.Context, taskID string, opts ...react.RunOption) (*react.Outcome, error)
}

// Launcher runs agent loops in the background, detached from the request
// that started them. Tasks waiting for a slot stay pending.
type Launcher struct {
	runner Runner
	store  domain.Store
	sem    *semaphore.Weighted
	logger logging.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
	closed  bool
}

// NewLauncher creates a launcher allowing maxConcurrent loops at once.
func NewLauncher(runner Runner, store domain.Store, maxConcurrent int, logger logging.Logger) *Launcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTasks
	}
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Launcher")
	}
	root, cancel := context.WithCancel(context.Background())
	return &Launcher{
		runner:  runner,
		store:   store,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:  logger,
		root:    root,
		cancel:  cancel,
		running: make(map[string]struct{}),
	}
}

// Launch starts the loop for taskID. The loop keeps the log id of reqCtx but
// is cancelled only by Shutdown. Nothing is started when the launcher is shut
// down (ErrShuttingDown) or the task still has a loop (ErrTaskBusy).
func (l *Launcher) Launch(reqCtx context.Context, taskID string, opts ...react.RunOption) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Warn("Launch of task %s refused: launcher is shut down", taskID)
		return ErrShuttingDown
	}
	if _, busy := l.running[taskID]; busy {
		l.mu.Unlock()
		return ErrTaskBusy
	}
	l.running[taskID] = struct{}{}
	l.wg.Add(1)
	l.mu.Unlock()

	ctx := id.WithTaskID(l.root, taskID)
	if logID := id.LogIDFromContext(reqCtx); logID != "" {
		ctx = id.WithLogID(ctx, logID)
	}
	if ownerID := id.OwnerIDFromContext(reqCtx); ownerID != "" {
		ctx = id.WithOwnerID(ctx, ownerID)
	}
	logger := logging.FromContext(ctx, l.logger)

	var (
		once     sync.Once
		acquired bool
	)
	release := func() {
		once.Do(func() {
			if acquired {
				l.sem.Release(1)
			}
			l.mu.Lock()
			delete(l.running, taskID)
			l.mu.Unlock()
			l.wg.Done()
		})
	}

	async.GoWithPanicHandler(logger, "task-loop-"+taskID, func() {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			logger.Warn("Task %s not started: %v", taskID, err)
			release()
			return
		}
		acquired = true

		started := time.Now()
		outcome, err := l.runner.Run(ctx, taskID, opts...)
		if err != nil {
			logger.Error("Task %s loop failed: %v", taskID, err)
			l.markFailed(taskID, fmt.Sprintf("internal error: %v", err))
			release()
			return
		}
		release()
		logger.Info("Task %s finished with %s after %d iteration(s) in %s", taskID, outcome.Status, outcome.Iterations, time.Since(started).Round(time.Millisecond))
	}, func(recovered any) {
		l.markFailed(taskID, fmt.Sprintf("internal error: panic: %v", recovered))
		release()
	})
	return nil
}

// markFailed records a loop failure the loop itself could not persist.
func (l *Launcher) markFailed(taskID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.SetStatus(ctx, taskID, domain.StatusError, domain.WithError(reason)); err != nil {
		l.logger.Error("Failed to mark task %s as error: %v", taskID, err)
	}
}

// Running reports how many loops are in flight or queued.
func (l *Launcher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Shutdown cancels every loop and waits for them until ctx is done.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d loop(s) still running: %v", ErrShuttingDown, l.Running(), ctx.Err())
	}
}
