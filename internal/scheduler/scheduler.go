// Package scheduler runs periodic housekeeping jobs against the task store.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "counsel/internal/domain/task"
	"counsel/internal/shared/logging"

	"github.com/robfig/cron/v3"
)

// RetentionJobName is the name of the job that deletes old finished tasks.
const RetentionJobName = "task-retention"

// Config holds scheduler configuration.
type Config struct {
	Enabled bool
	// Schedule is a five-field cron expression.
	Schedule string
	// MaxAge is how long a finished task is kept.
	MaxAge            time.Duration
	JobTimeout        time.Duration
	ConcurrencyPolicy string
}

// Scheduler manages housekeeping jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	store    domain.Store
	config   Config
	logger   logging.Logger
	now      func() time.Time
	mu       sync.Mutex
	entryIDs map[string]cron.EntryID // job name → cron entry
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a new Scheduler.
func New(cfg Config, store domain.Store, logger logging.Logger) *Scheduler {
	logger = logging.OrNop(logger)
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	return &Scheduler{
		cron:     newCron(cfg, logger),
		store:    store,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		entryIDs: make(map[string]cron.EntryID),
		stopped:  make(chan struct{}),
	}
}

func newCron(cfg Config, logger logging.Logger) *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	options := []cron.Option{cron.WithParser(parser)}
	policy := strings.ToLower(strings.TrimSpace(cfg.ConcurrencyPolicy))
	var wrapper cron.JobWrapper
	switch policy {
	case "delay":
		wrapper = cron.DelayIfStillRunning(cron.DefaultLogger)
	case "skip", "":
		wrapper = cron.SkipIfStillRunning(cron.DefaultLogger)
	default:
		logger.Warn("Scheduler: unknown concurrency policy %q, defaulting to skip", policy)
		wrapper = cron.SkipIfStillRunning(cron.DefaultLogger)
	}
	options = append(options, cron.WithChain(wrapper))
	return cron.New(options...)
}

// Start registers the housekeeping jobs and starts the cron scheduler. It
// stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler disabled by config")
		return nil
	}
	if s.config.MaxAge <= 0 {
		return fmt.Errorf("retention max age must be positive, got %s", s.config.MaxAge)
	}

	s.mu.Lock()
	err := s.registerJob(RetentionJobName, s.config.Schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
		defer cancel()
		if _, err := s.RunRetention(jobCtx); err != nil {
			s.logger.Warn("Scheduler: retention run failed: %v", err)
		}
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started with %d job(s)", s.JobCount())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunRetention deletes finished tasks older than the configured max age.
func (s *Scheduler) RunRetention(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.MaxAge)
	deleted, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Scheduler: deleted %d task(s) finished before %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

// Stop gracefully stops the scheduler. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Scheduler stopping...")
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
		s.logger.Info("Scheduler stopped")
	})
}

// Done returns a channel that is closed when the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// registerJob adds a named job. Must be called with s.mu held.
func (s *Scheduler) registerJob(name, schedule string, fn func()) error {
	if _, exists := s.entryIDs[name]; exists {
		return nil
	}
	if strings.TrimSpace(schedule) == "" {
		return fmt.Errorf("job %q has no schedule", name)
	}
	entryID, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression for %q: %w", name, err)
	}
	s.entryIDs[name] = entryID
	s.logger.Info("Scheduler: registered job %q (schedule=%s)", name, schedule)
	return nil
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entryIDs)
}
