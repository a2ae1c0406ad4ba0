package coordinator

import (
	"context"
	"time"

	"counsel/internal/shared/logging"
)

// Limits bound what callers may submit and how loops are sized.
type Limits struct {
	MaxIterationsCap      int
	DefaultEstimatedSteps int
	MaxGoalLength         int
	MaxPlanSteps          int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxIterationsCap:      50,
		DefaultEstimatedSteps: 5,
		MaxGoalLength:         4000,
		MaxPlanSteps:          50,
	}
}

// Option configures optional dependencies of the Service.
type Option func(*Service)

// WithLogger overrides the default service logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if !logging.IsNil(logger) {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for projections.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLimits overrides the default request limits.
func WithLimits(limits Limits) Option {
	return func(s *Service) {
		defaults := DefaultLimits()
		if limits.MaxIterationsCap <= 0 {
			limits.MaxIterationsCap = defaults.MaxIterationsCap
		}
		if limits.DefaultEstimatedSteps <= 0 {
			limits.DefaultEstimatedSteps = defaults.DefaultEstimatedSteps
		}
		if limits.MaxGoalLength <= 0 {
			limits.MaxGoalLength = defaults.MaxGoalLength
		}
		if limits.MaxPlanSteps <= 0 {
			limits.MaxPlanSteps = defaults.MaxPlanSteps
		}
		s.limits = limits
	}
}

// CreationObserver is notified of every accepted task.
type CreationObserver interface {
	ObserveTaskCreated(ctx context.Context)
}

// WithCreationObserver records task submissions.
func WithCreationObserver(observer CreationObserver) Option {
	return func(s *Service) {
		s.observer = observer
	}
}
