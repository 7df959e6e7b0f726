package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds each job. Zero leaves jobs bounded only by the
	// cycle context.
	JobTimeout time.Duration
}

// Service runs the registered jobs on a fixed cadence. Only the replica
// holding the lock runs a cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// JobResult is the outcome of one job in a cycle.
type JobResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Cycle reports a RunOnce call. Ran is false when another replica held
// the lock.
type Cycle struct {
	Ran     bool
	Started time.Time
	Results []JobResult
}

// Failed lists results whose job returned an error.
func (c Cycle) Failed() []JobResult {
	var failed []JobResult
	for _, res := range c.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	case params.JobTimeout < 0:
		return nil, errors.New("job timeout must not be negative")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run executes a cycle immediately, then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one cycle under the lock, renewing it after every job. A
// failing job is recorded and the cycle moves on to the next one; only lock
// errors and cancellation abort the cycle.
func (s *Service) RunOnce(ctx context.Context) (Cycle, error) {
	cycle := Cycle{Started: s.now()}
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return cycle, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron.cycle_skipped")
		s.metrics.IncSkipped()
		return cycle, nil
	}
	cycle.Ran = true
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return cycle, err
		}
		cycle.Results = append(cycle.Results, s.runJob(ctx, job))

		held, err := s.lock.Extend(ctx)
		if err != nil {
			return cycle, fmt.Errorf("lock extend: %w", err)
		}
		if !held {
			s.logg.Warn(s.logg.WithField(ctx, "job", job.Name()), "cron.lock_lost")
			return cycle, ErrLockLost
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(cycle.Results),
		"failed": len(cycle.Failed()),
	}), "cron.cycle_complete")
	return cycle, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (res JobResult) {
	res.Name = job.Name()
	jobCtx := s.logg.WithField(ctx, "job", res.Name)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("job %s panicked: %v", res.Name, r)
		}
		res.Duration = s.now().Sub(start)
		s.metrics.ObserveDuration(res.Name, res.Duration)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", res.Duration.Milliseconds())
		if res.Err != nil {
			s.metrics.IncFailure(res.Name)
			s.logg.Error(logCtx, "cron.job_failed", res.Err)
			return
		}
		s.metrics.IncSuccess(res.Name)
		s.logg.Info(logCtx, "cron.job_completed")
	}()

	res.Err = job.Run(jobCtx)
	return res
}
