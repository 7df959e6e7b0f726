package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/watchpoints/points-engine/internal/reconcile"
	"github.com/watchpoints/points-engine/pkg/logger"
)

type sweeper interface {
	SweepMatured(ctx context.Context, now time.Time) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type reconciler interface {
	Run(ctx context.Context) (reconcile.RunResult, error)
}

// SweepJobParams wires the ledger sweep jobs.
type SweepJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
	Now     func() time.Time
}

// NewMaturationJob moves POSTED credits whose holding period elapsed to AVAILABLE.
func NewMaturationJob(params SweepJobParams) (Job, error) {
	return newSweepJob("ledger-maturation", params, func(s sweeper) sweepFunc { return s.SweepMatured })
}

// NewExpirationJob forfeits AVAILABLE credits past their expires_at.
func NewExpirationJob(params SweepJobParams) (Job, error) {
	return newSweepJob("ledger-expiration", params, func(s sweeper) sweepFunc { return s.SweepExpired })
}

type sweepFunc func(ctx context.Context, now time.Time) (int, error)

func newSweepJob(name string, params SweepJobParams, pick func(sweeper) sweepFunc) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &sweepJob{
		name: name,
		logg: params.Logger,
		run:  pick(params.Sweeper),
		now:  now,
	}, nil
}

type sweepJob struct {
	name string
	logg *logger.Logger
	run  sweepFunc
	now  func() time.Time
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	count, err := j.run(ctx, now)
	if err != nil {
		return fmt.Errorf("%s after %d transitions: %w", j.name, count, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":       now,
		"transitions": count,
	})
	j.logg.Info(logCtx, "ledger sweep complete")
	return nil
}

// ReconcileJobParams wires the wallet reconciliation job.
type ReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

// NewReconcileJob checks queued and sampled wallets against the ledger.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type reconcileJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

func (j *reconcileJob) Name() string { return "wallet-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	result, err := j.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("wallet reconcile: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  result.Checked,
		"drifted":  result.Drifted,
		"repaired": result.Repaired,
	})
	if result.Drifted > 0 {
		j.logg.Warn(logCtx, "wallet drift detected during reconcile")
		return nil
	}
	j.logg.Info(logCtx, "wallet reconcile complete")
	return nil
}
