package app

import (
	"fmt"

	"github.com/watchpoints/points-engine/internal/cron"
	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/outbox"
)

// CronRegistry returns the scheduled jobs in cycle order: maturation,
// expiration, reconciliation, then outbox retention.
func (e *Engine) CronRegistry(logg *logger.Logger, dbClient *db.Client, retentionDays int) (*cron.Registry, error) {
	mature, err := cron.NewMaturationJob(cron.SweepJobParams{Logger: logg, Sweeper: e.Maturation})
	if err != nil {
		return nil, fmt.Errorf("maturation job: %w", err)
	}
	expire, err := cron.NewExpirationJob(cron.SweepJobParams{Logger: logg, Sweeper: e.Maturation})
	if err != nil {
		return nil, fmt.Errorf("expiration job: %w", err)
	}
	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{Logger: logg, Reconciler: e.Reconciler})
	if err != nil {
		return nil, fmt.Errorf("reconcile job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  retentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(mature, expire, reconcileJob, retention), nil
}
