// Package maturation moves credits through their time-driven lifecycle:
// POSTED credits become AVAILABLE after the holding period, and AVAILABLE
// credits forfeit their unspent value once they expire.
package maturation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/wallet"
	dbpkg "github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
	"github.com/watchpoints/points-engine/pkg/pagination"
)

const defaultBatchSize = 500

// Result summarizes one full sweep.
type Result struct {
	Processed int `json:"processed"`
	Expired   int `json:"expired"`
}

type ServiceParams struct {
	DB        dbpkg.TxRunner
	Ledger    ledger.Repository
	Wallets   *wallet.Service
	BatchSize int
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
}

type Service struct {
	db        dbpkg.TxRunner
	ledger    ledger.Repository
	wallets   *wallet.Service
	batchSize int
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("tx runner required")
	case params.Ledger == nil:
		return nil, errors.New("ledger repository required")
	case params.Wallets == nil:
		return nil, errors.New("wallet service required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Service{
		db:        params.DB,
		ledger:    params.Ledger,
		wallets:   params.Wallets,
		batchSize: batch,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// Sweep runs maturation and then expiration as of now.
func (s *Service) Sweep(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	var errs error

	processed, err := s.SweepMatured(ctx, now)
	result.Processed = processed
	errs = multierr.Append(errs, err)

	expired, err := s.SweepExpired(ctx, now)
	result.Expired = expired
	errs = multierr.Append(errs, err)

	return result, errs
}

// SweepMatured releases every POSTED credit whose available_at has passed.
// Entries already moved by a concurrent sweep are skipped.
func (s *Service) SweepMatured(ctx context.Context, now time.Time) (int, error) {
	return s.sweep(ctx, now, "matured", s.ledger.QueryMaturable, s.matureEntry, func(e models.LedgerEntry) time.Time {
		return *e.AvailableAt
	})
}

// SweepExpired forfeits the unallocated remainder of expired AVAILABLE credits.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return s.sweep(ctx, now, "expired", s.ledger.QueryExpirable, s.expireEntry, func(e models.LedgerEntry) time.Time {
		return *e.ExpiresAt
	})
}

type queryFunc func(ctx context.Context, cutoff time.Time, after *pagination.Cursor, limit int) ([]models.LedgerEntry, error)

type applyFunc func(ctx context.Context, entry models.LedgerEntry, now time.Time) (bool, error)

func (s *Service) sweep(ctx context.Context, now time.Time, transition string, query queryFunc, apply applyFunc, position func(models.LedgerEntry) time.Time) (int, error) {
	now = now.UTC()
	var (
		errs    error
		cursor  *pagination.Cursor
		applied int
	)
	touched := map[uuid.UUID]struct{}{}
	for {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		batch, err := query(ctx, now, cursor, s.batchSize)
		if err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		for _, entry := range batch {
			ok, err := apply(ctx, entry, now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s entry %s: %w", transition, entry.ID, err))
				continue
			}
			if ok {
				applied++
				touched[entry.UserID] = struct{}{}
			}
		}
		if len(batch) < s.batchSize {
			break
		}
		last := batch[len(batch)-1]
		cursor = &pagination.Cursor{At: position(last), ID: last.ID}
	}

	for userID := range touched {
		s.wallets.AfterCommit(ctx, userID)
	}
	s.metrics.AddTransitions(transition, applied)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transition": transition,
		"applied":    applied,
		"users":      len(touched),
	})
	if errs != nil {
		s.logg.Error(logCtx, "sweep finished with errors", errs)
	} else {
		s.logg.Info(logCtx, "sweep finished")
	}
	return applied, errs
}

func (s *Service) matureEntry(ctx context.Context, entry models.LedgerEntry, now time.Time) (bool, error) {
	var moved bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerTx := s.ledger.WithTx(tx)
		ok, err := ledgerTx.TransitionStatus(ctx, entry.ID, enums.LedgerStatusPosted, enums.LedgerStatusAvailable)
		if err != nil || !ok {
			return err
		}
		related := entry.ID
		if _, err := ledgerTx.Append(ctx, &models.LedgerEntry{
			UserID:         entry.UserID,
			Kind:           enums.LedgerKindMature,
			Points:         entry.Points,
			Status:         enums.LedgerStatusAvailable,
			RelatedEntryID: &related,
			PostedAt:       now,
		}); err != nil {
			return err
		}
		if _, err := s.wallets.Repository().WithTx(tx).ApplyDelta(ctx, entry.UserID, wallet.Delta{
			Pending:   -entry.Points,
			Available: entry.Points,
		}); err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

func (s *Service) expireEntry(ctx context.Context, entry models.LedgerEntry, now time.Time) (bool, error) {
	var moved bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallets := s.wallets.Repository().WithTx(tx)
		if _, err := wallets.Lock(ctx, entry.UserID); err != nil {
			return err
		}
		ledgerTx := s.ledger.WithTx(tx)
		ok, err := ledgerTx.TransitionStatus(ctx, entry.ID, enums.LedgerStatusAvailable, enums.LedgerStatusExpired)
		if err != nil || !ok {
			return err
		}
		moved = true

		allocated, err := ledgerTx.AllocatedPoints(ctx, entry.ID)
		if err != nil {
			return err
		}
		remaining := entry.Points - allocated[entry.ID]
		if remaining <= 0 {
			return nil
		}
		related := entry.ID
		if _, err := ledgerTx.Append(ctx, &models.LedgerEntry{
			UserID:         entry.UserID,
			Kind:           enums.LedgerKindExpire,
			Points:         -remaining,
			Status:         enums.LedgerStatusExpired,
			RelatedEntryID: &related,
			PostedAt:       now,
		}); err != nil {
			return err
		}
		_, err = wallets.ApplyDelta(ctx, entry.UserID, wallet.Delta{Available: -remaining})
		return err
	})
	if dbpkg.IsCheckViolation(err) {
		// the projection holds less than the ledger says; only a rebuild unblocks this entry
		s.metrics.IncDrift()
		s.logg.Warn(s.logg.WithUserID(ctx, entry.UserID.String()), "expiry would drive available balance negative; queued for reconciliation")
		s.wallets.QueueReconcile(ctx, entry.UserID)
	}
	if err != nil {
		return false, err
	}
	return moved, nil
}
