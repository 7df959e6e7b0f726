// Package reconcile compares wallet projections with balances derived from
// the ledger and repairs projections that drifted.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
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
	"github.com/watchpoints/points-engine/pkg/outbox"
	"github.com/watchpoints/points-engine/pkg/outbox/payloads"
	"github.com/watchpoints/points-engine/pkg/redis"
)

const defaultSampleSize = 200

// Queue supplies users flagged by writers whose cache invalidation failed.
// Users that fail to reconcile are put back for the next pass.
type Queue interface {
	Enqueue(ctx context.Context, queue string, members ...string) error
	Dequeue(ctx context.Context, queue string, n int64) ([]string, error)
}

// Report is the outcome of reconciling one wallet.
type Report struct {
	UserID   uuid.UUID               `json:"userId"`
	InSync   bool                    `json:"inSync"`
	Stored   payloads.WalletBalances `json:"stored"`
	Derived  payloads.WalletBalances `json:"derived"`
	Repaired bool                    `json:"repaired"`
}

// RunResult summarizes a reconciliation pass.
type RunResult struct {
	Checked  int `json:"checked"`
	Drifted  int `json:"drifted"`
	Repaired int `json:"repaired"`
}

type ServiceParams struct {
	DB         dbpkg.TxRunner
	Ledger     ledger.Repository
	Wallets    *wallet.Service
	Outbox     outbox.Emitter
	Queue      Queue
	SampleSize int
	AutoRepair bool
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type Service struct {
	db         dbpkg.TxRunner
	ledger     ledger.Repository
	wallets    *wallet.Service
	outbox     outbox.Emitter
	queue      Queue
	sampleSize int
	autoRepair bool
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
	now        func() time.Time

	mu     sync.Mutex
	cursor uuid.UUID
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("tx runner required")
	case params.Ledger == nil:
		return nil, errors.New("ledger repository required")
	case params.Wallets == nil:
		return nil, errors.New("wallet service required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	}
	sample := params.SampleSize
	if sample <= 0 {
		sample = defaultSampleSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:         params.DB,
		ledger:     params.Ledger,
		wallets:    params.Wallets,
		outbox:     params.Outbox,
		queue:      params.Queue,
		sampleSize: sample,
		autoRepair: params.AutoRepair,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        now,
	}, nil
}

// Check compares the stored projection with the ledger without writing.
func (s *Service) Check(ctx context.Context, userID uuid.UUID) (Report, error) {
	derived, err := s.ledger.Balances(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	stored, err := s.wallets.Repository().Get(ctx, userID)
	if err != nil && !wallet.IsNotFound(err) {
		return Report{}, err
	}
	return compare(userID, stored, derived), nil
}

// Rebuild recomputes the wallet from the ledger and replaces it when it drifted.
func (s *Service) Rebuild(ctx context.Context, userID uuid.UUID) (Report, error) {
	return s.reconcileUser(ctx, userID, true)
}

// Run reconciles queued users first, then a rolling batch of active wallets.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	var (
		result RunResult
		errs   error
	)
	users, err := s.candidates(ctx)
	errs = multierr.Append(errs, err)

	var retry []string
	for i, userID := range users {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			for _, rest := range users[i:] {
				retry = append(retry, rest.String())
			}
			break
		}
		report, err := s.reconcileUser(ctx, userID, s.autoRepair)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", userID, err))
			retry = append(retry, userID.String())
			continue
		}
		result.Checked++
		if !report.InSync {
			result.Drifted++
		}
		if report.Repaired {
			result.Repaired++
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checked":  result.Checked,
		"drifted":  result.Drifted,
		"repaired": result.Repaired,
		"retried":  len(retry),
	}), "reconciliation pass finished")
	return result, multierr.Append(errs, s.requeue(ctx, retry))
}

func (s *Service) requeue(ctx context.Context, users []string) error {
	if s.queue == nil || len(users) == 0 {
		return nil
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), redis.ReconcileQueue, users...); err != nil {
		return fmt.Errorf("requeue %d reconcile candidates: %w", len(users), err)
	}
	return nil
}

func (s *Service) candidates(ctx context.Context) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	var errs error
	if s.queue != nil {
		queued, err := s.queue.Dequeue(ctx, redis.ReconcileQueue, int64(s.sampleSize))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dequeue reconcile candidates: %w", err))
		}
		for _, raw := range queued {
			if id, err := uuid.Parse(raw); err == nil {
				add(id)
			}
		}
	}

	s.mu.Lock()
	after := s.cursor
	s.mu.Unlock()
	batch, err := s.wallets.Repository().List(ctx, after, s.sampleSize)
	if err != nil {
		return out, multierr.Append(errs, err)
	}
	next := uuid.Nil
	if len(batch) == s.sampleSize {
		next = batch[len(batch)-1].UserID
	}
	s.mu.Lock()
	s.cursor = next
	s.mu.Unlock()
	for _, w := range batch {
		add(w.UserID)
	}
	return out, errs
}

func (s *Service) reconcileUser(ctx context.Context, userID uuid.UUID, repair bool) (Report, error) {
	var report Report
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallets := s.wallets.Repository().WithTx(tx)
		stored, err := wallets.Lock(ctx, userID)
		if err != nil {
			return err
		}
		derived, err := s.ledger.WithTx(tx).Balances(ctx, userID)
		if err != nil {
			return err
		}
		report = compare(userID, stored, derived)
		if report.InSync {
			return nil
		}
		if repair {
			if _, err := wallets.Replace(ctx, userID, derived); err != nil {
				return err
			}
			report.Repaired = true
		}
		now := s.now().UTC()
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletDriftDetected,
			AggregateType: enums.AggregateWallet,
			AggregateID:   userID,
			OccurredAt:    now,
			Data: payloads.WalletDriftDetectedEvent{
				UserID:     userID,
				Stored:     report.Stored,
				Derived:    report.Derived,
				Repaired:   report.Repaired,
				DetectedAt: now,
			},
		})
	})
	if err != nil {
		return Report{}, err
	}
	if !report.InSync {
		s.metrics.IncDrift()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id":           userID.String(),
			"stored_available":  report.Stored.AvailablePoints,
			"derived_available": report.Derived.AvailablePoints,
			"stored_pending":    report.Stored.PendingPoints,
			"derived_pending":   report.Derived.PendingPoints,
			"repaired":          report.Repaired,
		}), "wallet drift detected")
	}
	if report.Repaired {
		s.wallets.AfterCommit(ctx, userID)
	}
	return report, nil
}

func compare(userID uuid.UUID, stored *models.Wallet, derived ledger.Balances) Report {
	report := Report{
		UserID: userID,
		Derived: payloads.WalletBalances{
			PendingPoints:   derived.Pending,
			AvailablePoints: derived.Available,
			TotalEarned:     derived.TotalEarned,
			TotalRedeemed:   derived.TotalRedeemed,
		},
	}
	if stored != nil {
		report.Stored = payloads.WalletBalances{
			PendingPoints:   stored.PendingPoints,
			AvailablePoints: stored.AvailablePoints,
			TotalEarned:     stored.TotalEarned,
			TotalRedeemed:   stored.TotalRedeemed,
		}
	}
	report.InSync = report.Stored == report.Derived
	return report
}
