// Package redemptions converts available points into payout requests and
// settles them once the payout provider reports back.
package redemptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/config"
	dbpkg "github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
	"github.com/watchpoints/points-engine/pkg/outbox"
	"github.com/watchpoints/points-engine/pkg/outbox/payloads"
)

const (
	defaultTimeout = 5 * time.Second
	maxKeyLength   = 128

	outcomeRequested    = "requested"
	outcomeInsufficient = "insufficient"
	outcomeDuplicate    = "duplicate"
	outcomeCompleted    = "completed"
	outcomeReversed     = "reversed"
	outcomeFailed       = "failed"
)

var errLedgerShortfall = errors.New("ledger credits do not cover the wallet balance")

// RedeemInput is a user's request to cash out points.
type RedeemInput struct {
	UserID         uuid.UUID
	Points         int64
	Method         string
	Destination    string
	IdempotencyKey string
}

type ServiceParams struct {
	DB      dbpkg.TxRunner
	Repo    Repository
	Ledger  ledger.Repository
	Wallets *wallet.Service
	Outbox  outbox.Emitter
	Config  config.LedgerConfig
	Timeout time.Duration
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type Service struct {
	db      dbpkg.TxRunner
	repo    Repository
	ledger  ledger.Repository
	wallets *wallet.Service
	outbox  outbox.Emitter
	cfg     config.LedgerConfig
	timeout time.Duration
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("tx runner required")
	case params.Repo == nil:
		return nil, errors.New("redemption repository required")
	case params.Ledger == nil:
		return nil, errors.New("ledger repository required")
	case params.Wallets == nil:
		return nil, errors.New("wallet service required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:      params.DB,
		repo:    params.Repo,
		ledger:  params.Ledger,
		wallets: params.Wallets,
		outbox:  params.Outbox,
		cfg:     params.Config,
		timeout: timeout,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Redeem debits available points, allocates them to the oldest-expiring
// credits and records a PENDING payout request, all in one transaction.
func (s *Service) Redeem(ctx context.Context, input RedeemInput) (*models.RedemptionRequest, error) {
	method, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		existing, err := s.findByKey(ctx, input.UserID, key)
		if err != nil || existing != nil {
			return existing, s.deadline(ctx, err)
		}
	}

	view, err := s.wallets.Get(ctx, input.UserID)
	if err != nil {
		return nil, s.deadline(ctx, err)
	}
	if view.AvailablePoints < input.Points {
		s.metrics.IncRedemption(outcomeInsufficient)
		return nil, insufficient()
	}

	now := s.now().UTC()
	req := &models.RedemptionRequest{
		UserID:          input.UserID,
		PointsRequested: input.Points,
		Method:          method,
		Destination:     strings.TrimSpace(input.Destination),
		Status:          enums.RedemptionStatusPending,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.wallets.Repository().WithTx(tx).DebitAvailable(ctx, input.UserID, input.Points); err != nil {
			return err
		}
		ledgerTx := s.ledger.WithTx(tx)
		spendable, err := ledgerTx.ListSpendable(ctx, input.UserID)
		if err != nil {
			return err
		}
		plan, ok := allocate(spendable, input.Points)
		if !ok {
			return errLedgerShortfall
		}
		if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
			return err
		}

		redeem := &models.LedgerEntry{
			UserID:       input.UserID,
			Kind:         enums.LedgerKindRedeem,
			Points:       -input.Points,
			Status:       enums.LedgerStatusRedeemed,
			RedemptionID: &req.ID,
			PostedAt:     now,
		}
		if key != "" {
			redeem.IdempotencyKey = &key
		}
		if _, err := ledgerTx.Append(ctx, redeem); err != nil {
			return err
		}

		allocations := make([]models.LedgerAllocation, 0, len(plan))
		for _, step := range plan {
			allocations = append(allocations, models.LedgerAllocation{
				UserID:        input.UserID,
				RedemptionID:  req.ID,
				RedeemEntryID: redeem.ID,
				CreditEntryID: step.creditID,
				Points:        step.points,
			})
			if !step.exhausts {
				continue
			}
			moved, err := ledgerTx.TransitionStatus(ctx, step.creditID, enums.LedgerStatusAvailable, enums.LedgerStatusRedeemed)
			if err != nil {
				return err
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeConflict, "credit changed during redemption; retry")
			}
		}
		if err := ledgerTx.AppendAllocations(ctx, allocations); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRedemptionRequested,
			AggregateType: enums.AggregateRedemption,
			AggregateID:   req.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleUser},
			OccurredAt:    now,
			Data: payloads.RedemptionRequestedEvent{
				RedemptionID:    req.ID,
				UserID:          input.UserID,
				PointsRequested: input.Points,
				Method:          method,
				Destination:     req.Destination,
				RequestedAt:     now,
			},
		})
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateEntry):
		existing, findErr := s.findByKey(ctx, input.UserID, key)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "redemption already recorded")
	case errors.Is(err, errLedgerShortfall):
		s.metrics.IncRedemption(outcomeInsufficient)
		s.metrics.IncDrift()
		s.logg.Error(ctx, "wallet available balance exceeds spendable ledger credits", err)
		s.wallets.QueueReconcile(ctx, input.UserID)
		return nil, insufficient()
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance):
		s.metrics.IncRedemption(outcomeInsufficient)
		return nil, err
	case err != nil:
		s.metrics.IncRedemption(outcomeFailed)
		return nil, s.deadline(ctx, err)
	}

	s.wallets.AfterCommit(ctx, input.UserID)
	s.metrics.IncRedemption(outcomeRequested)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"redemption_id": req.ID.String(),
		"points":        input.Points,
	}), "redemption requested")
	return req, nil
}

// MarkProcessing records that the payout provider accepted the request.
func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error) {
	ok, err := s.repo.UpdateStatus(ctx, id, []enums.RedemptionStatus{enums.RedemptionStatusPending}, enums.RedemptionStatusProcessing, nil)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && req.Status == enums.RedemptionStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "redemption changed concurrently; retry")
	}
	return req, nil
}

// Complete settles the request as paid. Completing an already completed
// request returns it unchanged.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, providerReference string) (*models.RedemptionRequest, error) {
	now := s.now().UTC()
	var (
		result    *models.RedemptionRequest
		completed bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		req, err := repoTx.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if done, err := settled(req, enums.RedemptionStatusSuccess); done || err != nil {
			result = req
			return err
		}
		fields := map[string]any{"completed_at": now}
		if ref := strings.TrimSpace(providerReference); ref != "" {
			fields["provider_reference"] = ref
		}
		if _, err := repoTx.UpdateStatus(ctx, id, openStatuses, enums.RedemptionStatusSuccess, fields); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRedemptionCompleted,
			AggregateType: enums.AggregateRedemption,
			AggregateID:   id,
			OccurredAt:    now,
			Data: payloads.RedemptionCompletedEvent{
				RedemptionID:      id,
				UserID:            req.UserID,
				PointsRedeemed:    req.PointsRequested,
				ProviderReference: strings.TrimSpace(providerReference),
				CompletedAt:       now,
			},
		}); err != nil {
			return err
		}
		completed = true
		result, err = repoTx.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if completed {
		s.metrics.IncRedemption(outcomeCompleted)
	}
	return result, nil
}

// Fail marks the payout failed and returns the points as a fresh AVAILABLE
// REVERSE credit. Failing an already failed request returns it unchanged.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.RedemptionRequest, error) {
	now := s.now().UTC()
	var (
		result   *models.RedemptionRequest
		reversed bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		req, err := repoTx.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if done, err := settled(req, enums.RedemptionStatusFailed); done || err != nil {
			result = req
			return err
		}
		wallets := s.wallets.Repository().WithTx(tx)
		if _, err := wallets.Lock(ctx, req.UserID); err != nil {
			return err
		}

		fields := map[string]any{"completed_at": now}
		if r := strings.TrimSpace(reason); r != "" {
			fields["failure_reason"] = r
		}
		if _, err := repoTx.UpdateStatus(ctx, id, openStatuses, enums.RedemptionStatusFailed, fields); err != nil {
			return err
		}

		expiresAt := now.Add(s.cfg.ExpiryWindow)
		reverseKey := "reverse:" + id.String()
		reverse := &models.LedgerEntry{
			UserID:         req.UserID,
			Kind:           enums.LedgerKindReverse,
			Points:         req.PointsRequested,
			Status:         enums.LedgerStatusAvailable,
			RedemptionID:   &req.ID,
			IdempotencyKey: &reverseKey,
			PostedAt:       now,
			AvailableAt:    &now,
			ExpiresAt:      &expiresAt,
		}
		if _, err := s.ledger.WithTx(tx).Append(ctx, reverse); err != nil {
			return err
		}
		if _, err := wallets.ApplyDelta(ctx, req.UserID, wallet.Delta{
			Available: req.PointsRequested,
			Redeemed:  -req.PointsRequested,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRedemptionReversed,
			AggregateType: enums.AggregateRedemption,
			AggregateID:   id,
			OccurredAt:    now,
			Data: payloads.RedemptionReversedEvent{
				RedemptionID:   id,
				UserID:         req.UserID,
				PointsReturned: req.PointsRequested,
				ReverseEntryID: reverse.ID,
				Reason:         strings.TrimSpace(reason),
				ReversedAt:     now,
			},
		}); err != nil {
			return err
		}
		reversed = true
		result, err = repoTx.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reversed {
		s.wallets.AfterCommit(ctx, result.UserID)
		s.metrics.IncRedemption(outcomeReversed)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"redemption_id": id.String(),
			"user_id":       result.UserID.String(),
			"points":        result.PointsRequested,
		}), "redemption reversed")
	}
	return result, nil
}

// Get returns a request owned by userID.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.RedemptionRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "redemption request not found")
	}
	return req, nil
}

// GetByID returns any request; used by operators.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error) {
	return s.repo.FindByID(ctx, id)
}

// List pages a user's requests newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]models.RedemptionRequest, string, error) {
	return s.repo.ListByUser(ctx, userID, filter)
}

var openStatuses = []enums.RedemptionStatus{enums.RedemptionStatusPending, enums.RedemptionStatusProcessing}

// settled reports whether req already reached a terminal state. Reaching the
// wanted state again is a no-op; the opposite terminal state is a conflict.
func settled(req *models.RedemptionRequest, want enums.RedemptionStatus) (bool, error) {
	if !req.Status.IsTerminal() {
		return false, nil
	}
	if req.Status == want {
		return true, nil
	}
	return true, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("redemption already %s", req.Status))
}

type allocationStep struct {
	creditID uuid.UUID
	points   int64
	exhausts bool
}

// allocate consumes spendable credits in order until points are covered.
func allocate(spendable []ledger.Spendable, points int64) ([]allocationStep, bool) {
	need := points
	plan := make([]allocationStep, 0, len(spendable))
	for _, credit := range spendable {
		if need == 0 {
			break
		}
		take := min(credit.Remaining, need)
		plan = append(plan, allocationStep{
			creditID: credit.Entry.ID,
			points:   take,
			exhausts: take == credit.Remaining,
		})
		need -= take
	}
	return plan, need == 0
}

func (s *Service) findByKey(ctx context.Context, userID uuid.UUID, key string) (*models.RedemptionRequest, error) {
	entry, err := s.ledger.FindByIdempotencyKey(ctx, userID, enums.LedgerKindRedeem, key)
	if err != nil || entry == nil || entry.RedemptionID == nil {
		return nil, err
	}
	s.metrics.IncRedemption(outcomeDuplicate)
	return s.repo.FindByID(ctx, *entry.RedemptionID)
}

func (s *Service) validate(input RedeemInput) (enums.RedemptionMethod, error) {
	if input.UserID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	minimum := s.cfg.MinRedemption
	if minimum <= 0 {
		minimum = 1
	}
	if input.Points < minimum {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("minimum redemption is %d points", minimum)).
			WithDetails(map[string]any{"minimum": minimum})
	}
	method, err := enums.ParseRedemptionMethod(strings.ToLower(strings.TrimSpace(input.Method)))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported redemption method")
	}
	if len(input.IdempotencyKey) > maxKeyLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("idempotency key exceeds %d characters", maxKeyLength))
	}
	return method, nil
}

func (s *Service) deadline(ctx context.Context, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "outcome unknown; retry with the same idempotency key")
	}
	return err
}

func insufficient() error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient available points")
}
