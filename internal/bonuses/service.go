// Package bonuses grants administrative BONUS credits.
package bonuses

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

const maxGrantPoints = 1_000_000

// GrantInput describes one bonus credit.
type GrantInput struct {
	UserID         uuid.UUID
	Points         int64
	Reason         string
	IdempotencyKey string
	GrantedBy      uuid.UUID
}

// GrantResult reports the credited entry. Duplicate is set when the key was already used.
type GrantResult struct {
	Entry     *models.LedgerEntry
	Duplicate bool
}

type ServiceParams struct {
	DB      dbpkg.TxRunner
	Ledger  ledger.Repository
	Wallets *wallet.Service
	Outbox  outbox.Emitter
	Config  config.LedgerConfig
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type Service struct {
	db      dbpkg.TxRunner
	ledger  ledger.Repository
	wallets *wallet.Service
	outbox  outbox.Emitter
	cfg     config.LedgerConfig
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
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
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:      params.DB,
		ledger:  params.Ledger,
		wallets: params.Wallets,
		outbox:  params.Outbox,
		cfg:     params.Config,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Grant appends a BONUS credit that is spendable immediately and expires
// after the configured window.
func (s *Service) Grant(ctx context.Context, input GrantInput) (GrantResult, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	switch {
	case input.UserID == uuid.Nil:
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	case input.Points <= 0 || input.Points > maxGrantPoints:
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("bonus points must be between 1 and %d", maxGrantPoints))
	case key == "":
		return GrantResult{}, pkgerrors.New(pkgerrors.CodeIdempotencyRequired, "idempotency key is required")
	}

	if existing, err := s.ledger.FindByIdempotencyKey(ctx, input.UserID, enums.LedgerKindBonus, key); err != nil || existing != nil {
		return GrantResult{Entry: existing, Duplicate: existing != nil}, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.ExpiryWindow)
	entry := &models.LedgerEntry{
		UserID:         input.UserID,
		Kind:           enums.LedgerKindBonus,
		Points:         input.Points,
		Status:         enums.LedgerStatusAvailable,
		IdempotencyKey: &key,
		PostedAt:       now,
		AvailableAt:    &now,
		ExpiresAt:      &expiresAt,
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}
		if _, err := s.wallets.Repository().WithTx(tx).ApplyDelta(ctx, input.UserID, wallet.Delta{
			Available: input.Points,
			Earned:    input.Points,
		}); err != nil {
			return err
		}
		var actor *outbox.ActorRef
		if input.GrantedBy != uuid.Nil {
			actor = &outbox.ActorRef{UserID: input.GrantedBy, Role: enums.RoleAdmin}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBonusGranted,
			AggregateType: enums.AggregateLedger,
			AggregateID:   entry.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.BonusGrantedEvent{
				EntryID:   entry.ID,
				UserID:    input.UserID,
				Points:    input.Points,
				Reason:    strings.TrimSpace(input.Reason),
				GrantedBy: input.GrantedBy,
				GrantedAt: now,
			},
		})
	})
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		existing, findErr := s.ledger.FindByIdempotencyKey(ctx, input.UserID, enums.LedgerKindBonus, key)
		if findErr != nil {
			return GrantResult{}, findErr
		}
		return GrantResult{Entry: existing, Duplicate: true}, nil
	}
	if err != nil {
		return GrantResult{}, err
	}

	s.wallets.AfterCommit(ctx, input.UserID)
	s.metrics.AddCredited(string(enums.LedgerKindBonus), input.Points)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":  input.UserID.String(),
		"entry_id": entry.ID.String(),
		"points":   input.Points,
	}), "bonus granted")
	return GrantResult{Entry: entry}, nil
}
