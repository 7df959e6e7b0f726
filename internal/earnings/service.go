// Package earnings turns watch events into pending EARN credits.
package earnings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/rates"
	"github.com/watchpoints/points-engine/internal/tiers"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/config"
	dbpkg "github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
)

const (
	dedupeScope    = "watch"
	defaultTimeout = 5 * time.Second

	outcomeCredited     = "credited"
	outcomeDuplicate    = "duplicate"
	outcomeBelowMinimum = "below_minimum"
	outcomeFailed       = "failed"
)

// DefaultMaxWatchSeconds caps a single reported session at one day.
const DefaultMaxWatchSeconds int64 = 86400

// Store is the redis surface backing the dedupe window.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	DedupeKey(scope, userID, token string) string
}

// WatchInput is one completed viewing session reported by the client.
type WatchInput struct {
	UserID               uuid.UUID
	VideoID              string
	CreatorID            string
	WatchDurationSeconds float64
	Category             string
	IdempotencyKey       string
}

// EarnResult describes what a watch event credited.
type EarnResult struct {
	EntryID      uuid.UUID
	PointsEarned int64
	Multiplier   int
	Tier         enums.UserTier
	Wallet       wallet.View
	Duplicate    bool
}

type ServiceParams struct {
	DB      dbpkg.TxRunner
	Ledger  ledger.Repository
	Wallets *wallet.Service
	Tiers   tiers.Provider
	Rates   *rates.Model
	Store   Store
	Config  config.LedgerConfig
	Timeout time.Duration
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type Service struct {
	db      dbpkg.TxRunner
	ledger  ledger.Repository
	wallets *wallet.Service
	tiers   tiers.Provider
	rates   *rates.Model
	store   Store
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
	case params.Ledger == nil:
		return nil, errors.New("ledger repository required")
	case params.Wallets == nil:
		return nil, errors.New("wallet service required")
	case params.Tiers == nil:
		return nil, errors.New("tier provider required")
	case params.Rates == nil:
		return nil, errors.New("rate model required")
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
	cfg := params.Config
	if cfg.MaxWatchSeconds <= 0 {
		cfg.MaxWatchSeconds = DefaultMaxWatchSeconds
	}
	return &Service{
		db:      params.DB,
		ledger:  params.Ledger,
		wallets: params.Wallets,
		tiers:   params.Tiers,
		rates:   params.Rates,
		store:   params.Store,
		cfg:     cfg,
		timeout: timeout,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// RecordWatch credits a watch event as a pending EARN entry. Replays of the
// same idempotency key return the original entry with Duplicate set.
func (s *Service) RecordWatch(ctx context.Context, input WatchInput) (EarnResult, error) {
	if err := validateInput(input, s.cfg.MaxWatchSeconds); err != nil {
		return EarnResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = s.logg.WithUserID(ctx, input.UserID.String())
	ctx = s.logg.WithField(ctx, "video_id", input.VideoID)

	result, err := s.recordWatch(ctx, input)
	if err != nil {
		s.metrics.IncWatchEvent(outcomeFailed)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return EarnResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "outcome unknown; retry with the same idempotency key")
		}
		return EarnResult{}, err
	}
	return result, nil
}

func (s *Service) recordWatch(ctx context.Context, input WatchInput) (EarnResult, error) {
	now := s.now().UTC()
	category := enums.NormalizeContentCategory(input.Category)
	seconds := math.Floor(input.WatchDurationSeconds)

	if seconds < float64(s.rates.Table().MinWatchSeconds) {
		s.logg.Debug(ctx, "watch below minimum duration; nothing credited")
		s.metrics.IncWatchEvent(outcomeBelowMinimum)
		return s.zeroResult(ctx, input.UserID, enums.UserTierNone, 1)
	}

	tier, err := s.tiers.GetUserTier(ctx, input.UserID)
	if err != nil {
		return EarnResult{}, err
	}
	multiplier := rates.MultiplierForTier(tier)
	points, err := s.rates.ComputeEarnedPoints(category, seconds, multiplier)
	if errors.Is(err, rates.ErrPointsOverflow) {
		return EarnResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "watch duration is out of range")
	}
	if err != nil {
		return EarnResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rate model misconfigured")
	}
	if points == 0 {
		s.metrics.IncWatchEvent(outcomeBelowMinimum)
		return s.zeroResult(ctx, input.UserID, tier, multiplier)
	}

	token := strings.TrimSpace(input.IdempotencyKey)
	if token == "" {
		token = DeriveIdempotencyKey(input.UserID, input.VideoID, now, s.cfg.DedupeWindow)
	}

	dedupeKey, claimed, err := s.claimDedupe(ctx, input.UserID, token)
	if err != nil {
		return EarnResult{}, err
	}
	if !claimed {
		return s.duplicateResult(ctx, input.UserID, token, tier, multiplier)
	}

	entry := &models.LedgerEntry{
		UserID:           input.UserID,
		Kind:             enums.LedgerKindEarn,
		Points:           points,
		Status:           enums.LedgerStatusPosted,
		RelatedVideoID:   optional(input.VideoID),
		RelatedCreatorID: optional(input.CreatorID),
		ContentCategory:  optional(string(category)),
		Multiplier:       &multiplier,
		IdempotencyKey:   &token,
		PostedAt:         now,
	}
	availableAt := now.Add(s.cfg.HoldingPeriod)
	expiresAt := availableAt.Add(s.cfg.ExpiryWindow)
	entry.AvailableAt = &availableAt
	entry.ExpiresAt = &expiresAt

	var updated *models.Wallet
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}
		var err error
		updated, err = s.wallets.Repository().WithTx(tx).ApplyDelta(ctx, input.UserID, wallet.Delta{Pending: points, Earned: points})
		return err
	})
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		return s.duplicateResult(ctx, input.UserID, token, tier, multiplier)
	}
	if err != nil {
		s.releaseDedupe(ctx, dedupeKey)
		return EarnResult{}, err
	}

	s.wallets.AfterCommit(ctx, input.UserID)
	s.metrics.IncWatchEvent(outcomeCredited)
	s.metrics.AddCredited(string(enums.LedgerKindEarn), points)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"entry_id":   entry.ID.String(),
		"points":     points,
		"multiplier": multiplier,
	}), "watch event credited")

	return EarnResult{
		EntryID:      entry.ID,
		PointsEarned: points,
		Multiplier:   multiplier,
		Tier:         tier,
		Wallet:       wallet.ViewFromModel(updated),
	}, nil
}

func (s *Service) claimDedupe(ctx context.Context, userID uuid.UUID, token string) (string, bool, error) {
	if s.store == nil || s.cfg.DedupeWindow <= 0 {
		return "", true, nil
	}
	key := s.store.DedupeKey(dedupeScope, userID.String(), token)
	ok, err := s.store.SetNX(ctx, key, "1", s.cfg.DedupeWindow)
	if err != nil {
		// the unique index still rejects replays
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dedupe window unavailable")
		return "", true, nil
	}
	return key, ok, nil
}

func (s *Service) releaseDedupe(ctx context.Context, key string) {
	if key == "" || s.store == nil {
		return
	}
	if err := s.store.Del(context.WithoutCancel(ctx), key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to release dedupe key")
	}
}

func (s *Service) duplicateResult(ctx context.Context, userID uuid.UUID, token string, tier enums.UserTier, multiplier int) (EarnResult, error) {
	existing, err := s.ledger.FindByIdempotencyKey(ctx, userID, enums.LedgerKindEarn, token)
	if err != nil {
		return EarnResult{}, err
	}
	if existing == nil {
		return EarnResult{}, pkgerrors.New(pkgerrors.CodeConflict, "watch event is already being processed; retry shortly")
	}
	view, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return EarnResult{}, err
	}
	s.metrics.IncWatchEvent(outcomeDuplicate)
	if existing.Multiplier != nil {
		multiplier = *existing.Multiplier
	}
	return EarnResult{
		EntryID:      existing.ID,
		PointsEarned: existing.Points,
		Multiplier:   multiplier,
		Tier:         tier,
		Wallet:       view,
		Duplicate:    true,
	}, nil
}

func (s *Service) zeroResult(ctx context.Context, userID uuid.UUID, tier enums.UserTier, multiplier int) (EarnResult, error) {
	view, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return EarnResult{}, err
	}
	return EarnResult{Multiplier: multiplier, Tier: tier, Wallet: view}, nil
}

// DeriveIdempotencyKey buckets repeated reports of the same video into one
// key per dedupe window.
func DeriveIdempotencyKey(userID uuid.UUID, videoID string, now time.Time, window time.Duration) string {
	bucket := int64(0)
	if window > 0 {
		bucket = now.UTC().UnixNano() / int64(window)
	}
	sum := sha256.Sum256([]byte(userID.String() + "|" + videoID + "|" + strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(sum[:])
}

func validateInput(input WatchInput, maxSeconds int64) error {
	switch {
	case input.UserID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	case strings.TrimSpace(input.VideoID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "video id is required")
	case strings.TrimSpace(input.Category) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "content category is required")
	case math.IsNaN(input.WatchDurationSeconds) || math.IsInf(input.WatchDurationSeconds, 0):
		return pkgerrors.New(pkgerrors.CodeValidation, "watch duration must be finite")
	case input.WatchDurationSeconds < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "watch duration must not be negative")
	case input.WatchDurationSeconds > float64(maxSeconds):
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("watch duration exceeds %d seconds", maxSeconds))
	case len(input.IdempotencyKey) > 128:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("idempotency key exceeds %d characters", 128))
	}
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
