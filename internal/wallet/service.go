package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/db/models"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/metrics"
	"github.com/watchpoints/points-engine/pkg/redis"
)

const defaultCacheTTL = 30 * time.Second

// Cache is the subset of the redis client used for the read-through projection cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	WalletKey(userID string) string
}

// Queue receives users whose cached projection could not be invalidated.
type Queue interface {
	Enqueue(ctx context.Context, queue string, members ...string) error
}

// View is the user-facing wallet projection.
type View struct {
	UserID          uuid.UUID `json:"userId"`
	PendingPoints   int64     `json:"pendingPoints"`
	AvailablePoints int64     `json:"availablePoints"`
	TotalEarned     int64     `json:"totalEarned"`
	TotalRedeemed   int64     `json:"totalRedeemed"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ViewFromModel converts the stored row into its user-facing snapshot.
func ViewFromModel(w *models.Wallet) View {
	if w == nil {
		return View{}
	}
	return View{
		UserID:          w.UserID,
		PendingPoints:   w.PendingPoints,
		AvailablePoints: w.AvailablePoints,
		TotalEarned:     w.TotalEarned,
		TotalRedeemed:   w.TotalRedeemed,
		UpdatedAt:       w.UpdatedAt.UTC(),
	}
}

type ServiceParams struct {
	Repo     Repository
	Cache    Cache
	Queue    Queue
	CacheTTL time.Duration
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
}

// Service serves wallet reads through the cache and owns invalidation.
type Service struct {
	repo    Repository
	cache   Cache
	queue   Queue
	ttl     time.Duration
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("wallet repository required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		repo:    params.Repo,
		cache:   params.Cache,
		queue:   params.Queue,
		ttl:     ttl,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Repository exposes the underlying store for tx-bound writers.
func (s *Service) Repository() Repository {
	return s.repo
}

// Get returns the user's wallet. Users without a wallet row see zero balances.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (View, error) {
	if userID == uuid.Nil {
		return View{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if view, ok := s.readCache(ctx, userID); ok {
		return view, nil
	}

	w, err := s.repo.Get(ctx, userID)
	switch {
	case IsNotFound(err):
		return View{UserID: userID}, nil
	case err != nil:
		return View{}, err
	case w.ArchivedAt != nil:
		return View{}, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}

	view := ViewFromModel(w)
	s.writeCache(ctx, view)
	return view, nil
}

// GetFresh bypasses the cache.
func (s *Service) GetFresh(ctx context.Context, userID uuid.UUID) (View, error) {
	w, err := s.repo.Get(ctx, userID)
	if IsNotFound(err) {
		return View{UserID: userID}, nil
	}
	if err != nil {
		return View{}, err
	}
	return ViewFromModel(w), nil
}

// Invalidate drops the cached projection. Writers call it after commit.
func (s *Service) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, s.cache.WalletKey(userID.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate wallet cache")
	}
	return nil
}

// AfterCommit invalidates the cached projection once a write committed. When
// that fails the stored balances are right but the cache is stale, so the
// user is queued for reconciliation.
func (s *Service) AfterCommit(ctx context.Context, userID uuid.UUID) {
	err := s.Invalidate(ctx, userID)
	if err == nil {
		return
	}
	s.metrics.IncCacheInvalidationFailure()
	if s.logg != nil {
		logCtx := s.logg.WithUserID(ctx, userID.String())
		s.logg.Error(logCtx, "wallet cache invalidation failed after commit", pkgerrors.Wrap(pkgerrors.CodePartialApply, err, "partial apply"))
	}
	s.QueueReconcile(ctx, userID)
}

// QueueReconcile schedules the user's wallet for a reconciliation pass.
func (s *Service) QueueReconcile(ctx context.Context, userID uuid.UUID) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), redis.ReconcileQueue, userID.String()); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to queue wallet for reconciliation", err)
	}
}

// Archive retires the wallet row and its cache entry.
func (s *Service) Archive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if err := s.repo.Archive(ctx, userID, at); err != nil {
		return err
	}
	if err := s.Invalidate(ctx, userID); err != nil {
		s.warn(ctx, userID, "wallet archived but cache invalidation failed", err)
	}
	return nil
}

func (s *Service) readCache(ctx context.Context, userID uuid.UUID) (View, bool) {
	if s.cache == nil {
		return View{}, false
	}
	raw, err := s.cache.Get(ctx, s.cache.WalletKey(userID.String()))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.warn(ctx, userID, "wallet cache read failed, falling back to store", err)
		}
		return View{}, false
	}
	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		s.warn(ctx, userID, "wallet cache entry unreadable", err)
		return View{}, false
	}
	return view, true
}

func (s *Service) writeCache(ctx context.Context, view View) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.WalletKey(view.UserID.String()), payload, s.ttl); err != nil {
		s.warn(ctx, view.UserID, "wallet cache write failed", err)
	}
}

func (s *Service) warn(ctx context.Context, userID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id": userID.String(),
		"error":   err.Error(),
	})
	s.logg.Warn(ctx, msg)
}
