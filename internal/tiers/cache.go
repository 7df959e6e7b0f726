package tiers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/redis"
)

const defaultCacheTTL = 5 * time.Minute

// Cache is the redis surface used to memoize tiers.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	TierKey(userID string) string
}

// CachedProvider memoizes another provider's answers. Cache failures are
// logged and the lookup goes to the wrapped provider.
type CachedProvider struct {
	next  Provider
	cache Cache
	ttl   time.Duration
	logg  *logger.Logger
}

func NewCachedProvider(next Provider, cache Cache, ttl time.Duration, logg *logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl, logg: logg}
}

func (p *CachedProvider) GetUserTier(ctx context.Context, userID uuid.UUID) (enums.UserTier, error) {
	key := p.cache.TierKey(userID.String())
	raw, err := p.cache.Get(ctx, key)
	if err == nil {
		if tier, parseErr := enums.ParseUserTier(raw); parseErr == nil {
			return tier, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		p.warn(ctx, "tier cache read failed", err)
	}

	tier, err := p.next.GetUserTier(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := p.cache.Set(ctx, key, string(tier), p.ttl); err != nil {
		p.warn(ctx, "tier cache write failed", err)
	}
	return tier, nil
}

func (p *CachedProvider) warn(ctx context.Context, msg string, err error) {
	if p.logg == nil {
		return
	}
	p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), msg)
}
