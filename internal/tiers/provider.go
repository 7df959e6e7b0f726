// Package tiers resolves a user's verification tier, which selects the earning multiplier.
package tiers

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/logger"
)

// Provider reports the current tier of a user.
type Provider interface {
	GetUserTier(ctx context.Context, userID uuid.UUID) (enums.UserTier, error)
}

// Static returns the same tier for everyone.
type Static enums.UserTier

func (s Static) GetUserTier(context.Context, uuid.UUID) (enums.UserTier, error) {
	if !enums.UserTier(s).IsValid() {
		return enums.UserTierNone, nil
	}
	return enums.UserTier(s), nil
}

// NewFromConfig builds the verification client wrapped in the tier cache. Without
// a base URL every user is NONE.
func NewFromConfig(cfg config.VerificationConfig, cache Cache, logg *logger.Logger) (Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		if logg != nil {
			logg.Warn(context.Background(), "verification base url not configured; all users earn at tier NONE")
		}
		return Static(enums.UserTierNone), nil
	}
	client, err := NewClient(cfg.BaseURL, WithAPIKey(cfg.APIKey), WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return client, nil
	}
	return NewCachedProvider(client, cache, cfg.CacheTTL, logg), nil
}
