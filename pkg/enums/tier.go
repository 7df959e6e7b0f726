package enums

import (
	"fmt"
	"strings"
)

// UserTier is the verification level reported by the identity subsystem.
type UserTier string

const (
	UserTierNone     UserTier = "NONE"
	UserTierPending  UserTier = "PENDING"
	UserTierVerified UserTier = "VERIFIED"
)

var validUserTiers = []UserTier{
	UserTierNone,
	UserTierPending,
	UserTierVerified,
}

// IsValid reports whether the value matches a known tier.
func (t UserTier) IsValid() bool {
	for _, candidate := range validUserTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseUserTier converts raw input into UserTier. Matching is case-insensitive.
func ParseUserTier(value string) (UserTier, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validUserTiers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user tier %q", value)
}
