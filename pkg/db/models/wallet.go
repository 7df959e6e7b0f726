package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the per-user balance projection over the ledger.
type Wallet struct {
	UserID          uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	PendingPoints   int64      `gorm:"column:pending_points;not null;default:0"`
	AvailablePoints int64      `gorm:"column:available_points;not null;default:0"`
	TotalEarned     int64      `gorm:"column:total_earned;not null;default:0"`
	TotalRedeemed   int64      `gorm:"column:total_redeemed;not null;default:0"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	ArchivedAt      *time.Time `gorm:"column:archived_at"`
}

func (Wallet) TableName() string { return "wallets" }
