package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/pkg/enums"
)

// RedemptionRequest is a user's request to convert available points into a payout.
type RedemptionRequest struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	PointsRequested   int64                  `gorm:"column:points_requested;not null"`
	Method            enums.RedemptionMethod `gorm:"column:method;not null"`
	Destination       string                 `gorm:"column:destination;not null"`
	Status            enums.RedemptionStatus `gorm:"column:status;not null"`
	ProviderReference *string                `gorm:"column:provider_reference"`
	FailureReason     *string                `gorm:"column:failure_reason"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt       *time.Time             `gorm:"column:completed_at"`
}

func (RedemptionRequest) TableName() string { return "redemption_requests" }

func (r *RedemptionRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
