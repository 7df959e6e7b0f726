package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/pkg/enums"
)

// LedgerEntry is one immutable balance-affecting event. Only Status and
// StatusChangedAt are ever updated after insert.
type LedgerEntry struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	Kind             enums.LedgerEntryKind   `gorm:"column:kind;not null"`
	Points           int64                   `gorm:"column:points;not null"`
	Status           enums.LedgerEntryStatus `gorm:"column:status;not null"`
	RelatedVideoID   *string                 `gorm:"column:related_video_id"`
	RelatedCreatorID *string                 `gorm:"column:related_creator_id"`
	RelatedEntryID   *uuid.UUID              `gorm:"column:related_entry_id;type:uuid"`
	RedemptionID     *uuid.UUID              `gorm:"column:redemption_id;type:uuid"`
	ContentCategory  *string                 `gorm:"column:content_category"`
	Multiplier       *int                    `gorm:"column:multiplier"`
	IdempotencyKey   *string                 `gorm:"column:idempotency_key"`
	PostedAt         time.Time               `gorm:"column:posted_at;not null"`
	AvailableAt      *time.Time              `gorm:"column:available_at"`
	ExpiresAt        *time.Time              `gorm:"column:expires_at"`
	StatusChangedAt  time.Time               `gorm:"column:status_changed_at;not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.PostedAt.IsZero() {
		e.PostedAt = time.Now().UTC()
	}
	if e.StatusChangedAt.IsZero() {
		e.StatusChangedAt = e.PostedAt
	}
	return nil
}
