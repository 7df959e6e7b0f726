package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerAllocation records how much of a credit entry a REDEEM debit consumed.
type LedgerAllocation struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	RedemptionID  uuid.UUID `gorm:"column:redemption_id;type:uuid;not null"`
	RedeemEntryID uuid.UUID `gorm:"column:redeem_entry_id;type:uuid;not null"`
	CreditEntryID uuid.UUID `gorm:"column:credit_entry_id;type:uuid;not null"`
	Points        int64     `gorm:"column:points;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerAllocation) TableName() string { return "ledger_allocations" }

func (a *LedgerAllocation) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
